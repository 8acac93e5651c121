package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/binhbb2204/mangashelf/internal/server"
	"github.com/binhbb2204/mangashelf/pkg/config"
	"github.com/binhbb2204/mangashelf/pkg/database"
	"github.com/binhbb2204/mangashelf/pkg/logger"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load environment variables from .env if present (optional)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Init(logger.LogLevel(cfg.LogLevel), cfg.LogFormat == "json", os.Stdout)
	log := logger.GetLogger().WithContext("component", "api_server")
	log.Info("starting_api_server", "env", cfg.Env, "port", cfg.Port)
	if cfg.Debug {
		log.Debug("effective_config", "config", fmt.Sprintf("%+v", cfg.Redacted()))
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed_to_initialize_database", "error", err.Error(), "path", cfg.DBPath)
		os.Exit(1)
	}

	app, err := server.New(cfg, db)
	if err != nil {
		db.Close()
		log.Error("failed_to_initialize_server", "error", err.Error())
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run() }()

	exitCode := 0
	select {
	case sig := <-stop:
		log.Info("shutdown_signal_received", "signal", sig.String())
	case err := <-runErr:
		if err != nil {
			log.Error("http_server_failed", "error", err.Error())
			exitCode = 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := app.Shutdown(ctx); err != nil {
		exitCode = 1
	}
	cancel()
	log.Info("api_server_stopped")
	os.Exit(exitCode)
}
