package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/binhbb2204/mangashelf/internal/auth"
	"github.com/binhbb2204/mangashelf/internal/events"
	"github.com/binhbb2204/mangashelf/internal/health"
	"github.com/binhbb2204/mangashelf/internal/manga"
	"github.com/binhbb2204/mangashelf/internal/pages"
	"github.com/binhbb2204/mangashelf/internal/user"
	"github.com/binhbb2204/mangashelf/pkg/apperror"
	"github.com/binhbb2204/mangashelf/pkg/config"
	"github.com/binhbb2204/mangashelf/pkg/logger"
	"github.com/binhbb2204/mangashelf/pkg/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
)

const readHeaderTimeout = 10 * time.Second

// App owns every long-lived resource of the server and tears them down in
// one place.
type App struct {
	cfg    *config.Config
	db     *sql.DB
	hub    *events.Hub
	router *gin.Engine
	server *http.Server
	log    *logger.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// New wires stores, handlers and routes. The App takes ownership of db.
func New(cfg *config.Config, db *sql.DB) (*App, error) {
	log := logger.GetLogger().WithContext("component", "server")

	files := pages.NewFileRepository(cfg.MangaDir)
	if err := files.EnsureRoot(); err != nil {
		return nil, fmt.Errorf("prepare manga dir: %w", err)
	}

	a := &App{cfg: cfg, db: db, log: log}

	var publisher events.Publisher = events.Nop{}
	if cfg.EventsEnabled {
		a.hub = events.NewHub(cfg.FrontendURL)
		go a.hub.Run()
		publisher = a.hub
	}

	users := user.NewDBRepository(db)
	sessions := auth.NewSessionManager(cfg.CookieSecret, cfg.SessionTTL, cfg.SecureCookies(), users)

	authHandler := auth.NewHandler(users, sessions)
	mangaHandler := manga.NewHandler(manga.NewDBRepository(db), files, publisher, cfg.MaxUploadBytes)
	healthHandler := health.NewHandler(db, cfg.MangaDir)
	metricsHandler := metrics.NewHandler()

	if !cfg.Debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestID(), requestLogger(log), recovery(log), metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.FrontendURL}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", RequestIDHeader}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		apperror.Respond(c, apperror.NotFound("Route not found"))
	})

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/readyz", healthHandler.Readyz)
	router.GET("/metrics", metricsHandler.Metrics)
	if a.hub != nil {
		router.GET("/events", sessions.Authenticate(auth.ModeTry), a.hub.ServeWS)
	}

	try := sessions.Authenticate(auth.ModeTry)
	optional := sessions.Authenticate(auth.ModeOptional)
	required := sessions.Authenticate(auth.ModeRequired)

	router.POST("/register", try, authHandler.Register)
	router.POST("/login", try, authHandler.Login)
	router.POST("/logout", required, authHandler.Logout)
	router.GET("/userinfo", required, authHandler.UserInfo)
	router.POST("/password", required, authHandler.ChangePassword)

	mangaGroup := router.Group("/manga")
	{
		mangaGroup.GET("", optional, mangaHandler.List)
		mangaGroup.GET("/:id", optional, mangaHandler.Get)

		protected := mangaGroup.Group("")
		protected.Use(required)
		{
			protected.POST("", mangaHandler.Create)
			protected.POST("/:id", mangaHandler.Update)
			protected.POST("/:id/favorite", mangaHandler.SetFavorite)
			protected.POST("/:id/upload", mangaHandler.Upload)
			protected.DELETE("/:id", mangaHandler.Delete)
			protected.DELETE("/:id/:file", mangaHandler.DeletePage)
		}
	}

	a.router = router
	a.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return a, nil
}

func (a *App) Router() http.Handler {
	return a.router
}

// Run serves HTTP until Shutdown is called. It returns nil after a clean
// shutdown and the listener error otherwise.
func (a *App) Run() error {
	a.log.Info("http_server_listening", "addr", a.server.Addr, "base_url", a.cfg.BaseURL)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the listener, the event hub and the database. Later calls
// return the result of the first.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.log.Info("server_shutting_down")

		var err error
		if shutdownErr := a.server.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("stop http server: %w", shutdownErr))
		}
		if a.hub != nil {
			a.hub.Stop()
		}
		if closeErr := a.db.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close database: %w", closeErr))
		}

		if err != nil {
			a.log.Error("shutdown_incomplete", "error", err.Error())
		} else {
			a.log.Info("graceful_shutdown_complete")
		}
		a.shutdownErr = err
	})
	return a.shutdownErr
}
