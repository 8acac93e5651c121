package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// HomeEnv overrides the configuration directory.
const HomeEnv = "MANGASHELF_HOME"

const (
	DefaultServerURL      = "http://localhost:3000"
	DefaultTimeoutSeconds = 60
)

var ErrNotInitialized = errors.New("configuration not initialized")

type Config struct {
	Server struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"server"`
	User struct {
		Username string `yaml:"username"`
		Session  string `yaml:"session"`
	} `yaml:"user"`
	Output struct {
		JSON bool `yaml:"json"`
	} `yaml:"output"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Server.URL = DefaultServerURL
	cfg.Server.TimeoutSeconds = DefaultTimeoutSeconds
	return cfg
}

func GetConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mangashelf"), nil
}

func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config readable only by the owner since it holds the
// session cookie.
func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Init writes a default config pointing at serverURL. An existing config is
// only replaced when force is set.
func Init(serverURL string, force bool) (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			return nil, fmt.Errorf("config already exists at %s", configPath)
		}
	}

	cfg := Default()
	if serverURL != "" {
		if err := Set(cfg, "server.url", serverURL); err != nil {
			return nil, err
		}
	}
	if err := Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Set assigns a "section.key" value.
func Set(cfg *Config, key, value string) error {
	switch strings.ToLower(key) {
	case "server.url":
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid server url %q", value)
		}
		cfg.Server.URL = strings.TrimRight(value, "/")
	case "server.timeout_seconds":
		v, err := strconv.Atoi(value)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid positive integer for timeout_seconds")
		}
		cfg.Server.TimeoutSeconds = v
	case "output.json":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for json")
		}
		cfg.Output.JSON = v
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// Entries lists the settable keys with their current values.
func Entries(cfg *Config) [][2]string {
	session := ""
	if cfg.User.Session != "" {
		session = "(set)"
	}
	return [][2]string{
		{"server.url", cfg.Server.URL},
		{"server.timeout_seconds", strconv.Itoa(cfg.Server.TimeoutSeconds)},
		{"output.json", strconv.FormatBool(cfg.Output.JSON)},
		{"user.username", cfg.User.Username},
		{"user.session", session},
	}
}

func UpdateSession(username, session string) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	cfg.User.Username = username
	cfg.User.Session = session
	return Save(cfg)
}

func ClearSession() error {
	return UpdateSession("", "")
}
