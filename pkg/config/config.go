package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	MinCookieSecretLength = 32
)

// Config is the server configuration, decoded from the environment.
type Config struct {
	Env   string `env:"ENV,default=development"`
	Debug bool   `env:"DEBUG,default=false"`

	Port    int    `env:"PORT,default=3000"`
	BaseURL string `env:"BASE_URL"`

	DBPath   string `env:"DB_PATH,default=./data/mangashelf.db"`
	MangaDir string `env:"MANGA_DIR"`

	CookieSecret   string        `env:"COOKIE_SECRET,required"`
	SessionTTL     time.Duration `env:"SESSION_TTL,default=168h"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES,default=104857600"`

	FrontendURL   string `env:"FRONTEND_URL"`
	LogLevel      string `env:"LOG_LEVEL"`
	LogFormat     string `env:"LOG_FORMAT,default=text"`
	EventsEnabled bool   `env:"EVENTS_ENABLED,default=true"`
}

// Load decodes the environment into a Config, fills derived defaults and
// validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.BaseURL == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.FrontendURL == "" {
		c.FrontendURL = c.BaseURL
	}
	if c.MangaDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		c.MangaDir = filepath.Join(wd, "..", "MANGA")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
		if c.Debug {
			c.LogLevel = "debug"
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		problems = append(problems, fmt.Sprintf("ENV must be %q or %q", EnvDevelopment, EnvProduction))
	}
	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, "BASE_URL must be an http or https URL")
	}
	if len(c.CookieSecret) < MinCookieSecretLength {
		problems = append(problems, fmt.Sprintf("COOKIE_SECRET must be at least %d characters", MinCookieSecretLength))
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_BYTES must be positive")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "DB_PATH is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, "LOG_FORMAT must be text or json")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// SecureCookies reports whether the public URL is served over TLS.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https")
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.CookieSecret != "" {
		c.CookieSecret = "********"
	}
	return c
}
