package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config contains all runtime settings for the to-do list service.
type Config struct {
	BindAddr         string        `env:"APP_BIND_ADDR" envDefault:":8080"`
	ShutdownTimeout  time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsNamespace string        `env:"APP_METRICS_NAMESPACE" envDefault:"tasklist"`
	AllowAnyOrigin   bool          `env:"APP_ALLOW_ANY_ORIGIN" envDefault:"false"`

	// AppID scopes every collection path (tenants/{AppID}/users/{uid}/todos).
	AppID string `env:"APP_ID" envDefault:"default-app-id"`

	// StoreURL is either "memory://" or a postgres DSN. Empty means the store is not configured.
	StoreURL      string `env:"STORE_URL"`
	StoreNotifier string `env:"STORE_NOTIFIER" envDefault:"postgres"`
	RedisURL      string `env:"REDIS_URL"`

	AuthSigningKey   string        `env:"AUTH_SIGNING_KEY"`
	AuthInitialToken string        `env:"AUTH_INITIAL_TOKEN"`
	AuthTokenTTL     time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`

	GenerationMode    string        `env:"GENERATION_MODE" envDefault:"auto"`
	GenerationAPIURL  string        `env:"GENERATION_API_URL"`
	GenerationAPIKey  string        `env:"GENERATION_API_KEY"`
	GenerationModel   string        `env:"GENERATION_MODEL" envDefault:"gemini-2.5-flash-preview-05-20"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"60s"`

	DeleteConfirmWindow time.Duration `env:"DELETE_CONFIRM_WINDOW" envDefault:"3s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.StoreURL = strings.TrimSpace(cfg.StoreURL)
	cfg.StoreNotifier = strings.ToLower(strings.TrimSpace(cfg.StoreNotifier))
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.AuthSigningKey = strings.TrimSpace(cfg.AuthSigningKey)
	cfg.AuthInitialToken = strings.TrimSpace(cfg.AuthInitialToken)
	cfg.GenerationMode = strings.ToLower(strings.TrimSpace(cfg.GenerationMode))
	cfg.GenerationAPIURL = strings.TrimSpace(cfg.GenerationAPIURL)
	cfg.GenerationAPIKey = strings.TrimSpace(cfg.GenerationAPIKey)

	if cfg.AppID == "" {
		return Config{}, fmt.Errorf("APP_ID must not be empty")
	}
	if cfg.DeleteConfirmWindow <= 0 {
		return Config{}, fmt.Errorf("DELETE_CONFIRM_WINDOW must be positive")
	}
	if cfg.GenerationTimeout <= 0 {
		return Config{}, fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	if cfg.AuthTokenTTL <= 0 {
		return Config{}, fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	switch cfg.StoreNotifier {
	case "postgres":
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when STORE_NOTIFIER=redis")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_NOTIFIER: %q (expected postgres|redis)", cfg.StoreNotifier)
	}
	switch cfg.GenerationMode {
	case "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("invalid GENERATION_MODE: %q (expected auto|http|mock)", cfg.GenerationMode)
	}

	return cfg, nil
}
