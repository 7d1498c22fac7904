package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the chat core and relay.
// Environment variables are automatically parsed from the CHAT_ prefix.
type Config struct {
	// Build target selects the high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override driver
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite Configuration (local target)
	SQLitePath string `envconfig:"SQLITE_PATH" default:""`

	// Relay Configuration
	RelayURL       string `envconfig:"RELAY_URL" default:"http://localhost:8080"`
	UpstreamURL    string `envconfig:"UPSTREAM_URL" default:"https://openrouter.ai/api/v1/chat/completions"`
	UpstreamAPIKey string `envconfig:"UPSTREAM_API_KEY" default:""`
	Model          string `envconfig:"MODEL" default:"deepseek/deepseek-r1-0528-qwen3-8b:free"`

	// Session tokens; empty disables the relay's bearer check
	JWTSecret string `envconfig:"JWT_SECRET" default:""`

	// Lifecycle tunables
	DeleteBatchSize  int `envconfig:"DELETE_BATCH_SIZE" default:"300"`
	ReloadDebounceMS int `envconfig:"RELOAD_DEBOUNCE_MS" default:"500"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and SQLitePath
// when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "cloud-dev":
		defaultDB = "postgres"
	case "cloud":
		defaultDB = "postgres"
	case "local":
		defaultDB = "sqlite"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.DBDriver == "sqlite" && c.SQLitePath == "" {
		c.SQLitePath = "chat.db"
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true, "memory": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables are prefixed with CHAT_
// Example: CHAT_HTTP_PORT, CHAT_POSTGRES_DSN
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CHAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("model", cfg.Model).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Str("upstream_key_present", func() string {
			if cfg.UpstreamAPIKey != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
	}

	cfg.HTTPPort = 8080
	cfg.BuildTarget = "local"
	cfg.DBDriver = "memory"
	cfg.RelayURL = "http://localhost:8080"
	cfg.UpstreamURL = "http://localhost:9999/v1/chat/completions"
	cfg.Model = "deepseek/deepseek-r1-0528-qwen3-8b:free"
	cfg.DeleteBatchSize = 300
	cfg.ReloadDebounceMS = 500

	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
