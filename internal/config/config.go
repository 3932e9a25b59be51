// Package config loads Quozen's runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration. Command-line flags override it.
type Config struct {
	// Addr is the address the RPC server listens on.
	Addr string `env:"QUOZEN_ADDR" envDefault:":8080"`

	// DBPath is the SQLite database emulating the document store.
	DBPath string `env:"QUOZEN_DB_PATH" envDefault:"./data/quozen.db"`

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `env:"QUOZEN_JWT_SECRET"`

	// TokenTTL is how long minted tokens stay valid.
	TokenTTL time.Duration `env:"QUOZEN_TOKEN_TTL" envDefault:"24h"`

	// OTelEndpoint enables OTLP trace export when set (e.g. http://localhost:4318).
	OTelEndpoint string `env:"QUOZEN_OTEL_ENDPOINT"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RequireAuth checks the settings needed to issue or verify tokens.
func (c *Config) RequireAuth() error {
	if c.JWTSecret == "" {
		return errors.New("QUOZEN_JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("QUOZEN_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	return nil
}
