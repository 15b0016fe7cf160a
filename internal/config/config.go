// Package config loads process configuration from HEREDITY_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. HEREDITY_HTTP_PORT.
const Prefix = "HEREDITY"

// Config is shared by the api and worker binaries and the CLI.
type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"50051"`
	// MetricsPort serves /metrics for the worker, which has no HTTP API.
	MetricsPort string `envconfig:"METRICS_PORT" default:"9091"`
	CORSOrigin  string `envconfig:"CORS_ORIGIN" default:"*"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Neo4jURL      string `envconfig:"NEO4J_URL" default:"neo4j://localhost:7687"`
	Neo4jUser     string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPass     string `envconfig:"NEO4J_PASS" default:"password"`
	Neo4jDatabase string `envconfig:"NEO4J_DATABASE"`

	NATSURL   string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSQueue string `envconfig:"NATS_QUEUE" default:"heredity"`

	RateLimit float64 `envconfig:"RATE_LIMIT" default:"50"`
	RateBurst int     `envconfig:"RATE_BURST" default:"100"`

	Workers        int           `envconfig:"WORKERS" default:"8"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
}

// Load reads the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the binaries cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("config: %s_WORKERS must not be negative, got %d", Prefix, c.Workers)
	case c.RateBurst < 0:
		return fmt.Errorf("config: %s_RATE_BURST must not be negative, got %d", Prefix, c.RateBurst)
	case c.RequestTimeout < 0:
		return fmt.Errorf("config: %s_REQUEST_TIMEOUT must not be negative, got %s", Prefix, c.RequestTimeout)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: %s_LOG_LEVEL: %w", Prefix, err)
	}
	return lvl, nil
}
