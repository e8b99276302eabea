package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Seed        SeedConfig        `yaml:"seed"`
	Environment string            `yaml:"environment"` // development | production
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	RequestTimeout     Duration `yaml:"request_timeout"` // per-request deadline for API routes
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL  string             `yaml:"url"`
	Pool PostgresPoolConfig `yaml:"pool"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (default: 25)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (default: 5)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (default: 5m)
}

// JobsConfig holds job runner configuration.
type JobsConfig struct {
	PollInterval   Duration `yaml:"poll_interval"`   // How often the runner polls for due jobs (default: 5s)
	Lease          Duration `yaml:"lease"`           // Exclusive claim window per job (default: 60s)
	HandlerTimeout Duration `yaml:"handler_timeout"` // Per-handler transaction deadline (default: 30s)
	BatchSize      int      `yaml:"batch_size"`      // Jobs claimed per poll (default: 10)
	MaxAttempts    int      `yaml:"max_attempts"`    // Default retry budget per job (default: 10)
}

// IdempotencyConfig holds idempotent response cache configuration.
type IdempotencyConfig struct {
	TTL Duration `yaml:"ttl"` // How long cached responses remain replayable (default: 24h)
}

// RateLimitConfig holds request rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"`
	Limit   int      `yaml:"limit"`  // requests per window
	Window  Duration `yaml:"window"` // time window
}

// SeedConfig holds catalog seeding configuration.
type SeedConfig struct {
	Path                string `yaml:"path"`                  // YAML catalog file; empty disables seeding
	InitialBalanceCents int64  `yaml:"initial_balance_cents"` // opening wallet balance on a fresh database
}
