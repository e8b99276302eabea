package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			ReadTimeout:    Duration{Duration: 15 * time.Second},
			WriteTimeout:   Duration{Duration: 15 * time.Second},
			IdleTimeout:    Duration{Duration: 60 * time.Second},
			RequestTimeout: Duration{Duration: 60 * time.Second},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Pool: PostgresPoolConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: Duration{Duration: 5 * time.Minute},
			},
		},
		Jobs: JobsConfig{
			PollInterval:   Duration{Duration: 5 * time.Second},
			Lease:          Duration{Duration: 60 * time.Second},
			HandlerTimeout: Duration{Duration: 30 * time.Second},
			BatchSize:      10,
			MaxAttempts:    10,
		},
		Idempotency: IdempotencyConfig{
			TTL: Duration{Duration: 24 * time.Hour},
		},
		RateLimit: RateLimitConfig{
			// Generous limits - designed to prevent spam, not restrict legitimate use
			Enabled: true,
			Limit:   1000,
			Window:  Duration{Duration: 1 * time.Minute},
		},
		Seed: SeedConfig{
			InitialBalanceCents: 0,
		},
		Environment: "development",
	}
}

// parseFile merges a YAML file into the config.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// finalize validates the merged configuration.
func (c *Config) finalize() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address must not be empty")
	}
	if c.Jobs.PollInterval.Duration <= 0 {
		return fmt.Errorf("jobs poll_interval must be positive")
	}
	if c.Jobs.Lease.Duration <= 0 {
		return fmt.Errorf("jobs lease must be positive")
	}
	if c.Jobs.BatchSize <= 0 {
		return fmt.Errorf("jobs batch_size must be positive")
	}
	if c.Jobs.MaxAttempts <= 0 {
		return fmt.Errorf("jobs max_attempts must be positive")
	}
	if c.Idempotency.TTL.Duration <= 0 {
		return fmt.Errorf("idempotency ttl must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit limit must be positive when enabled")
	}
	if c.Seed.InitialBalanceCents < 0 {
		return fmt.Errorf("seed initial_balance_cents must not be negative")
	}
	return nil
}
