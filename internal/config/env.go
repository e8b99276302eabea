package config

import (
	"database/sql"
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// App-specific vars use the LIBRARY_ prefix; PORT and DATABASE_URL are honored
// without a prefix for platform compatibility.
func (c *Config) applyEnvOverrides() {
	// Platform-conventional variables.
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + v
	}
	setIfEnv(&c.Database.URL, "DATABASE_URL")

	// Server config
	setIfEnv(&c.Server.Address, "LIBRARY_SERVER_ADDRESS")
	setDurationIfEnv(&c.Server.ReadTimeout, "LIBRARY_SERVER_READ_TIMEOUT")
	setDurationIfEnv(&c.Server.WriteTimeout, "LIBRARY_SERVER_WRITE_TIMEOUT")
	setDurationIfEnv(&c.Server.IdleTimeout, "LIBRARY_SERVER_IDLE_TIMEOUT")
	setDurationIfEnv(&c.Server.RequestTimeout, "LIBRARY_SERVER_REQUEST_TIMEOUT")

	// Logging config
	setIfEnv(&c.Logging.Level, "LIBRARY_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LIBRARY_LOG_FORMAT")

	// Database config
	setIfEnv(&c.Database.URL, "LIBRARY_DATABASE_URL")
	setIntIfEnv(&c.Database.Pool.MaxOpenConns, "LIBRARY_DB_MAX_OPEN_CONNS")
	setIntIfEnv(&c.Database.Pool.MaxIdleConns, "LIBRARY_DB_MAX_IDLE_CONNS")
	setDurationIfEnv(&c.Database.Pool.ConnMaxLifetime, "LIBRARY_DB_CONN_MAX_LIFETIME")

	// Jobs config
	setDurationIfEnv(&c.Jobs.PollInterval, "LIBRARY_JOBS_POLL_INTERVAL")
	setDurationIfEnv(&c.Jobs.Lease, "LIBRARY_JOBS_LEASE")
	setDurationIfEnv(&c.Jobs.HandlerTimeout, "LIBRARY_JOBS_HANDLER_TIMEOUT")
	setIntIfEnv(&c.Jobs.BatchSize, "LIBRARY_JOBS_BATCH_SIZE")
	setIntIfEnv(&c.Jobs.MaxAttempts, "LIBRARY_JOBS_MAX_ATTEMPTS")

	// Idempotency config
	setDurationIfEnv(&c.Idempotency.TTL, "LIBRARY_IDEMPOTENCY_TTL")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.Enabled, "LIBRARY_RATE_LIMIT_ENABLED")
	setIntIfEnv(&c.RateLimit.Limit, "LIBRARY_RATE_LIMIT")
	setDurationIfEnv(&c.RateLimit.Window, "LIBRARY_RATE_LIMIT_WINDOW")

	// Seed config
	setIfEnv(&c.Seed.Path, "LIBRARY_SEED_PATH")
	setInt64IfEnv(&c.Seed.InitialBalanceCents, "LIBRARY_INITIAL_BALANCE_CENTS")

	setIfEnv(&c.Environment, "LIBRARY_ENVIRONMENT")
}

// setIfEnv sets the target string if the environment variable is non-empty.
func setIfEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// setBoolIfEnv sets the target bool if the environment variable parses as a bool.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// setIntIfEnv sets the target int if the environment variable parses as an integer.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setInt64IfEnv sets the target int64 if the environment variable parses as an integer.
func setInt64IfEnv(target *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets the target duration if the environment variable parses
// as a Go duration string.
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25 // default
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5 // default
	}

	// Validate: maxIdle cannot exceed maxOpen
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	lifetime := pool.ConnMaxLifetime.Duration
	if lifetime <= 0 {
		lifetime = 5 * time.Minute // default
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}
