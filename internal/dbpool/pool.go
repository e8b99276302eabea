// Package dbpool opens the single PostgreSQL connection pool that every
// database-backed component shares.
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/dummy-library/server/internal/config"
)

// Pool wraps the process-wide *sql.DB.
type Pool struct {
	db *sql.DB
}

// New opens the pool, verifies connectivity, and applies the configured
// pool limits.
func New(url string, cfg config.PostgresPoolConfig) (*Pool, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	config.ApplyPostgresPoolSettings(db, cfg)
	return &Pool{db: db}, nil
}

// DB returns the shared *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the pool. Called once at shutdown by the lifecycle manager.
func (p *Pool) Close() error {
	return p.db.Close()
}
