package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same query
// methods serve autocommit reads and transactional engine work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// pgQueries implements Queries against any querier.
type pgQueries struct {
	q querier
}

// PostgresStore is the production backend over a shared connection pool.
type PostgresStore struct {
	pgQueries
	db        *sql.DB
	txTimeout time.Duration
}

// NewPostgresStore wraps an existing connection pool and ensures the schema
// exists. The pool is owned by the caller; Close here is a no-op so the
// shared pool can serve other components.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{
		pgQueries: pgQueries{q: db},
		db:        db,
		txTimeout: DefaultTxTimeout,
	}

	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return store, nil
}

// Tx runs fn in one SERIALIZABLE transaction with a bounded deadline.
func (s *PostgresStore) Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &pgTx{pgQueries: pgQueries{q: tx}, tx: tx}); err != nil {
		// Rollback error is not actionable; the fn error is what matters.
		_ = tx.Rollback()
		return mapPgError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapPgError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Close is a no-op: the shared pool is closed by its owner.
func (s *PostgresStore) Close() error {
	return nil
}

// pgTx is the transactional view of the Postgres backend.
type pgTx struct {
	pgQueries
	tx *sql.Tx
}

// AdvisoryLock takes a transaction-scoped advisory lock on the folded key.
// The lock is released automatically at commit or rollback.
func (t *pgTx) AdvisoryLock(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, LockKey(key)); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

// mapPgError translates driver error codes into the store's sentinels.
// 40001 is serialization_failure; callers are expected to retry from the
// client side.
func mapPgError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return fmt.Errorf("%w: %v", ErrSerialization, err)
		case "23505":
			return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
		}
	}
	return err
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// createTables ensures the schema exists. Unique constraints on nullable
// columns rely on Postgres treating NULLs as distinct, which is what makes
// the active-key convention work.
func (s *PostgresStore) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			isbn TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			genre TEXT NOT NULL,
			sell_cents BIGINT NOT NULL,
			borrow_cents BIGINT NOT NULL,
			stock_cents BIGINT NOT NULL,
			available_copies INTEGER NOT NULL CHECK (available_copies >= 0),
			seeded_copies INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS borrows (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			book_id TEXT NOT NULL REFERENCES books(id),
			borrowed_at TIMESTAMPTZ NOT NULL,
			due_at TIMESTAMPTZ NOT NULL,
			returned_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			active_key TEXT UNIQUE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_borrows_user_status ON borrows (user_id, status)`,
		`CREATE TABLE IF NOT EXISTS purchases (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			book_id TEXT NOT NULL REFERENCES books(id),
			price_cents BIGINT NOT NULL,
			purchased_at TIMESTAMPTZ NOT NULL,
			canceled_at TIMESTAMPTZ,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_user_status ON purchases (user_id, status)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id TEXT PRIMARY KEY,
			milestone_reached BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_movements (
			id TEXT PRIMARY KEY,
			wallet_id TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			type TEXT NOT NULL,
			reason TEXT NOT NULL,
			related_entity TEXT,
			dedupe_key TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_wallet_created ON wallet_movements (wallet_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			run_at TIMESTAMPTZ NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL,
			locked_at TIMESTAMPTZ,
			last_error TEXT,
			completed_at TIMESTAMPTZ,
			active_key TEXT UNIQUE,
			book_id TEXT,
			borrow_id TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status_run_at ON jobs (status, run_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			user_id TEXT,
			book_id TEXT,
			borrow_id TEXT,
			purchase_id TEXT,
			job_id TEXT,
			metadata JSONB,
			dedupe_key TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emails (
			id TEXT PRIMARY KEY,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			type TEXT NOT NULL,
			dedupe_key TEXT NOT NULL UNIQUE,
			sent_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
			key TEXT NOT NULL,
			user_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			response JSONB NOT NULL,
			status_code INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (key, user_id, endpoint)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}
