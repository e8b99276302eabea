package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// GetIdempotencyRecord loads a cached response cell.
func (p pgQueries) GetIdempotencyRecord(ctx context.Context, key, userID, endpoint string) (IdempotencyRecord, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var record IdempotencyRecord
	var response []byte
	err := p.q.QueryRowContext(ctx, `
		SELECT key, user_id, endpoint, response, status_code, created_at, expires_at
		FROM idempotency_keys
		WHERE key = $1 AND user_id = $2 AND endpoint = $3
	`, key, userID, endpoint).Scan(
		&record.Key,
		&record.UserID,
		&record.Endpoint,
		&response,
		&record.StatusCode,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return IdempotencyRecord{}, ErrNotFound
		}
		return IdempotencyRecord{}, fmt.Errorf("query idempotency record: %w", err)
	}

	record.Response = response
	record.CreatedAt = record.CreatedAt.UTC()
	record.ExpiresAt = record.ExpiresAt.UTC()
	return record, nil
}

// SaveIdempotencyRecord stores a response cell, replacing any previous cell
// for the same (key, user, endpoint).
func (p pgQueries) SaveIdempotencyRecord(ctx context.Context, record IdempotencyRecord) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, user_id, endpoint, response, status_code, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key, user_id, endpoint) DO UPDATE
		SET response = EXCLUDED.response,
		    status_code = EXCLUDED.status_code,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at
	`,
		record.Key,
		record.UserID,
		record.Endpoint,
		[]byte(record.Response),
		record.StatusCode,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// DeleteIdempotencyRecord removes an expired cell.
func (p pgQueries) DeleteIdempotencyRecord(ctx context.Context, key, userID, endpoint string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND user_id = $2 AND endpoint = $3
	`, key, userID, endpoint)
	if err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}
