package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const movementColumns = `id, wallet_id, amount_cents, type, reason, related_entity, dedupe_key, created_at`

// EnsureWallet creates the singleton wallet row if it does not exist.
func (p pgQueries) EnsureWallet(ctx context.Context) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO wallets (id, milestone_reached)
		VALUES ($1, FALSE)
		ON CONFLICT (id) DO NOTHING
	`, WalletID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// GetWallet loads the singleton wallet row.
func (p pgQueries) GetWallet(ctx context.Context) (Wallet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var wallet Wallet
	err := p.q.QueryRowContext(ctx, `
		SELECT id, milestone_reached FROM wallets WHERE id = $1
	`, WalletID).Scan(&wallet.ID, &wallet.MilestoneReached)
	if err != nil {
		if err == sql.ErrNoRows {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, fmt.Errorf("query wallet: %w", err)
	}
	return wallet, nil
}

// SetMilestoneReached flips the one-shot milestone flag. The flag only ever
// moves false to true.
func (p pgQueries) SetMilestoneReached(ctx context.Context) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		UPDATE wallets SET milestone_reached = TRUE WHERE id = $1
	`, WalletID)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}

// WalletBalance derives the balance as the sum of all ledger rows.
func (p pgQueries) WalletBalance(ctx context.Context) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var balance int64
	err := p.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM wallet_movements WHERE wallet_id = $1
	`, WalletID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum movements: %w", err)
	}
	return balance, nil
}

// AppendMovement inserts a ledger row. A dedupe-key conflict returns the
// pre-existing row instead of an error, so retried logical events credit or
// debit at most once. The conflict is absorbed with ON CONFLICT so the
// statement never fails, which would abort the enclosing transaction and
// poison the read-back.
func (p pgQueries) AppendMovement(ctx context.Context, movement Movement) (Movement, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		INSERT INTO wallet_movements (`+movementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) DO NOTHING
	`,
		movement.ID,
		movement.WalletID,
		movement.AmountCents,
		movement.Type,
		movement.Reason,
		nullString(movement.RelatedEntity),
		nullString(movement.DedupeKey),
		movement.CreatedAt,
	)
	if err != nil {
		return Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Movement{}, fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 && movement.DedupeKey != nil {
		return p.getMovementByDedupeKey(ctx, *movement.DedupeKey)
	}
	return movement, nil
}

func (p pgQueries) getMovementByDedupeKey(ctx context.Context, dedupeKey string) (Movement, error) {
	row := p.q.QueryRowContext(ctx, `
		SELECT `+movementColumns+` FROM wallet_movements WHERE dedupe_key = $1
	`, dedupeKey)
	return scanMovement(row)
}

// ListMovements returns a ledger page, newest first, plus the unpaginated
// match count.
func (p pgQueries) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	where := ` WHERE wallet_id = $1`
	args := []interface{}{WalletID}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filter.Kind {
	case "credit":
		where += ` AND amount_cents > 0`
	case "debit":
		where += ` AND amount_cents < 0`
	}
	if filter.From != nil {
		where += ` AND created_at >= ` + arg(*filter.From)
	}
	if filter.To != nil {
		where += ` AND created_at <= ` + arg(*filter.To)
	}

	var total int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_movements`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	query := `SELECT ` + movementColumns + ` FROM wallet_movements` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(filter.Page.Limit()) +
		` OFFSET ` + arg(filter.Page.Offset())

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, movement)
	}
	return movements, total, rows.Err()
}

func scanMovement(s scanner) (Movement, error) {
	var movement Movement
	var relatedEntity, dedupeKey sql.NullString
	var createdAt time.Time

	err := s.Scan(
		&movement.ID,
		&movement.WalletID,
		&movement.AmountCents,
		&movement.Type,
		&movement.Reason,
		&relatedEntity,
		&dedupeKey,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Movement{}, ErrNotFound
		}
		return Movement{}, err
	}

	movement.CreatedAt = createdAt.UTC()
	if relatedEntity.Valid {
		movement.RelatedEntity = &relatedEntity.String
	}
	if dedupeKey.Valid {
		movement.DedupeKey = &dedupeKey.String
	}
	return movement, nil
}

// nullString converts a *string to sql.NullString.
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTimePtr converts a *time.Time to sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
