package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const purchaseColumns = `id, user_id, book_id, price_cents, purchased_at, canceled_at, status`

// CreatePurchase inserts a purchase row.
func (p pgQueries) CreatePurchase(ctx context.Context, purchase Purchase) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		purchase.ID,
		purchase.UserID,
		purchase.BookID,
		purchase.PriceCents,
		purchase.PurchasedAt,
		nullTimePtr(purchase.CanceledAt),
		purchase.Status,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// GetPurchaseForUpdate loads a purchase by (id, userId) and row-locks it
// until the enclosing transaction ends. Outside a transaction the FOR
// UPDATE lock is released immediately, so this is only meaningful inside Tx.
func (p pgQueries) GetPurchaseForUpdate(ctx context.Context, id, userID string) (Purchase, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+` FROM purchases
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, id, userID)
	return scanPurchase(row)
}

// CountActivePurchasesForBook counts a user's live purchases of one book.
func (p pgQueries) CountActivePurchasesForBook(ctx context.Context, userID, bookID string) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	err := p.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM purchases
		WHERE user_id = $1 AND book_id = $2 AND status = $3
	`, userID, bookID, PurchaseStatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count purchases for book: %w", err)
	}
	return count, nil
}

// CountActivePurchases counts all of a user's live purchases.
func (p pgQueries) CountActivePurchases(ctx context.Context, userID string) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	err := p.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM purchases
		WHERE user_id = $1 AND status = $2
	`, userID, PurchaseStatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count purchases: %w", err)
	}
	return count, nil
}

// MarkPurchaseCanceled transitions the purchase to its terminal state.
func (p pgQueries) MarkPurchaseCanceled(ctx context.Context, purchaseID string, canceledAt time.Time) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE purchases
		SET status = $1, canceled_at = $2
		WHERE id = $3
	`, PurchaseStatusCanceled, canceledAt, purchaseID)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPurchase(s scanner) (Purchase, error) {
	var purchase Purchase
	var canceledAt sql.NullTime

	err := s.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.BookID,
		&purchase.PriceCents,
		&purchase.PurchasedAt,
		&canceledAt,
		&purchase.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}

	purchase.PurchasedAt = purchase.PurchasedAt.UTC()
	if canceledAt.Valid {
		t := canceledAt.Time.UTC()
		purchase.CanceledAt = &t
	}
	return purchase, nil
}
