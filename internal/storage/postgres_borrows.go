package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const borrowColumns = `id, user_id, book_id, borrowed_at, due_at, returned_at, status, active_key`

// CreateBorrow inserts a borrow row. A duplicate active key means another
// live borrow already holds the (user, book) slot.
func (p pgQueries) CreateBorrow(ctx context.Context, borrow Borrow) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO borrows (`+borrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		borrow.ID,
		borrow.UserID,
		borrow.BookID,
		borrow.BorrowedAt,
		borrow.DueAt,
		nullTimePtr(borrow.ReturnedAt),
		borrow.Status,
		nullString(borrow.ActiveKey),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: borrow %s", ErrDuplicateKey, borrow.ID)
		}
		return fmt.Errorf("insert borrow: %w", err)
	}
	return nil
}

// GetBorrowByID loads a borrow by id.
func (p pgQueries) GetBorrowByID(ctx context.Context, id string) (Borrow, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `SELECT `+borrowColumns+` FROM borrows WHERE id = $1`, id)
	return scanBorrow(row)
}

// GetActiveBorrow finds the live borrow for (user, book), if any.
func (p pgQueries) GetActiveBorrow(ctx context.Context, userID, bookID string) (Borrow, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `
		SELECT `+borrowColumns+` FROM borrows
		WHERE user_id = $1 AND book_id = $2 AND status = $3
	`, userID, bookID, BorrowStatusActive)
	return scanBorrow(row)
}

// GetLatestReturnedBorrow finds the most recently returned borrow for
// (user, book). Used for the idempotent return path.
func (p pgQueries) GetLatestReturnedBorrow(ctx context.Context, userID, bookID string) (Borrow, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `
		SELECT `+borrowColumns+` FROM borrows
		WHERE user_id = $1 AND book_id = $2 AND status = $3
		ORDER BY returned_at DESC
		LIMIT 1
	`, userID, bookID, BorrowStatusReturned)
	return scanBorrow(row)
}

// CountActiveBorrows counts a user's live borrows.
func (p pgQueries) CountActiveBorrows(ctx context.Context, userID string) (int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var count int
	err := p.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM borrows WHERE user_id = $1 AND status = $2
	`, userID, BorrowStatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count borrows: %w", err)
	}
	return count, nil
}

// MarkBorrowReturned transitions the borrow to its terminal state and frees
// the active-key slot.
func (p pgQueries) MarkBorrowReturned(ctx context.Context, borrowID string, returnedAt time.Time) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE borrows
		SET status = $1, returned_at = $2, active_key = NULL
		WHERE id = $3
	`, BorrowStatusReturned, returnedAt, borrowID)
	if err != nil {
		return fmt.Errorf("update borrow: %w", err)
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

func scanBorrow(s scanner) (Borrow, error) {
	var borrow Borrow
	var returnedAt sql.NullTime
	var activeKey sql.NullString

	err := s.Scan(
		&borrow.ID,
		&borrow.UserID,
		&borrow.BookID,
		&borrow.BorrowedAt,
		&borrow.DueAt,
		&returnedAt,
		&borrow.Status,
		&activeKey,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Borrow{}, ErrNotFound
		}
		return Borrow{}, err
	}

	borrow.BorrowedAt = borrow.BorrowedAt.UTC()
	borrow.DueAt = borrow.DueAt.UTC()
	if returnedAt.Valid {
		t := returnedAt.Time.UTC()
		borrow.ReturnedAt = &t
	}
	if activeKey.Valid {
		borrow.ActiveKey = &activeKey.String
	}
	return borrow, nil
}
