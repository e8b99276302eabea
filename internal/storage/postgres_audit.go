package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const eventColumns = `id, type, user_id, book_id, borrow_id, purchase_id, job_id, metadata, dedupe_key, created_at`
const emailColumns = `id, recipient, subject, body, type, dedupe_key, sent_at`

// AppendEvent inserts an audit event. A dedupe-key conflict means the
// logical event was already recorded, which is success. The conflict is
// absorbed with ON CONFLICT rather than by catching the unique violation:
// a failed statement would abort the enclosing transaction.
func (p pgQueries) AppendEvent(ctx context.Context, event Event) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var metadata interface{}
	if len(event.Metadata) > 0 {
		metadata = []byte(event.Metadata)
	}

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dedupe_key) DO NOTHING
	`,
		event.ID,
		event.Type,
		nullString(event.UserID),
		nullString(event.BookID),
		nullString(event.BorrowID),
		nullString(event.PurchaseID),
		nullString(event.JobID),
		metadata,
		nullString(event.DedupeKey),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns an audit page, newest first, plus the total count.
func (p pgQueries) ListEvents(ctx context.Context, page Pagination) ([]Event, int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var total int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	rows, err := p.q.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}

// AppendEmail inserts a simulated email and reports whether a row was
// written; false means the dedupe key already exists. ON CONFLICT keeps a
// replayed send from erroring and aborting the transaction it runs in.
func (p pgQueries) AppendEmail(ctx context.Context, email Email) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING
	`,
		email.ID,
		email.Recipient,
		email.Subject,
		email.Body,
		email.Type,
		email.DedupeKey,
		email.SentAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetEmailByDedupeKey loads an email by its dedupe key.
func (p pgQueries) GetEmailByDedupeKey(ctx context.Context, dedupeKey string) (Email, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `
		SELECT `+emailColumns+` FROM emails WHERE dedupe_key = $1
	`, dedupeKey)
	return scanEmail(row)
}

// ListEmails returns an email page, newest first, plus the total count.
func (p pgQueries) ListEmails(ctx context.Context, page Pagination) ([]Email, int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var total int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count emails: %w", err)
	}

	rows, err := p.q.QueryContext(ctx, `
		SELECT `+emailColumns+` FROM emails
		ORDER BY sent_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query emails: %w", err)
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, total, rows.Err()
}

func scanEvent(s scanner) (Event, error) {
	var event Event
	var userID, bookID, borrowID, purchaseID, jobID, dedupeKey sql.NullString
	var metadata []byte

	err := s.Scan(
		&event.ID,
		&event.Type,
		&userID,
		&bookID,
		&borrowID,
		&purchaseID,
		&jobID,
		&metadata,
		&dedupeKey,
		&event.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}

	event.CreatedAt = event.CreatedAt.UTC()
	event.Metadata = metadata
	if userID.Valid {
		event.UserID = &userID.String
	}
	if bookID.Valid {
		event.BookID = &bookID.String
	}
	if borrowID.Valid {
		event.BorrowID = &borrowID.String
	}
	if purchaseID.Valid {
		event.PurchaseID = &purchaseID.String
	}
	if jobID.Valid {
		event.JobID = &jobID.String
	}
	if dedupeKey.Valid {
		event.DedupeKey = &dedupeKey.String
	}
	return event, nil
}

func scanEmail(s scanner) (Email, error) {
	var email Email
	err := s.Scan(
		&email.ID,
		&email.Recipient,
		&email.Subject,
		&email.Body,
		&email.Type,
		&email.DedupeKey,
		&email.SentAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Email{}, ErrNotFound
		}
		return Email{}, err
	}
	email.SentAt = email.SentAt.UTC()
	return email, nil
}
