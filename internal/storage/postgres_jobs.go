package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const jobColumns = `id, type, status, payload, run_at, attempts, max_attempts, locked_at, last_error, completed_at, active_key, book_id, borrow_id, created_at`

// CreateJob inserts a job row. A duplicate active key means the logical
// slot is already held by a live job; ON CONFLICT reports that through the
// affected-row count instead of a statement error, so callers inside a
// transaction can treat it as a benign race without aborting the
// transaction.
func (p pgQueries) CreateJob(ctx context.Context, job Job) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`,
		job.ID,
		job.Type,
		job.Status,
		[]byte(job.Payload),
		job.RunAt,
		job.Attempts,
		job.MaxAttempts,
		nullTimePtr(job.LockedAt),
		nullString(job.LastError),
		nullTimePtr(job.CompletedAt),
		nullString(job.ActiveKey),
		nullString(job.BookID),
		nullString(job.BorrowID),
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: job %s", ErrDuplicateKey, job.ID)
	}
	return nil
}

// GetJobByID loads a job by id.
func (p pgQueries) GetJobByID(ctx context.Context, id string) (Job, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// HasActiveJobForBook reports whether a schedulable job of the given type
// already references the book.
func (p pgQueries) HasActiveJobForBook(ctx context.Context, bookID string, jobType JobType) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var exists bool
	err := p.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE book_id = $1 AND type = $2 AND active_key IS NOT NULL
		)
	`, bookID, jobType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query active job: %w", err)
	}
	return exists, nil
}

// DueJobs returns schedulable jobs ordered by run time: PENDING rows whose
// run time has elapsed, plus PROCESSING rows whose lease has expired. Rows
// out of attempts are skipped here and eventually marked FAILED by the
// runner.
func (p pgQueries) DueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	rows, err := p.q.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE active_key IS NOT NULL
		  AND attempts < max_attempts
		  AND ( (status = $1 AND run_at <= $3)
		     OR (status = $2 AND locked_at < $4) )
		ORDER BY run_at ASC
		LIMIT $5
	`, JobStatusPending, JobStatusProcessing, now, now.Add(-lease), limit)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimJob atomically takes a due job. The conditional WHERE repeats the
// due predicate so that of N workers racing on one row, exactly one sees a
// non-zero affected count.
func (p pgQueries) ClaimJob(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, locked_at = $2, attempts = attempts + 1
		WHERE id = $3
		  AND active_key IS NOT NULL
		  AND (status = $4 OR (status = $1 AND locked_at < $5))
	`, JobStatusProcessing, now, id, JobStatusPending, now.Add(-lease))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return affected > 0, nil
}

// CompleteJob records handler success and releases the logical slot.
func (p pgQueries) CompleteJob(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, active_key = NULL, completed_at = $2, last_error = NULL, locked_at = NULL
		WHERE id = $3
	`, JobStatusCompleted, now, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireAffected(result)
}

// FailJob records terminal failure and releases the logical slot.
func (p pgQueries) FailJob(ctx context.Context, id string, errMsg string, now time.Time) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, active_key = NULL, completed_at = $2, last_error = $3, locked_at = NULL
		WHERE id = $4
	`, JobStatusFailed, now, errMsg, id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireAffected(result)
}

// RescheduleJob returns a claimed job to PENDING at a later run time. The
// active key is left untouched so the logical slot stays held.
func (p pgQueries) RescheduleJob(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, locked_at = NULL, run_at = $2, last_error = $3
		WHERE id = $4
	`, JobStatusPending, runAt, errMsg, id)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return requireAffected(result)
}

// CancelActiveReminderJob cancels the live REMINDER job for a borrow. A
// missing row is fine: the reminder may already have fired or been canceled.
func (p pgQueries) CancelActiveReminderJob(ctx context.Context, borrowID string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, active_key = NULL, completed_at = $2, locked_at = NULL
		WHERE borrow_id = $3 AND type = $4 AND active_key IS NOT NULL
	`, JobStatusCanceled, time.Now().UTC(), borrowID, JobTypeReminder)
	if err != nil {
		return fmt.Errorf("cancel reminder job: %w", err)
	}
	return nil
}

// ResetJobForRetry returns a terminal job to PENDING, recomputing its
// active key from the referenced entity. Fails when a live job already
// holds the slot.
func (p pgQueries) ResetJobForRetry(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1,
		    active_key = CASE WHEN type = $2 THEN 'RESTOCK:' || book_id ELSE 'REMINDER:' || borrow_id END,
		    attempts = 0, run_at = $3, locked_at = NULL, last_error = NULL, completed_at = NULL
		WHERE id = $4 AND status IN ($5, $6)
	`, JobStatusPending, JobTypeRestock, now, id, JobStatusFailed, JobStatusCanceled)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: job slot already held", ErrDuplicateKey)
		}
		return fmt.Errorf("reset job: %w", err)
	}
	return requireAffected(result)
}

// ListJobs returns a job page, newest first, plus the unpaginated match count.
func (p pgQueries) ListJobs(ctx context.Context, filter JobFilter) ([]Job, int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	where := ``
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = ` WHERE status = ` + arg(filter.Status)
	}

	var total int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(filter.Page.Limit()) +
		` OFFSET ` + arg(filter.Page.Offset())

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func scanJob(s scanner) (Job, error) {
	var job Job
	var payload []byte
	var lockedAt, completedAt sql.NullTime
	var lastError, activeKey, bookID, borrowID sql.NullString

	err := s.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&payload,
		&job.RunAt,
		&job.Attempts,
		&job.MaxAttempts,
		&lockedAt,
		&lastError,
		&completedAt,
		&activeKey,
		&bookID,
		&borrowID,
		&job.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}

	job.Payload = payload
	job.RunAt = job.RunAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	if lockedAt.Valid {
		t := lockedAt.Time.UTC()
		job.LockedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	if activeKey.Valid {
		job.ActiveKey = &activeKey.String
	}
	if bookID.Valid {
		job.BookID = &bookID.String
	}
	if borrowID.Valid {
		job.BorrowID = &borrowID.String
	}
	return job, nil
}

// requireAffected converts a zero affected-row count into ErrNotFound.
func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
