package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/dummy-library/server/internal/errors"
	"github.com/dummy-library/server/internal/storage"
)

// Borrow lends one copy of the book to the user, creating the user on first
// contact. Calling it again while the borrow is active returns the existing
// borrow unchanged.
func (s *Service) Borrow(ctx context.Context, userEmail, isbn string) (BorrowResult, error) {
	var result BorrowResult

	err := s.store.Tx(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Serialize all of this user's state changes.
		if err := tx.AdvisoryLock(ctx, userEmail); err != nil {
			return err
		}

		user, err := tx.UpsertUserByEmail(ctx, userEmail)
		if err != nil {
			return err
		}

		book, err := tx.GetBookByISBN(ctx, isbn)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.ErrCodeBookNotFound, fmt.Sprintf("book with ISBN %s not found", isbn))
			}
			return err
		}

		// Idempotent success: the user already holds this book.
		existing, err := tx.GetActiveBorrow(ctx, user.ID, book.ID)
		if err == nil {
			result = BorrowResult{Borrow: existing, Book: book, IsExisting: true}
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		active, err := tx.CountActiveBorrows(ctx, user.ID)
		if err != nil {
			return err
		}
		if active >= MaxActiveBorrows {
			return apperrors.New(apperrors.ErrCodeBorrowLimitExceeded,
				fmt.Sprintf("borrow limit of %d active borrows reached", MaxActiveBorrows))
		}

		taken, err := tx.DecrementAvailableCopies(ctx, isbn)
		if err != nil {
			return err
		}
		if !taken {
			return apperrors.New(apperrors.ErrCodeNoCopiesAvailable, "no copies available")
		}
		book.AvailableCopies--

		now := s.now()
		activeKey := user.ID + ":" + book.ID
		borrow := storage.Borrow{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			BookID:     book.ID,
			BorrowedAt: now,
			DueAt:      now.Add(BorrowPeriod),
			Status:     storage.BorrowStatusActive,
			ActiveKey:  &activeKey,
		}
		if err := tx.CreateBorrow(ctx, borrow); err != nil {
			return err
		}

		dedupe := "BORROW:" + borrow.ID
		if _, err := tx.AppendMovement(ctx, storage.Movement{
			ID:            uuid.NewString(),
			WalletID:      storage.WalletID,
			AmountCents:   book.BorrowCents,
			Type:          storage.MovementBorrowIncome,
			Reason:        fmt.Sprintf("borrow income for %q", book.Title),
			RelatedEntity: &borrow.ID,
			DedupeKey:     &dedupe,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if err := tx.AppendEvent(ctx, storage.Event{
			ID:        uuid.NewString(),
			Type:      EventBorrow,
			UserID:    &user.ID,
			BookID:    &book.ID,
			BorrowID:  &borrow.ID,
			DedupeKey: &dedupe,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		// Reminder fires at the due time; the job slot is released when the
		// borrow is returned.
		payload, err := json.Marshal(map[string]string{
			"borrowId":  borrow.ID,
			"userEmail": user.Email,
		})
		if err != nil {
			return fmt.Errorf("marshal reminder payload: %w", err)
		}
		reminderKey := "REMINDER:" + borrow.ID
		if err := tx.CreateJob(ctx, storage.Job{
			ID:          uuid.NewString(),
			Type:        storage.JobTypeReminder,
			Status:      storage.JobStatusPending,
			Payload:     payload,
			RunAt:       borrow.DueAt,
			MaxAttempts: s.jobMaxAttempts,
			ActiveKey:   &reminderKey,
			BookID:      &book.ID,
			BorrowID:    &borrow.ID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		if book.AvailableCopies == 1 {
			if err := s.watchStock(ctx, tx, book); err != nil {
				return err
			}
		}
		if err := s.checkMilestone(ctx, tx); err != nil {
			return err
		}

		result = BorrowResult{Borrow: borrow, Book: book}
		return nil
	})
	if err != nil {
		return BorrowResult{}, err
	}

	if !result.IsExisting {
		s.observeMovement(storage.MovementBorrowIncome, result.Book.BorrowCents)
		s.log.Info().
			Str("isbn", isbn).
			Str("borrow_id", result.Borrow.ID).
			Msg("book borrowed")
	}
	return result, nil
}

// Return gives back an active borrow. Returning a book that was already
// returned yields the most recent terminal borrow as an idempotent success.
func (s *Service) Return(ctx context.Context, userEmail, isbn string) (BorrowResult, error) {
	var result BorrowResult

	err := s.store.Tx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.AdvisoryLock(ctx, userEmail); err != nil {
			return err
		}

		user, err := tx.GetUserByEmail(ctx, userEmail)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.ErrCodeBorrowNotFound, "no borrow found for this user")
			}
			return err
		}

		book, err := tx.GetBookByISBN(ctx, isbn)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.ErrCodeBookNotFound, fmt.Sprintf("book with ISBN %s not found", isbn))
			}
			return err
		}

		borrow, err := tx.GetActiveBorrow(ctx, user.ID, book.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			// Idempotent success: already returned.
			returned, err := tx.GetLatestReturnedBorrow(ctx, user.ID, book.ID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return apperrors.New(apperrors.ErrCodeBorrowNotFound, "no borrow found for this book")
				}
				return err
			}
			result = BorrowResult{Borrow: returned, Book: book, IsExisting: true}
			return nil
		}

		now := s.now()
		if err := tx.MarkBorrowReturned(ctx, borrow.ID, now); err != nil {
			return err
		}
		borrow.Status = storage.BorrowStatusReturned
		borrow.ReturnedAt = &now
		borrow.ActiveKey = nil

		if err := tx.IncrementAvailableCopies(ctx, book.ID, 1); err != nil {
			return err
		}
		book.AvailableCopies++

		if err := tx.CancelActiveReminderJob(ctx, borrow.ID); err != nil {
			return err
		}

		dedupe := "RETURN:" + borrow.ID
		if err := tx.AppendEvent(ctx, storage.Event{
			ID:        uuid.NewString(),
			Type:      EventReturn,
			UserID:    &user.ID,
			BookID:    &book.ID,
			BorrowID:  &borrow.ID,
			DedupeKey: &dedupe,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		result = BorrowResult{Borrow: borrow, Book: book}
		return nil
	})
	if err != nil {
		return BorrowResult{}, err
	}

	if !result.IsExisting {
		s.log.Info().
			Str("isbn", isbn).
			Str("borrow_id", result.Borrow.ID).
			Msg("book returned")
	}
	return result, nil
}
