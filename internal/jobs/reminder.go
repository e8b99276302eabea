package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dummy-library/server/internal/library"
	"github.com/dummy-library/server/internal/logger"
	"github.com/dummy-library/server/internal/storage"
)

type reminderPayload struct {
	BorrowID  string `json:"borrowId"`
	UserEmail string `json:"userEmail"`
}

// Reminder emails the user when a borrow reaches its due time. A borrow
// already returned makes this a no-op, and the email is deduplicated on the
// borrow ID so a rerun cannot send twice.
func (h *Handlers) Reminder(ctx context.Context, job storage.Job) error {
	var payload reminderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode reminder payload: %w", err)
	}

	return h.store.Tx(ctx, func(ctx context.Context, tx storage.Tx) error {
		borrow, err := tx.GetBorrowByID(ctx, payload.BorrowID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		// Returned between scheduling and firing.
		if borrow.Status != storage.BorrowStatusActive {
			return nil
		}

		book, err := tx.GetBookByID(ctx, borrow.BookID)
		if err != nil {
			return err
		}

		now := h.now()
		sent, err := tx.AppendEmail(ctx, storage.Email{
			ID:        uuid.NewString(),
			Recipient: payload.UserEmail,
			Subject:   fmt.Sprintf("Reminder: %q is due", book.Title),
			Body: fmt.Sprintf("Your borrow of %q (ISBN %s) was due at %s. Please return it.",
				book.Title, book.ISBN, borrow.DueAt.Format("2006-01-02 15:04 MST")),
			Type:      storage.EmailTypeReminder,
			DedupeKey: "REMINDER:" + borrow.ID,
			SentAt:    now,
		})
		if err != nil {
			return err
		}
		if !sent {
			return nil
		}

		metadata, err := json.Marshal(map[string]interface{}{
			"userEmail": payload.UserEmail,
			"bookTitle": book.Title,
			"dueAt":     borrow.DueAt,
		})
		if err != nil {
			return fmt.Errorf("marshal reminder metadata: %w", err)
		}
		dedupe := "REMINDER_SENT:" + borrow.ID
		if err := tx.AppendEvent(ctx, storage.Event{
			ID:        uuid.NewString(),
			Type:      library.EventReminderSent,
			UserID:    &borrow.UserID,
			BookID:    &book.ID,
			BorrowID:  &borrow.ID,
			JobID:     &job.ID,
			Metadata:  metadata,
			DedupeKey: &dedupe,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		h.log.Info().
			Str("borrowID", borrow.ID).
			Str("recipient", logger.RedactEmail(payload.UserEmail)).
			Msg("due reminder sent")
		return nil
	})
}
