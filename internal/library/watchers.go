package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dummy-library/server/internal/storage"
)

// watchStock runs inside the triggering transaction when a decrement leaves
// exactly one copy on the shelf. It schedules a restock an hour out, emits
// the low-stock email and records both audit events. A restock already
// scheduled for the book makes this a no-op.
func (s *Service) watchStock(ctx context.Context, tx storage.Tx, book storage.Book) error {
	scheduled, err := tx.HasActiveJobForBook(ctx, book.ID, storage.JobTypeRestock)
	if err != nil {
		return err
	}
	if scheduled {
		return nil
	}

	now := s.now()
	payload, err := json.Marshal(map[string]string{
		"bookId": book.ID,
		"isbn":   book.ISBN,
	})
	if err != nil {
		return fmt.Errorf("marshal restock payload: %w", err)
	}

	activeKey := "RESTOCK:" + book.ID
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        storage.JobTypeRestock,
		Status:      storage.JobStatusPending,
		Payload:     payload,
		RunAt:       now.Add(RestockDelay),
		MaxAttempts: s.jobMaxAttempts,
		ActiveKey:   &activeKey,
		BookID:      &book.ID,
		CreatedAt:   now,
	}
	if err := tx.CreateJob(ctx, job); err != nil {
		// Another transaction won the slot between the check and the insert.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return err
	}

	if _, err := tx.AppendEmail(ctx, storage.Email{
		ID:        uuid.NewString(),
		Recipient: SupplyEmail,
		Subject:   fmt.Sprintf("Low stock: %s", book.Title),
		Body: fmt.Sprintf("Only one copy of %q (ISBN %s) remains. A restock of %d copies is scheduled for %s.",
			book.Title, book.ISBN, book.SeededCopies-book.AvailableCopies, job.RunAt.Format("2006-01-02 15:04 MST")),
		Type:      storage.EmailTypeLowStock,
		DedupeKey: fmt.Sprintf("LOW_STOCK:%s:%s", book.ISBN, job.ID),
		SentAt:    now,
	}); err != nil {
		return err
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"isbn":            book.ISBN,
		"availableCopies": book.AvailableCopies,
	})
	if err != nil {
		return fmt.Errorf("marshal low stock metadata: %w", err)
	}

	emailDedupe := "LOW_STOCK_EMAIL:" + job.ID
	if err := tx.AppendEvent(ctx, storage.Event{
		ID:        uuid.NewString(),
		Type:      EventLowStockEmail,
		BookID:    &book.ID,
		JobID:     &job.ID,
		Metadata:  metadata,
		DedupeKey: &emailDedupe,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	scheduledDedupe := "RESTOCK_SCHEDULED:" + job.ID
	if err := tx.AppendEvent(ctx, storage.Event{
		ID:        uuid.NewString(),
		Type:      EventRestockScheduled,
		BookID:    &book.ID,
		JobID:     &job.ID,
		Metadata:  metadata,
		DedupeKey: &scheduledDedupe,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	s.log.Info().
		Str("isbn", book.ISBN).
		Str("job_id", job.ID).
		Msg("restock scheduled for low stock")
	return nil
}

// checkMilestone runs inside every income-producing transaction. When the
// derived balance first exceeds the threshold it flips the one-shot wallet
// flag and emits the milestone email and event. The flag only ever moves
// false to true.
func (s *Service) checkMilestone(ctx context.Context, tx storage.Tx) error {
	wallet, err := tx.GetWallet(ctx)
	if err != nil {
		return err
	}
	if wallet.MilestoneReached {
		return nil
	}

	balance, err := tx.WalletBalance(ctx)
	if err != nil {
		return err
	}
	if balance <= MilestoneCents {
		return nil
	}

	if err := tx.SetMilestoneReached(ctx); err != nil {
		return err
	}

	now := s.now()
	if _, err := tx.AppendEmail(ctx, storage.Email{
		ID:        uuid.NewString(),
		Recipient: ManagementEmail,
		Subject:   "Library wallet passed $2000",
		Body: fmt.Sprintf("The library wallet balance is now %d cents, crossing the $2000 milestone.",
			balance),
		Type:      storage.EmailTypeMilestone,
		DedupeKey: "MILESTONE:2000",
		SentAt:    now,
	}); err != nil {
		return err
	}

	dedupe := "MILESTONE_EMAIL:2000"
	metadata, err := json.Marshal(map[string]interface{}{"balanceCents": balance})
	if err != nil {
		return fmt.Errorf("marshal milestone metadata: %w", err)
	}
	if err := tx.AppendEvent(ctx, storage.Event{
		ID:        uuid.NewString(),
		Type:      EventMilestoneEmail,
		Metadata:  metadata,
		DedupeKey: &dedupe,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	s.log.Info().Int64("balance_cents", balance).Msg("wallet milestone reached")
	return nil
}
