package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dummy-library/server/internal/library"
	"github.com/dummy-library/server/internal/storage"
)

// ErrInsufficientFunds aborts a restock whose cost exceeds the wallet
// balance. The runner retries it with backoff until funds arrive or the
// attempt budget runs out.
var ErrInsufficientFunds = errors.New("insufficient wallet funds for restock")

type restockPayload struct {
	BookID string `json:"bookId"`
	ISBN   string `json:"isbn"`
}

// Restock tops the book back up to its seeded copy count, paying the
// purchase cost out of the wallet. The expense and the delivered event are
// deduplicated on the job ID, so a lease-expiry rerun after a crash cannot
// charge the wallet twice.
func (h *Handlers) Restock(ctx context.Context, job storage.Job) error {
	var payload restockPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode restock payload: %w", err)
	}

	var chargedCents int64
	err := h.store.Tx(ctx, func(ctx context.Context, tx storage.Tx) error {
		book, err := tx.GetBookByID(ctx, payload.BookID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Book gone; nothing to restock.
				return nil
			}
			return err
		}

		needed := book.SeededCopies - book.AvailableCopies
		if needed <= 0 {
			return nil
		}

		cost := int64(needed) * book.StockCents
		balance, err := tx.WalletBalance(ctx)
		if err != nil {
			return err
		}
		if balance < cost {
			return fmt.Errorf("%w: need %d cents, have %d", ErrInsufficientFunds, cost, balance)
		}

		now := h.now()
		dedupe := "RESTOCK:" + job.ID
		if _, err := tx.AppendMovement(ctx, storage.Movement{
			ID:            uuid.NewString(),
			WalletID:      storage.WalletID,
			AmountCents:   -cost,
			Type:          storage.MovementRestockExpense,
			Reason:        fmt.Sprintf("restock of %d copies of %q", needed, book.Title),
			RelatedEntity: &book.ID,
			DedupeKey:     &dedupe,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		chargedCents = cost

		if err := tx.IncrementAvailableCopies(ctx, book.ID, needed); err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]interface{}{
			"copiesAdded":       needed,
			"totalCostCents":    cost,
			"previousAvailable": book.AvailableCopies,
			"newAvailable":      book.AvailableCopies + needed,
		})
		if err != nil {
			return fmt.Errorf("marshal restock metadata: %w", err)
		}
		eventDedupe := "RESTOCK_DELIVERED:" + job.ID
		if err := tx.AppendEvent(ctx, storage.Event{
			ID:        uuid.NewString(),
			Type:      library.EventRestockDelivered,
			BookID:    &book.ID,
			JobID:     &job.ID,
			Metadata:  metadata,
			DedupeKey: &eventDedupe,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		h.log.Info().
			Str("isbn", book.ISBN).
			Int("copiesAdded", needed).
			Int64("costCents", cost).
			Msg("restock delivered")
		return nil
	})
	if err != nil {
		return err
	}
	if chargedCents > 0 && h.metrics != nil {
		h.metrics.ObserveMovement(string(storage.MovementRestockExpense), -chargedCents)
	}
	return nil
}
