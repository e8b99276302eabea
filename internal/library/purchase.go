package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/dummy-library/server/internal/errors"
	"github.com/dummy-library/server/internal/storage"
)

// Buy sells one copy of the book to the user. The transport layer
// additionally deduplicates buys through the idempotency cache; this engine
// enforces the per-book and total purchase limits.
func (s *Service) Buy(ctx context.Context, userEmail, isbn string) (PurchaseResult, error) {
	var result PurchaseResult

	err := s.store.Tx(ctx, func(ctx context.Context, tx storage.Tx) error {
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

		forBook, err := tx.CountActivePurchasesForBook(ctx, user.ID, book.ID)
		if err != nil {
			return err
		}
		if forBook >= MaxActivePurchasesPerBook {
			return apperrors.New(apperrors.ErrCodeBookBuyLimitExceeded,
				fmt.Sprintf("limit of %d copies per book reached", MaxActivePurchasesPerBook))
		}

		total, err := tx.CountActivePurchases(ctx, user.ID)
		if err != nil {
			return err
		}
		if total >= MaxActivePurchases {
			return apperrors.New(apperrors.ErrCodeTotalBuyLimitExceeded,
				fmt.Sprintf("limit of %d total purchases reached", MaxActivePurchases))
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
		purchase := storage.Purchase{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			BookID:      book.ID,
			PriceCents:  book.SellCents,
			PurchasedAt: now,
			Status:      storage.PurchaseStatusActive,
		}
		if err := tx.CreatePurchase(ctx, purchase); err != nil {
			return err
		}

		dedupe := "BUY:" + purchase.ID
		if _, err := tx.AppendMovement(ctx, storage.Movement{
			ID:            uuid.NewString(),
			WalletID:      storage.WalletID,
			AmountCents:   book.SellCents,
			Type:          storage.MovementBuyIncome,
			Reason:        fmt.Sprintf("sale of %q", book.Title),
			RelatedEntity: &purchase.ID,
			DedupeKey:     &dedupe,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if err := tx.AppendEvent(ctx, storage.Event{
			ID:         uuid.NewString(),
			Type:       EventBuy,
			UserID:     &user.ID,
			BookID:     &book.ID,
			PurchaseID: &purchase.ID,
			DedupeKey:  &dedupe,
			CreatedAt:  now,
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

		result = PurchaseResult{Purchase: purchase, Book: book}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	s.observeMovement(storage.MovementBuyIncome, result.Purchase.PriceCents)
	s.log.Info().
		Str("isbn", isbn).
		Str("purchase_id", result.Purchase.ID).
		Int64("price_cents", result.Purchase.PriceCents).
		Msg("book sold")
	return result, nil
}

// Cancel reverses a purchase made within the cancellation window, refunding
// the price and returning the copy to the shelf. Canceling an already
// canceled purchase is an idempotent success.
func (s *Service) Cancel(ctx context.Context, userEmail, purchaseID string) (PurchaseResult, error) {
	var result PurchaseResult

	err := s.store.Tx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.AdvisoryLock(ctx, userEmail); err != nil {
			return err
		}

		user, err := tx.GetUserByEmail(ctx, userEmail)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.ErrCodeUserNotFound, "user not found")
			}
			return err
		}

		purchase, err := tx.GetPurchaseForUpdate(ctx, purchaseID, user.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.New(apperrors.ErrCodePurchaseNotFound, "purchase not found")
			}
			return err
		}

		book, err := tx.GetBookByID(ctx, purchase.BookID)
		if err != nil {
			return err
		}

		if purchase.Status == storage.PurchaseStatusCanceled {
			result = PurchaseResult{Purchase: purchase, Book: book, IsExisting: true}
			return nil
		}

		now := s.now()
		if now.Sub(purchase.PurchasedAt) > CancelWindow {
			return apperrors.New(apperrors.ErrCodeCancellationWindowExpired,
				fmt.Sprintf("purchases can only be canceled within %s", CancelWindow))
		}

		if err := tx.MarkPurchaseCanceled(ctx, purchase.ID, now); err != nil {
			return err
		}
		purchase.Status = storage.PurchaseStatusCanceled
		purchase.CanceledAt = &now

		dedupe := "CANCEL:" + purchase.ID
		if _, err := tx.AppendMovement(ctx, storage.Movement{
			ID:            uuid.NewString(),
			WalletID:      storage.WalletID,
			AmountCents:   -purchase.PriceCents,
			Type:          storage.MovementCancelRefund,
			Reason:        fmt.Sprintf("refund for canceled purchase of %q", book.Title),
			RelatedEntity: &purchase.ID,
			DedupeKey:     &dedupe,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		if err := tx.IncrementAvailableCopies(ctx, book.ID, 1); err != nil {
			return err
		}
		book.AvailableCopies++

		eventDedupe := "CANCEL_BUY:" + purchase.ID
		if err := tx.AppendEvent(ctx, storage.Event{
			ID:         uuid.NewString(),
			Type:       EventCancelBuy,
			UserID:     &user.ID,
			BookID:     &book.ID,
			PurchaseID: &purchase.ID,
			DedupeKey:  &eventDedupe,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		result = PurchaseResult{Purchase: purchase, Book: book}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}

	if !result.IsExisting {
		s.observeMovement(storage.MovementCancelRefund, -result.Purchase.PriceCents)
		s.log.Info().
			Str("purchase_id", result.Purchase.ID).
			Msg("purchase canceled")
	}
	return result, nil
}
