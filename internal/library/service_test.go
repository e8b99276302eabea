package library

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	apperrors "github.com/dummy-library/server/internal/errors"
	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.EnsureWallet(context.Background()); err != nil {
		t.Fatalf("EnsureWallet failed: %v", err)
	}
	return NewService(store, zerolog.Nop()), store
}

func seedBook(t *testing.T, store *storage.MemoryStore, isbn string, copies int) storage.Book {
	t.Helper()
	book := storage.Book{
		ID:              uuid.NewString(),
		ISBN:            isbn,
		Title:           "Book " + isbn,
		Author:          "Author",
		Genre:           "fiction",
		SellCents:       4500,
		BorrowCents:     500,
		StockCents:      2000,
		AvailableCopies: copies,
		SeededCopies:    copies,
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("CreateBook failed: %v", err)
	}
	return book
}

func domainCode(t *testing.T, err error) apperrors.ErrorCode {
	t.Helper()
	domain, ok := apperrors.AsDomain(err)
	if !ok {
		t.Fatalf("expected domain error, got %v", err)
	}
	return domain.Code
}

func TestBorrowCreatesSideEffects(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 5)

	result, err := svc.Borrow(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	if result.IsExisting {
		t.Error("fresh borrow flagged as existing")
	}
	if result.Borrow.Status != storage.BorrowStatusActive {
		t.Errorf("status = %s, want ACTIVE", result.Borrow.Status)
	}
	if got := result.Borrow.DueAt.Sub(result.Borrow.BorrowedAt); got != BorrowPeriod {
		t.Errorf("due period = %v, want %v", got, BorrowPeriod)
	}

	got, err := store.GetBookByISBN(ctx, book.ISBN)
	if err != nil {
		t.Fatalf("GetBookByISBN failed: %v", err)
	}
	if got.AvailableCopies != 4 {
		t.Errorf("available copies = %d, want 4", got.AvailableCopies)
	}

	balance, _ := store.WalletBalance(ctx)
	if balance != book.BorrowCents {
		t.Errorf("balance = %d, want %d", balance, book.BorrowCents)
	}

	// A reminder job is scheduled for the due time, slotted on the borrow.
	jobs, _, err := store.ListJobs(ctx, storage.JobFilter{Page: storage.NewPagination(1, 10)})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Type != storage.JobTypeReminder || job.Status != storage.JobStatusPending {
		t.Errorf("job = %s/%s, want REMINDER/PENDING", job.Type, job.Status)
	}
	if !job.RunAt.Equal(result.Borrow.DueAt) {
		t.Errorf("job run_at = %v, want due time %v", job.RunAt, result.Borrow.DueAt)
	}
	if job.ActiveKey == nil || *job.ActiveKey != "REMINDER:"+result.Borrow.ID {
		t.Errorf("job active key = %v", job.ActiveKey)
	}
}

func TestBorrowIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 5)

	first, err := svc.Borrow(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("first borrow failed: %v", err)
	}
	second, err := svc.Borrow(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("second borrow failed: %v", err)
	}
	if !second.IsExisting {
		t.Error("second borrow not flagged as existing")
	}
	if second.Borrow.ID != first.Borrow.ID {
		t.Errorf("second borrow id %s, want %s", second.Borrow.ID, first.Borrow.ID)
	}

	got, _ := store.GetBookByISBN(ctx, book.ISBN)
	if got.AvailableCopies != 4 {
		t.Errorf("available copies = %d, want 4 (second borrow must not decrement)", got.AvailableCopies)
	}
	balance, _ := store.WalletBalance(ctx)
	if balance != book.BorrowCents {
		t.Errorf("balance = %d, want single income %d", balance, book.BorrowCents)
	}
}

func TestBorrowLimit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		seedBook(t, store, fmt.Sprintf("isbn-%d", i), 5)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Borrow(ctx, "alice@example.com", fmt.Sprintf("isbn-%d", i)); err != nil {
			t.Fatalf("borrow %d failed: %v", i, err)
		}
	}
	_, err := svc.Borrow(ctx, "alice@example.com", "isbn-3")
	if code := domainCode(t, err); code != apperrors.ErrCodeBorrowLimitExceeded {
		t.Errorf("code = %s, want BORROW_LIMIT_EXCEEDED", code)
	}
}

func TestBorrowErrors(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedBook(t, store, "isbn-empty", 0)

	_, err := svc.Borrow(ctx, "alice@example.com", "no-such-isbn")
	if code := domainCode(t, err); code != apperrors.ErrCodeBookNotFound {
		t.Errorf("code = %s, want BOOK_NOT_FOUND", code)
	}

	_, err = svc.Borrow(ctx, "alice@example.com", "isbn-empty")
	if code := domainCode(t, err); code != apperrors.ErrCodeNoCopiesAvailable {
		t.Errorf("code = %s, want NO_COPIES_AVAILABLE", code)
	}
}

func TestReturnFlow(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 5)

	borrowed, err := svc.Borrow(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}

	returned, err := svc.Return(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Return failed: %v", err)
	}
	if returned.Borrow.Status != storage.BorrowStatusReturned || returned.Borrow.ReturnedAt == nil {
		t.Errorf("returned borrow state wrong: %+v", returned.Borrow)
	}

	got, _ := store.GetBookByISBN(ctx, book.ISBN)
	if got.AvailableCopies != 5 {
		t.Errorf("available copies = %d, want 5", got.AvailableCopies)
	}

	// The reminder job is canceled and its slot released.
	jobs, _, _ := store.ListJobs(ctx, storage.JobFilter{Page: storage.NewPagination(1, 10)})
	if len(jobs) != 1 || jobs[0].Status != storage.JobStatusCanceled || jobs[0].ActiveKey != nil {
		t.Errorf("reminder job not canceled: %+v", jobs)
	}

	// Returning again is an idempotent success with no inventory change.
	again, err := svc.Return(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("second return failed: %v", err)
	}
	if !again.IsExisting || again.Borrow.ID != borrowed.Borrow.ID {
		t.Errorf("second return: existing=%v id=%s", again.IsExisting, again.Borrow.ID)
	}
	got, _ = store.GetBookByISBN(ctx, book.ISBN)
	if got.AvailableCopies != 5 {
		t.Errorf("available copies after second return = %d, want 5", got.AvailableCopies)
	}
}

func TestReturnNotFound(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 5)

	// Unknown user has never borrowed anything.
	_, err := svc.Return(ctx, "nobody@example.com", book.ISBN)
	if code := domainCode(t, err); code != apperrors.ErrCodeBorrowNotFound {
		t.Errorf("code = %s, want BORROW_NOT_FOUND", code)
	}

	if _, err := svc.Borrow(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	_, err = svc.Return(ctx, "alice@example.com", "no-such-isbn")
	if code := domainCode(t, err); code != apperrors.ErrCodeBookNotFound {
		t.Errorf("code = %s, want BOOK_NOT_FOUND", code)
	}
}

func TestBuyLimitsAndCancelRelease(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 10)

	first, err := svc.Buy(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if _, err := svc.Buy(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	_, err = svc.Buy(ctx, "alice@example.com", book.ISBN)
	if code := domainCode(t, err); code != apperrors.ErrCodeBookBuyLimitExceeded {
		t.Errorf("code = %s, want BOOK_BUY_LIMIT_EXCEEDED", code)
	}

	// Canceling a purchase releases the per-book slot.
	if _, err := svc.Cancel(ctx, "alice@example.com", first.Purchase.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := svc.Buy(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Errorf("buy after cancel failed: %v", err)
	}
}

func TestTotalBuyLimit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		seedBook(t, store, fmt.Sprintf("isbn-%d", i), 10)
	}

	// Two copies of each of five books is the total limit of ten.
	for i := 0; i < 5; i++ {
		for j := 0; j < 2; j++ {
			if _, err := svc.Buy(ctx, "alice@example.com", fmt.Sprintf("isbn-%d", i)); err != nil {
				t.Fatalf("buy %d/%d failed: %v", i, j, err)
			}
		}
	}

	_, err := svc.Buy(ctx, "alice@example.com", "isbn-5")
	if code := domainCode(t, err); code != apperrors.ErrCodeTotalBuyLimitExceeded {
		t.Errorf("code = %s, want TOTAL_BUY_LIMIT_EXCEEDED", code)
	}
}

func TestCancelWindowAndIdempotence(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 10)

	now := time.Now().UTC()
	svc.WithClock(func() time.Time { return now })

	bought, err := svc.Buy(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// Within the window the cancel succeeds and refunds exactly once.
	now = now.Add(CancelWindow - time.Second)
	canceled, err := svc.Cancel(ctx, "alice@example.com", bought.Purchase.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if canceled.Purchase.Status != storage.PurchaseStatusCanceled {
		t.Errorf("status = %s, want CANCELED", canceled.Purchase.Status)
	}
	balance, _ := store.WalletBalance(ctx)
	if balance != 0 {
		t.Errorf("balance = %d, want 0 after refund", balance)
	}

	// Canceling again is a no-op success with one refund total.
	again, err := svc.Cancel(ctx, "alice@example.com", bought.Purchase.ID)
	if err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}
	if !again.IsExisting {
		t.Error("second cancel not flagged as existing")
	}
	balance, _ = store.WalletBalance(ctx)
	if balance != 0 {
		t.Errorf("balance = %d, want 0 (single refund)", balance)
	}
	got, _ := store.GetBookByISBN(ctx, book.ISBN)
	if got.AvailableCopies != 10 {
		t.Errorf("available copies = %d, want 10", got.AvailableCopies)
	}
}

func TestCancelWindowExpired(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 10)

	now := time.Now().UTC()
	svc.WithClock(func() time.Time { return now })

	bought, err := svc.Buy(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	now = now.Add(CancelWindow + time.Second)
	_, err = svc.Cancel(ctx, "alice@example.com", bought.Purchase.ID)
	if code := domainCode(t, err); code != apperrors.ErrCodeCancellationWindowExpired {
		t.Errorf("code = %s, want CANCELLATION_WINDOW_EXPIRED", code)
	}

	// The failed cancel must leave no trace.
	balance, _ := store.WalletBalance(ctx)
	if balance != book.SellCents {
		t.Errorf("balance = %d, want %d", balance, book.SellCents)
	}
	purchase, _ := store.GetPurchaseForUpdate(ctx, bought.Purchase.ID, bought.Purchase.UserID)
	if purchase.Status != storage.PurchaseStatusActive {
		t.Errorf("purchase status = %s, want ACTIVE", purchase.Status)
	}
}

func TestCancelNotFound(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 10)

	_, err := svc.Cancel(ctx, "nobody@example.com", "p-1")
	if code := domainCode(t, err); code != apperrors.ErrCodeUserNotFound {
		t.Errorf("code = %s, want USER_NOT_FOUND", code)
	}

	bought, err := svc.Buy(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := svc.Buy(ctx, "bob@example.com", book.ISBN); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// A user cannot cancel another user's purchase.
	_, err = svc.Cancel(ctx, "bob@example.com", bought.Purchase.ID)
	if code := domainCode(t, err); code != apperrors.ErrCodePurchaseNotFound {
		t.Errorf("code = %s, want PURCHASE_NOT_FOUND", code)
	}
}

func TestLowStockWatcher(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 2)

	// First borrow leaves exactly one copy: the trigger fires.
	if _, err := svc.Borrow(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}

	jobs, _, _ := store.ListJobs(ctx, storage.JobFilter{Page: storage.NewPagination(1, 10)})
	var restock *storage.Job
	for i := range jobs {
		if jobs[i].Type == storage.JobTypeRestock {
			restock = &jobs[i]
		}
	}
	if restock == nil {
		t.Fatal("no restock job scheduled at one remaining copy")
	}
	if restock.ActiveKey == nil || *restock.ActiveKey != "RESTOCK:"+book.ID {
		t.Errorf("restock active key = %v", restock.ActiveKey)
	}

	emails, total, _ := store.ListEmails(ctx, storage.NewPagination(1, 10))
	if total != 1 || emails[0].Type != storage.EmailTypeLowStock || emails[0].Recipient != SupplyEmail {
		t.Errorf("low stock email wrong: total=%d %+v", total, emails)
	}

	// Second borrow leaves zero copies: no second trigger, still one job.
	if _, err := svc.Borrow(ctx, "bob@example.com", book.ISBN); err != nil {
		t.Fatalf("second borrow failed: %v", err)
	}
	jobs, _, _ = store.ListJobs(ctx, storage.JobFilter{Page: storage.NewPagination(1, 10)})
	restockCount := 0
	for _, j := range jobs {
		if j.Type == storage.JobTypeRestock {
			restockCount++
		}
	}
	if restockCount != 1 {
		t.Errorf("restock jobs = %d, want 1", restockCount)
	}

	// A return and re-borrow back down to one copy must not schedule a
	// second restock while the first is live.
	if _, err := svc.Return(ctx, "bob@example.com", book.ISBN); err != nil {
		t.Fatalf("Return failed: %v", err)
	}
	if _, err := svc.Borrow(ctx, "carol@example.com", book.ISBN); err != nil {
		t.Fatalf("re-borrow failed: %v", err)
	}
	jobs, _, _ = store.ListJobs(ctx, storage.JobFilter{Page: storage.NewPagination(1, 20)})
	restockCount = 0
	for _, j := range jobs {
		if j.Type == storage.JobTypeRestock {
			restockCount++
		}
	}
	if restockCount != 1 {
		t.Errorf("restock jobs after re-trigger = %d, want 1", restockCount)
	}
}

func TestMilestoneOneShot(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 10)

	// Start just below the threshold.
	dedupe := "INITIAL_BALANCE"
	if _, err := store.AppendMovement(ctx, storage.Movement{
		ID:          uuid.NewString(),
		WalletID:    storage.WalletID,
		AmountCents: MilestoneCents - 1000,
		Type:        storage.MovementInitialBalance,
		Reason:      "seed balance",
		DedupeKey:   &dedupe,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("AppendMovement failed: %v", err)
	}

	// This sale crosses $2000.
	if _, err := svc.Buy(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	wallet, _ := store.GetWallet(ctx)
	if !wallet.MilestoneReached {
		t.Fatal("milestone flag not set")
	}
	if _, err := store.GetEmailByDedupeKey(ctx, "MILESTONE:2000"); err != nil {
		t.Errorf("milestone email missing: %v", err)
	}

	// Further income must not emit a second milestone email.
	if _, err := svc.Buy(ctx, "bob@example.com", book.ISBN); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}
	_, total, _ := store.ListEmails(ctx, storage.NewPagination(1, 10))
	if total != 1 {
		t.Errorf("emails = %d, want exactly 1 milestone email", total)
	}
	wallet, _ = store.GetWallet(ctx)
	if !wallet.MilestoneReached {
		t.Error("milestone flag must stay true")
	}
}

func TestConcurrentBorrowLastCopy(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 1)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Borrow(ctx, fmt.Sprintf("user%d@example.com", i), book.ISBN)
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if code := domainCode(t, err); code != apperrors.ErrCodeNoCopiesAvailable {
			t.Errorf("unexpected code %s", code)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}

	got, _ := store.GetBookByISBN(ctx, book.ISBN)
	if got.AvailableCopies != 0 {
		t.Errorf("available copies = %d, want 0", got.AvailableCopies)
	}
}

func TestConcurrentBorrowLimit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		seedBook(t, store, fmt.Sprintf("isbn-%d", i), 10)
	}

	var wg sync.WaitGroup
	results := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Borrow(ctx, "alice@example.com", fmt.Sprintf("isbn-%d", i))
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if code := domainCode(t, err); code != apperrors.ErrCodeBorrowLimitExceeded {
			t.Errorf("unexpected code %s", code)
		}
	}
	if successes > MaxActiveBorrows {
		t.Errorf("successes = %d, want at most %d", successes, MaxActiveBorrows)
	}

	user, err := store.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	active, _ := store.CountActiveBorrows(ctx, user.ID)
	if active > MaxActiveBorrows {
		t.Errorf("active borrows = %d, want at most %d", active, MaxActiveBorrows)
	}
}

func TestBuyRollbackOnFailure(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 1)

	if _, err := svc.Buy(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// Out of stock: the failed buy must leave the ledger untouched.
	_, err := svc.Buy(ctx, "bob@example.com", book.ISBN)
	if code := domainCode(t, err); code != apperrors.ErrCodeNoCopiesAvailable {
		t.Errorf("code = %s, want NO_COPIES_AVAILABLE", code)
	}
	balance, _ := store.WalletBalance(ctx)
	if balance != book.SellCents {
		t.Errorf("balance = %d, want %d", balance, book.SellCents)
	}
}

func TestMovementMetricsRecorded(t *testing.T) {
	svc, store := newTestService(t)
	m := metrics.New(prometheus.NewRegistry())
	svc.WithMetrics(m)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 5)

	if _, err := svc.Borrow(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}
	// An idempotent replay commits nothing and must not count.
	if _, err := svc.Borrow(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if got := testutil.ToFloat64(m.MovementsTotal.WithLabelValues(string(storage.MovementBorrowIncome))); got != 1 {
		t.Errorf("borrow movements = %v, want 1", got)
	}

	bought, err := svc.Buy(ctx, "alice@example.com", book.ISBN)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if got := testutil.ToFloat64(m.MovementCentsTotal.WithLabelValues(string(storage.MovementBuyIncome))); got != float64(book.SellCents) {
		t.Errorf("buy cents = %v, want %d", got, book.SellCents)
	}

	if _, err := svc.Cancel(ctx, "alice@example.com", bought.Purchase.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if got := testutil.ToFloat64(m.MovementsTotal.WithLabelValues(string(storage.MovementCancelRefund))); got != 1 {
		t.Errorf("refund movements = %v, want 1", got)
	}
	// Refund amounts are counted by absolute value.
	if got := testutil.ToFloat64(m.MovementCentsTotal.WithLabelValues(string(storage.MovementCancelRefund))); got != float64(book.SellCents) {
		t.Errorf("refund cents = %v, want %d", got, book.SellCents)
	}
}

func TestJobRetryBudgetConfigurable(t *testing.T) {
	svc, store := newTestService(t)
	svc.WithJobMaxAttempts(3)
	ctx := context.Background()
	book := seedBook(t, store, "isbn-1", 2)

	// One copy left after this borrow, so both the reminder and the restock
	// job are scheduled in the same transaction.
	if _, err := svc.Borrow(ctx, "alice@example.com", book.ISBN); err != nil {
		t.Fatalf("Borrow failed: %v", err)
	}

	jobs, _, err := store.ListJobs(ctx, storage.JobFilter{Page: storage.NewPagination(1, 10)})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want reminder and restock", len(jobs))
	}
	for _, job := range jobs {
		if job.MaxAttempts != 3 {
			t.Errorf("%s job max attempts = %d, want 3", job.Type, job.MaxAttempts)
		}
	}
}
