package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// memTx is the unlocked operation view over memoryData. MemoryStore hands
// it to transaction functions while holding the global mutex.
type memTx struct {
	d *memoryData
}

// AdvisoryLock is a no-op: the global transaction mutex already serializes
// every caller.
func (t *memTx) AdvisoryLock(ctx context.Context, key string) error {
	return nil
}

func (t *memTx) CreateBook(ctx context.Context, book Book) error {
	if _, ok := t.d.bookByISBN[book.ISBN]; ok {
		return fmt.Errorf("%w: book %s", ErrDuplicateKey, book.ISBN)
	}
	t.d.books[book.ID] = book
	t.d.bookByISBN[book.ISBN] = book.ID
	return nil
}

func (t *memTx) GetBookByISBN(ctx context.Context, isbn string) (Book, error) {
	id, ok := t.d.bookByISBN[isbn]
	if !ok {
		return Book{}, ErrNotFound
	}
	return t.d.books[id], nil
}

func (t *memTx) GetBookByID(ctx context.Context, id string) (Book, error) {
	book, ok := t.d.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return book, nil
}

func (t *memTx) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	matches := func(b Book) bool {
		if filter.Title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(filter.Title)) {
			return false
		}
		if filter.Author != "" && !strings.Contains(strings.ToLower(b.Author), strings.ToLower(filter.Author)) {
			return false
		}
		if filter.Genre != "" && !strings.Contains(strings.ToLower(b.Genre), strings.ToLower(filter.Genre)) {
			return false
		}
		return true
	}

	var all []Book
	for _, b := range t.d.books {
		if matches(b) {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Title != all[j].Title {
			return all[i].Title < all[j].Title
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	return pageSlice(all, filter.Page), total, nil
}

func (t *memTx) DecrementAvailableCopies(ctx context.Context, isbn string) (bool, error) {
	id, ok := t.d.bookByISBN[isbn]
	if !ok {
		return false, nil
	}
	book := t.d.books[id]
	if book.AvailableCopies < 1 {
		return false, nil
	}
	book.AvailableCopies--
	t.d.books[id] = book
	return true, nil
}

func (t *memTx) IncrementAvailableCopies(ctx context.Context, bookID string, n int) error {
	book, ok := t.d.books[bookID]
	if !ok {
		return ErrNotFound
	}
	book.AvailableCopies += n
	t.d.books[bookID] = book
	return nil
}

func (t *memTx) UpsertUserByEmail(ctx context.Context, email string) (User, error) {
	if id, ok := t.d.userByEmail[email]; ok {
		return t.d.users[id], nil
	}
	user := User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	t.d.users[user.ID] = user
	t.d.userByEmail[email] = user.ID
	return user, nil
}

func (t *memTx) GetUserByEmail(ctx context.Context, email string) (User, error) {
	id, ok := t.d.userByEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return t.d.users[id], nil
}

func (t *memTx) CreateBorrow(ctx context.Context, borrow Borrow) error {
	if borrow.ActiveKey != nil {
		for _, b := range t.d.borrows {
			if b.ActiveKey != nil && *b.ActiveKey == *borrow.ActiveKey {
				return fmt.Errorf("%w: borrow active key %s", ErrDuplicateKey, *borrow.ActiveKey)
			}
		}
	}
	t.d.borrows[borrow.ID] = borrow
	return nil
}

func (t *memTx) GetBorrowByID(ctx context.Context, id string) (Borrow, error) {
	borrow, ok := t.d.borrows[id]
	if !ok {
		return Borrow{}, ErrNotFound
	}
	return borrow, nil
}

func (t *memTx) GetActiveBorrow(ctx context.Context, userID, bookID string) (Borrow, error) {
	for _, b := range t.d.borrows {
		if b.UserID == userID && b.BookID == bookID && b.Status == BorrowStatusActive {
			return b, nil
		}
	}
	return Borrow{}, ErrNotFound
}

func (t *memTx) GetLatestReturnedBorrow(ctx context.Context, userID, bookID string) (Borrow, error) {
	var latest *Borrow
	for _, b := range t.d.borrows {
		if b.UserID != userID || b.BookID != bookID || b.Status != BorrowStatusReturned {
			continue
		}
		b := b
		if latest == nil || (b.ReturnedAt != nil && latest.ReturnedAt != nil && b.ReturnedAt.After(*latest.ReturnedAt)) {
			latest = &b
		}
	}
	if latest == nil {
		return Borrow{}, ErrNotFound
	}
	return *latest, nil
}

func (t *memTx) CountActiveBorrows(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, b := range t.d.borrows {
		if b.UserID == userID && b.Status == BorrowStatusActive {
			count++
		}
	}
	return count, nil
}

func (t *memTx) MarkBorrowReturned(ctx context.Context, borrowID string, returnedAt time.Time) error {
	borrow, ok := t.d.borrows[borrowID]
	if !ok {
		return ErrNotFound
	}
	returnedAt = returnedAt.UTC()
	borrow.Status = BorrowStatusReturned
	borrow.ReturnedAt = &returnedAt
	borrow.ActiveKey = nil
	t.d.borrows[borrowID] = borrow
	return nil
}

func (t *memTx) CreatePurchase(ctx context.Context, purchase Purchase) error {
	t.d.purchases[purchase.ID] = purchase
	return nil
}

func (t *memTx) GetPurchaseForUpdate(ctx context.Context, id, userID string) (Purchase, error) {
	purchase, ok := t.d.purchases[id]
	if !ok || purchase.UserID != userID {
		return Purchase{}, ErrNotFound
	}
	return purchase, nil
}

func (t *memTx) CountActivePurchasesForBook(ctx context.Context, userID, bookID string) (int, error) {
	count := 0
	for _, p := range t.d.purchases {
		if p.UserID == userID && p.BookID == bookID && p.Status == PurchaseStatusActive {
			count++
		}
	}
	return count, nil
}

func (t *memTx) CountActivePurchases(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, p := range t.d.purchases {
		if p.UserID == userID && p.Status == PurchaseStatusActive {
			count++
		}
	}
	return count, nil
}

func (t *memTx) MarkPurchaseCanceled(ctx context.Context, purchaseID string, canceledAt time.Time) error {
	purchase, ok := t.d.purchases[purchaseID]
	if !ok {
		return ErrNotFound
	}
	canceledAt = canceledAt.UTC()
	purchase.Status = PurchaseStatusCanceled
	purchase.CanceledAt = &canceledAt
	t.d.purchases[purchaseID] = purchase
	return nil
}

func (t *memTx) EnsureWallet(ctx context.Context) error {
	if _, ok := t.d.wallets[WalletID]; !ok {
		t.d.wallets[WalletID] = Wallet{ID: WalletID}
	}
	return nil
}

func (t *memTx) GetWallet(ctx context.Context) (Wallet, error) {
	wallet, ok := t.d.wallets[WalletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (t *memTx) SetMilestoneReached(ctx context.Context) error {
	wallet, ok := t.d.wallets[WalletID]
	if !ok {
		return ErrNotFound
	}
	wallet.MilestoneReached = true
	t.d.wallets[WalletID] = wallet
	return nil
}

func (t *memTx) WalletBalance(ctx context.Context) (int64, error) {
	var balance int64
	for _, m := range t.d.movements {
		if m.WalletID == WalletID {
			balance += m.AmountCents
		}
	}
	return balance, nil
}

func (t *memTx) AppendMovement(ctx context.Context, movement Movement) (Movement, error) {
	if movement.DedupeKey != nil {
		if idx, ok := t.d.movementByDedupe[*movement.DedupeKey]; ok {
			return t.d.movements[idx], nil
		}
	}
	t.d.movements = append(t.d.movements, movement)
	if movement.DedupeKey != nil {
		t.d.movementByDedupe[*movement.DedupeKey] = len(t.d.movements) - 1
	}
	return movement, nil
}

func (t *memTx) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	matches := func(m Movement) bool {
		if m.WalletID != WalletID {
			return false
		}
		switch filter.Kind {
		case "credit":
			if m.AmountCents <= 0 {
				return false
			}
		case "debit":
			if m.AmountCents >= 0 {
				return false
			}
		}
		if filter.From != nil && m.CreatedAt.Before(*filter.From) {
			return false
		}
		if filter.To != nil && m.CreatedAt.After(*filter.To) {
			return false
		}
		return true
	}

	// Insertion order is chronological; walk backwards for newest first.
	var all []Movement
	for i := len(t.d.movements) - 1; i >= 0; i-- {
		if matches(t.d.movements[i]) {
			all = append(all, t.d.movements[i])
		}
	}
	total := len(all)
	return pageSlice(all, filter.Page), total, nil
}

func (t *memTx) CreateJob(ctx context.Context, job Job) error {
	if job.ActiveKey != nil {
		for _, j := range t.d.jobs {
			if j.ActiveKey != nil && *j.ActiveKey == *job.ActiveKey {
				return fmt.Errorf("%w: job active key %s", ErrDuplicateKey, *job.ActiveKey)
			}
		}
	}
	if job.BorrowID != nil {
		for _, j := range t.d.jobs {
			if j.BorrowID != nil && *j.BorrowID == *job.BorrowID {
				return fmt.Errorf("%w: job for borrow %s", ErrDuplicateKey, *job.BorrowID)
			}
		}
	}
	t.d.jobs[job.ID] = job
	t.d.jobOrder = append(t.d.jobOrder, job.ID)
	return nil
}

func (t *memTx) GetJobByID(ctx context.Context, id string) (Job, error) {
	job, ok := t.d.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (t *memTx) HasActiveJobForBook(ctx context.Context, bookID string, jobType JobType) (bool, error) {
	for _, j := range t.d.jobs {
		if j.BookID != nil && *j.BookID == bookID && j.Type == jobType && j.ActiveKey != nil {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) DueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error) {
	leaseExpiry := now.Add(-lease)
	var due []Job
	for _, j := range t.d.jobs {
		if j.ActiveKey == nil || j.Attempts >= j.MaxAttempts {
			continue
		}
		pendingDue := j.Status == JobStatusPending && !j.RunAt.After(now)
		leaseLapsed := j.Status == JobStatusProcessing && j.LockedAt != nil && j.LockedAt.Before(leaseExpiry)
		if pendingDue || leaseLapsed {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].RunAt.Equal(due[k].RunAt) {
			return due[i].RunAt.Before(due[k].RunAt)
		}
		return due[i].ID < due[k].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (t *memTx) ClaimJob(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	job, ok := t.d.jobs[id]
	if !ok || job.ActiveKey == nil {
		return false, nil
	}
	leaseExpiry := now.Add(-lease)
	claimable := job.Status == JobStatusPending ||
		(job.Status == JobStatusProcessing && job.LockedAt != nil && job.LockedAt.Before(leaseExpiry))
	if !claimable {
		return false, nil
	}
	now = now.UTC()
	job.Status = JobStatusProcessing
	job.LockedAt = &now
	job.Attempts++
	t.d.jobs[id] = job
	return true, nil
}

func (t *memTx) CompleteJob(ctx context.Context, id string, now time.Time) error {
	job, ok := t.d.jobs[id]
	if !ok {
		return ErrNotFound
	}
	now = now.UTC()
	job.Status = JobStatusCompleted
	job.ActiveKey = nil
	job.CompletedAt = &now
	job.LastError = nil
	job.LockedAt = nil
	t.d.jobs[id] = job
	return nil
}

func (t *memTx) FailJob(ctx context.Context, id string, errMsg string, now time.Time) error {
	job, ok := t.d.jobs[id]
	if !ok {
		return ErrNotFound
	}
	now = now.UTC()
	job.Status = JobStatusFailed
	job.ActiveKey = nil
	job.CompletedAt = &now
	job.LastError = &errMsg
	job.LockedAt = nil
	t.d.jobs[id] = job
	return nil
}

func (t *memTx) RescheduleJob(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	job, ok := t.d.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = JobStatusPending
	job.LockedAt = nil
	job.RunAt = runAt.UTC()
	job.LastError = &errMsg
	t.d.jobs[id] = job
	return nil
}

func (t *memTx) CancelActiveReminderJob(ctx context.Context, borrowID string) error {
	for id, j := range t.d.jobs {
		if j.BorrowID != nil && *j.BorrowID == borrowID && j.Type == JobTypeReminder && j.ActiveKey != nil {
			now := time.Now().UTC()
			j.Status = JobStatusCanceled
			j.ActiveKey = nil
			j.CompletedAt = &now
			j.LockedAt = nil
			t.d.jobs[id] = j
		}
	}
	return nil
}

func (t *memTx) ResetJobForRetry(ctx context.Context, id string, now time.Time) error {
	job, ok := t.d.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != JobStatusFailed && job.Status != JobStatusCanceled {
		return ErrNotFound
	}

	var activeKey string
	switch {
	case job.Type == JobTypeRestock && job.BookID != nil:
		activeKey = "RESTOCK:" + *job.BookID
	case job.Type == JobTypeReminder && job.BorrowID != nil:
		activeKey = "REMINDER:" + *job.BorrowID
	default:
		return fmt.Errorf("job %s has no retryable slot", id)
	}
	for otherID, j := range t.d.jobs {
		if otherID != id && j.ActiveKey != nil && *j.ActiveKey == activeKey {
			return fmt.Errorf("%w: job slot already held", ErrDuplicateKey)
		}
	}

	job.Status = JobStatusPending
	job.ActiveKey = &activeKey
	job.Attempts = 0
	job.RunAt = now.UTC()
	job.LockedAt = nil
	job.LastError = nil
	job.CompletedAt = nil
	t.d.jobs[id] = job
	return nil
}

func (t *memTx) ListJobs(ctx context.Context, filter JobFilter) ([]Job, int, error) {
	// jobOrder is insertion order; walk backwards for newest first.
	var all []Job
	for i := len(t.d.jobOrder) - 1; i >= 0; i-- {
		j := t.d.jobs[t.d.jobOrder[i]]
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		all = append(all, j)
	}
	total := len(all)
	return pageSlice(all, filter.Page), total, nil
}

func (t *memTx) AppendEvent(ctx context.Context, event Event) error {
	if event.DedupeKey != nil {
		if t.d.eventDedupe[*event.DedupeKey] {
			return nil
		}
		t.d.eventDedupe[*event.DedupeKey] = true
	}
	t.d.events = append(t.d.events, event)
	return nil
}

func (t *memTx) ListEvents(ctx context.Context, page Pagination) ([]Event, int, error) {
	var all []Event
	for i := len(t.d.events) - 1; i >= 0; i-- {
		all = append(all, t.d.events[i])
	}
	total := len(all)
	return pageSlice(all, page), total, nil
}

func (t *memTx) AppendEmail(ctx context.Context, email Email) (bool, error) {
	if _, ok := t.d.emailByDedupe[email.DedupeKey]; ok {
		return false, nil
	}
	t.d.emails = append(t.d.emails, email)
	t.d.emailByDedupe[email.DedupeKey] = len(t.d.emails) - 1
	return true, nil
}

func (t *memTx) GetEmailByDedupeKey(ctx context.Context, dedupeKey string) (Email, error) {
	idx, ok := t.d.emailByDedupe[dedupeKey]
	if !ok {
		return Email{}, ErrNotFound
	}
	return t.d.emails[idx], nil
}

func (t *memTx) ListEmails(ctx context.Context, page Pagination) ([]Email, int, error) {
	var all []Email
	for i := len(t.d.emails) - 1; i >= 0; i-- {
		all = append(all, t.d.emails[i])
	}
	total := len(all)
	return pageSlice(all, page), total, nil
}

func idempotencyKey(key, userID, endpoint string) string {
	return key + "|" + userID + "|" + endpoint
}

func (t *memTx) GetIdempotencyRecord(ctx context.Context, key, userID, endpoint string) (IdempotencyRecord, error) {
	record, ok := t.d.idempotency[idempotencyKey(key, userID, endpoint)]
	if !ok {
		return IdempotencyRecord{}, ErrNotFound
	}
	return record, nil
}

func (t *memTx) SaveIdempotencyRecord(ctx context.Context, record IdempotencyRecord) error {
	t.d.idempotency[idempotencyKey(record.Key, record.UserID, record.Endpoint)] = record
	return nil
}

func (t *memTx) DeleteIdempotencyRecord(ctx context.Context, key, userID, endpoint string) error {
	delete(t.d.idempotency, idempotencyKey(key, userID, endpoint))
	return nil
}

// pageSlice applies pagination to an already-filtered, already-ordered slice.
func pageSlice[T any](all []T, page Pagination) []T {
	start := page.Offset()
	if start >= len(all) {
		return nil
	}
	end := start + page.Limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
