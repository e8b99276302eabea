package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory backend for tests and local runs. A single
// mutex guards all state: direct calls lock per operation, and Tx holds the
// lock for the whole function, which is strictly stronger than serializable
// isolation. Rollback is a snapshot restore.
type MemoryStore struct {
	mu sync.Mutex
	d  memoryData
}

// memoryData holds all tables. Struct values are stored by value; mutations
// replace whole rows, so a shallow clone of the containers is a valid
// snapshot.
type memoryData struct {
	books     map[string]Book   // by id
	bookByISBN map[string]string // isbn -> id
	users     map[string]User   // by id
	userByEmail map[string]string
	borrows   map[string]Borrow
	purchases map[string]Purchase
	wallets   map[string]Wallet
	movements []Movement // insertion order = chronological
	movementByDedupe map[string]int
	jobs      map[string]Job
	jobOrder  []string // insertion order for deterministic listings
	events    []Event
	eventDedupe map[string]bool
	emails    []Email
	emailByDedupe map[string]int
	idempotency map[string]IdempotencyRecord // composite key
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		d: memoryData{
			books:            make(map[string]Book),
			bookByISBN:       make(map[string]string),
			users:            make(map[string]User),
			userByEmail:      make(map[string]string),
			borrows:          make(map[string]Borrow),
			purchases:        make(map[string]Purchase),
			wallets:          make(map[string]Wallet),
			movementByDedupe: make(map[string]int),
			jobs:             make(map[string]Job),
			eventDedupe:      make(map[string]bool),
			emailByDedupe:    make(map[string]int),
			idempotency:      make(map[string]IdempotencyRecord),
		},
	}
}

// Tx runs fn under the global lock. On error the pre-transaction snapshot
// is restored, so partial writes never leak.
func (s *MemoryStore) Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(ctx, &memTx{d: &s.d}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (d *memoryData) clone() memoryData {
	c := memoryData{
		books:            make(map[string]Book, len(d.books)),
		bookByISBN:       make(map[string]string, len(d.bookByISBN)),
		users:            make(map[string]User, len(d.users)),
		userByEmail:      make(map[string]string, len(d.userByEmail)),
		borrows:          make(map[string]Borrow, len(d.borrows)),
		purchases:        make(map[string]Purchase, len(d.purchases)),
		wallets:          make(map[string]Wallet, len(d.wallets)),
		movements:        append([]Movement(nil), d.movements...),
		movementByDedupe: make(map[string]int, len(d.movementByDedupe)),
		jobs:             make(map[string]Job, len(d.jobs)),
		jobOrder:         append([]string(nil), d.jobOrder...),
		events:           append([]Event(nil), d.events...),
		eventDedupe:      make(map[string]bool, len(d.eventDedupe)),
		emails:           append([]Email(nil), d.emails...),
		emailByDedupe:    make(map[string]int, len(d.emailByDedupe)),
		idempotency:      make(map[string]IdempotencyRecord, len(d.idempotency)),
	}
	for k, v := range d.books {
		c.books[k] = v
	}
	for k, v := range d.bookByISBN {
		c.bookByISBN[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.userByEmail {
		c.userByEmail[k] = v
	}
	for k, v := range d.borrows {
		c.borrows[k] = v
	}
	for k, v := range d.purchases {
		c.purchases[k] = v
	}
	for k, v := range d.wallets {
		c.wallets[k] = v
	}
	for k, v := range d.movementByDedupe {
		c.movementByDedupe[k] = v
	}
	for k, v := range d.jobs {
		c.jobs[k] = v
	}
	for k, v := range d.eventDedupe {
		c.eventDedupe[k] = v
	}
	for k, v := range d.emailByDedupe {
		c.emailByDedupe[k] = v
	}
	for k, v := range d.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// view returns an unlocked operation view; the caller must hold the mutex.
func (s *MemoryStore) view() *memTx {
	return &memTx{d: &s.d}
}

// Locking wrappers for direct (non-transactional) use.

func (s *MemoryStore) CreateBook(ctx context.Context, book Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateBook(ctx, book)
}

func (s *MemoryStore) GetBookByISBN(ctx context.Context, isbn string) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetBookByISBN(ctx, isbn)
}

func (s *MemoryStore) GetBookByID(ctx context.Context, id string) (Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetBookByID(ctx, id)
}

func (s *MemoryStore) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListBooks(ctx, filter)
}

func (s *MemoryStore) DecrementAvailableCopies(ctx context.Context, isbn string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DecrementAvailableCopies(ctx, isbn)
}

func (s *MemoryStore) IncrementAvailableCopies(ctx context.Context, bookID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().IncrementAvailableCopies(ctx, bookID, n)
}

func (s *MemoryStore) UpsertUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpsertUserByEmail(ctx, email)
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUserByEmail(ctx, email)
}

func (s *MemoryStore) CreateBorrow(ctx context.Context, borrow Borrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateBorrow(ctx, borrow)
}

func (s *MemoryStore) GetBorrowByID(ctx context.Context, id string) (Borrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetBorrowByID(ctx, id)
}

func (s *MemoryStore) GetActiveBorrow(ctx context.Context, userID, bookID string) (Borrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetActiveBorrow(ctx, userID, bookID)
}

func (s *MemoryStore) GetLatestReturnedBorrow(ctx context.Context, userID, bookID string) (Borrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetLatestReturnedBorrow(ctx, userID, bookID)
}

func (s *MemoryStore) CountActiveBorrows(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CountActiveBorrows(ctx, userID)
}

func (s *MemoryStore) MarkBorrowReturned(ctx context.Context, borrowID string, returnedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().MarkBorrowReturned(ctx, borrowID, returnedAt)
}

func (s *MemoryStore) CreatePurchase(ctx context.Context, purchase Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreatePurchase(ctx, purchase)
}

func (s *MemoryStore) GetPurchaseForUpdate(ctx context.Context, id, userID string) (Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetPurchaseForUpdate(ctx, id, userID)
}

func (s *MemoryStore) CountActivePurchasesForBook(ctx context.Context, userID, bookID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CountActivePurchasesForBook(ctx, userID, bookID)
}

func (s *MemoryStore) CountActivePurchases(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CountActivePurchases(ctx, userID)
}

func (s *MemoryStore) MarkPurchaseCanceled(ctx context.Context, purchaseID string, canceledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().MarkPurchaseCanceled(ctx, purchaseID, canceledAt)
}

func (s *MemoryStore) EnsureWallet(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().EnsureWallet(ctx)
}

func (s *MemoryStore) GetWallet(ctx context.Context) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetWallet(ctx)
}

func (s *MemoryStore) SetMilestoneReached(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SetMilestoneReached(ctx)
}

func (s *MemoryStore) WalletBalance(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().WalletBalance(ctx)
}

func (s *MemoryStore) AppendMovement(ctx context.Context, movement Movement) (Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendMovement(ctx, movement)
}

func (s *MemoryStore) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListMovements(ctx, filter)
}

func (s *MemoryStore) CreateJob(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateJob(ctx, job)
}

func (s *MemoryStore) GetJobByID(ctx context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetJobByID(ctx, id)
}

func (s *MemoryStore) HasActiveJobForBook(ctx context.Context, bookID string, jobType JobType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().HasActiveJobForBook(ctx, bookID, jobType)
}

func (s *MemoryStore) DueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DueJobs(ctx, now, lease, limit)
}

func (s *MemoryStore) ClaimJob(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ClaimJob(ctx, id, now, lease)
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CompleteJob(ctx, id, now)
}

func (s *MemoryStore) FailJob(ctx context.Context, id string, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FailJob(ctx, id, errMsg, now)
}

func (s *MemoryStore) RescheduleJob(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().RescheduleJob(ctx, id, runAt, errMsg)
}

func (s *MemoryStore) CancelActiveReminderJob(ctx context.Context, borrowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CancelActiveReminderJob(ctx, borrowID)
}

func (s *MemoryStore) ResetJobForRetry(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ResetJobForRetry(ctx, id, now)
}

func (s *MemoryStore) ListJobs(ctx context.Context, filter JobFilter) ([]Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListJobs(ctx, filter)
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendEvent(ctx, event)
}

func (s *MemoryStore) ListEvents(ctx context.Context, page Pagination) ([]Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListEvents(ctx, page)
}

func (s *MemoryStore) AppendEmail(ctx context.Context, email Email) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppendEmail(ctx, email)
}

func (s *MemoryStore) GetEmailByDedupeKey(ctx context.Context, dedupeKey string) (Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetEmailByDedupeKey(ctx, dedupeKey)
}

func (s *MemoryStore) ListEmails(ctx context.Context, page Pagination) ([]Email, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListEmails(ctx, page)
}

func (s *MemoryStore) GetIdempotencyRecord(ctx context.Context, key, userID, endpoint string) (IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetIdempotencyRecord(ctx, key, userID, endpoint)
}

func (s *MemoryStore) SaveIdempotencyRecord(ctx context.Context, record IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SaveIdempotencyRecord(ctx, record)
}

func (s *MemoryStore) DeleteIdempotencyRecord(ctx context.Context, key, userID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteIdempotencyRecord(ctx, key, userID, endpoint)
}
