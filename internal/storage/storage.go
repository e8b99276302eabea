// Package storage provides relational persistence for the library core:
// catalog inventory, borrows and purchases, the append-only wallet ledger,
// the durable job queue, audit events, simulated emails and the idempotent
// response cache. Two backends implement the same contract: PostgreSQL for
// production and an in-memory store for tests and local runs.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = errors.New("storage: not found")

// ErrSerialization is returned when a serializable transaction could not be
// committed because of a concurrent conflict. Clients retry; the server
// does not.
var ErrSerialization = errors.New("storage: serialization failure")

// ErrDuplicateKey is returned when an insert violates a unique constraint
// that the caller did not ask the store to absorb.
var ErrDuplicateKey = errors.New("storage: duplicate key")

// Queries is the operation set available both on the store itself and
// inside a transaction.
type Queries interface {
	// Books
	CreateBook(ctx context.Context, book Book) error
	GetBookByISBN(ctx context.Context, isbn string) (Book, error)
	GetBookByID(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error)
	// DecrementAvailableCopies atomically takes one copy if at least one is
	// available and reports whether it did.
	DecrementAvailableCopies(ctx context.Context, isbn string) (bool, error)
	IncrementAvailableCopies(ctx context.Context, bookID string, n int) error

	// Users
	UpsertUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// Borrows
	CreateBorrow(ctx context.Context, borrow Borrow) error
	GetBorrowByID(ctx context.Context, id string) (Borrow, error)
	GetActiveBorrow(ctx context.Context, userID, bookID string) (Borrow, error)
	GetLatestReturnedBorrow(ctx context.Context, userID, bookID string) (Borrow, error)
	CountActiveBorrows(ctx context.Context, userID string) (int, error)
	// MarkBorrowReturned flips the borrow to RETURNED and clears its active key.
	MarkBorrowReturned(ctx context.Context, borrowID string, returnedAt time.Time) error

	// Purchases
	CreatePurchase(ctx context.Context, purchase Purchase) error
	// GetPurchaseForUpdate loads a purchase by (id, userId) and, on the
	// Postgres backend, row-locks it for the rest of the transaction.
	GetPurchaseForUpdate(ctx context.Context, id, userID string) (Purchase, error)
	CountActivePurchasesForBook(ctx context.Context, userID, bookID string) (int, error)
	CountActivePurchases(ctx context.Context, userID string) (int, error)
	MarkPurchaseCanceled(ctx context.Context, purchaseID string, canceledAt time.Time) error

	// Wallet ledger
	EnsureWallet(ctx context.Context) error
	GetWallet(ctx context.Context) (Wallet, error)
	SetMilestoneReached(ctx context.Context) error
	WalletBalance(ctx context.Context) (int64, error)
	// AppendMovement inserts a ledger row. When the movement carries a
	// dedupe key that already exists, the pre-existing row is returned and
	// no new row is written; callers treat both outcomes as success.
	AppendMovement(ctx context.Context, movement Movement) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)

	// Jobs
	CreateJob(ctx context.Context, job Job) error
	GetJobByID(ctx context.Context, id string) (Job, error)
	// HasActiveJobForBook reports whether a schedulable job of the given
	// type already references the book.
	HasActiveJobForBook(ctx context.Context, bookID string, jobType JobType) (bool, error)
	// DueJobs returns schedulable jobs: PENDING with run_at elapsed, or
	// PROCESSING whose lease has expired. Jobs out of attempts are skipped.
	DueJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Job, error)
	// ClaimJob atomically moves a due job to PROCESSING and increments its
	// attempt counter. It reports false when another worker won the claim.
	ClaimJob(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error)
	CompleteJob(ctx context.Context, id string, now time.Time) error
	FailJob(ctx context.Context, id string, errMsg string, now time.Time) error
	// RescheduleJob returns a claimed job to PENDING with a new run time,
	// preserving its active key.
	RescheduleJob(ctx context.Context, id string, runAt time.Time, errMsg string) error
	// CancelActiveReminderJob cancels the live REMINDER job for a borrow,
	// if one exists.
	CancelActiveReminderJob(ctx context.Context, borrowID string) error
	// ResetJobForRetry returns a terminal job to PENDING, restoring its
	// active key. Fails with ErrDuplicateKey when another live job holds
	// the same logical slot.
	ResetJobForRetry(ctx context.Context, id string, now time.Time) error
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, int, error)

	// Events
	// AppendEvent inserts an audit event; a dedupe-key conflict is
	// swallowed and treated as success.
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, page Pagination) ([]Event, int, error)

	// Emails
	// AppendEmail inserts a simulated email and reports whether a row was
	// written; false means the dedupe key already existed.
	AppendEmail(ctx context.Context, email Email) (bool, error)
	GetEmailByDedupeKey(ctx context.Context, dedupeKey string) (Email, error)
	ListEmails(ctx context.Context, page Pagination) ([]Email, int, error)

	// Idempotency cache
	GetIdempotencyRecord(ctx context.Context, key, userID, endpoint string) (IdempotencyRecord, error)
	SaveIdempotencyRecord(ctx context.Context, record IdempotencyRecord) error
	DeleteIdempotencyRecord(ctx context.Context, key, userID, endpoint string) error
}

// Tx is the transactional view handed to engine functions. All Queries run
// inside the enclosing serializable transaction.
type Tx interface {
	Queries

	// AdvisoryLock serializes callers on a deterministic 32-bit hash of the
	// given key for the remainder of the transaction.
	AdvisoryLock(ctx context.Context, key string) error
}

// Store is the persistence contract shared by both backends.
type Store interface {
	Queries

	// Tx runs fn inside one serializable transaction with a bounded
	// deadline. A serialization conflict surfaces as ErrSerialization.
	Tx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}

// DefaultTxTimeout bounds every engine transaction.
const DefaultTxTimeout = 30 * time.Second
