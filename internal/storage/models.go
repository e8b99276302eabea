package storage

import (
	"encoding/json"
	"time"
)

// WalletID is the identifier of the singleton library wallet row.
const WalletID = "library-wallet"

// BorrowStatus is the lifecycle state of a borrow.
type BorrowStatus string

const (
	BorrowStatusActive   BorrowStatus = "ACTIVE"
	BorrowStatusReturned BorrowStatus = "RETURNED"
)

// PurchaseStatus is the lifecycle state of a purchase.
type PurchaseStatus string

const (
	PurchaseStatusActive   PurchaseStatus = "ACTIVE"
	PurchaseStatusCanceled PurchaseStatus = "CANCELED"
)

// MovementType classifies wallet ledger entries.
type MovementType string

const (
	MovementBorrowIncome   MovementType = "BORROW_INCOME"
	MovementBuyIncome      MovementType = "BUY_INCOME"
	MovementCancelRefund   MovementType = "CANCEL_REFUND"
	MovementRestockExpense MovementType = "RESTOCK_EXPENSE"
	MovementInitialBalance MovementType = "INITIAL_BALANCE"
)

// JobType identifies the handler a job is dispatched to.
type JobType string

const (
	JobTypeRestock  JobType = "RESTOCK"
	JobTypeReminder JobType = "REMINDER"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCanceled   JobStatus = "CANCELED"
)

// EmailType classifies simulated outbound emails.
type EmailType string

const (
	EmailTypeLowStock  EmailType = "LOW_STOCK"
	EmailTypeReminder  EmailType = "REMINDER"
	EmailTypeMilestone EmailType = "MILESTONE"
)

// Book is a catalog entry. ISBN is the externally supplied identity;
// id is the stable internal key. Prices are signed integer cents.
type Book struct {
	ID              string    `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	SellCents       int64     `json:"sellCents"`
	BorrowCents     int64     `json:"borrowCents"`
	StockCents      int64     `json:"stockCents"`
	AvailableCopies int       `json:"availableCopies"`
	SeededCopies    int       `json:"seededCopies"`
	CreatedAt       time.Time `json:"createdAt"`
}

// User is identified by email and auto-created on first interaction.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Borrow records a lending of one copy. ActiveKey is "{userId}:{bookId}"
// while status is ACTIVE and nil afterwards; a unique index on it enforces
// at most one live borrow per (user, book).
type Borrow struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	BookID     string       `json:"bookId"`
	BorrowedAt time.Time    `json:"borrowedAt"`
	DueAt      time.Time    `json:"dueAt"`
	ReturnedAt *time.Time   `json:"returnedAt,omitempty"`
	Status     BorrowStatus `json:"status"`
	ActiveKey  *string      `json:"-"`
}

// Purchase records a sale of one copy. Limits are counted from status;
// there is no active key.
type Purchase struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	BookID      string         `json:"bookId"`
	PriceCents  int64          `json:"priceCents"`
	PurchasedAt time.Time      `json:"purchasedAt"`
	CanceledAt  *time.Time     `json:"canceledAt,omitempty"`
	Status      PurchaseStatus `json:"status"`
}

// Wallet is the singleton library wallet. The balance is never stored;
// it is always derived from the movement sum.
type Wallet struct {
	ID               string `json:"id"`
	MilestoneReached bool   `json:"milestoneReached"`
}

// Movement is one append-only wallet ledger row. A non-nil DedupeKey is
// unique across the table, which makes inserts safely retryable.
type Movement struct {
	ID            string       `json:"id"`
	WalletID      string       `json:"walletId"`
	AmountCents   int64        `json:"amountCents"`
	Type          MovementType `json:"type"`
	Reason        string       `json:"reason"`
	RelatedEntity *string      `json:"relatedEntity,omitempty"`
	DedupeKey     *string      `json:"dedupeKey,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Job is a durable scheduled task. ActiveKey is non-nil exactly while the
// job is schedulable (PENDING or PROCESSING); terminal states clear it,
// releasing the logical slot for future scheduling.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	RunAt       time.Time       `json:"runAt"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	ActiveKey   *string         `json:"-"`
	BookID      *string         `json:"bookId,omitempty"`
	BorrowID    *string         `json:"borrowId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Event is an immutable audit record with soft references to the entities
// it describes.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	UserID     *string         `json:"userId,omitempty"`
	BookID     *string         `json:"bookId,omitempty"`
	BorrowID   *string         `json:"borrowId,omitempty"`
	PurchaseID *string         `json:"purchaseId,omitempty"`
	JobID      *string         `json:"jobId,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	DedupeKey  *string         `json:"dedupeKey,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Email is a simulated outbound email persisted instead of delivered.
type Email struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Type      EmailType `json:"type"`
	DedupeKey string    `json:"dedupeKey"`
	SentAt    time.Time `json:"sentAt"`
}

// IdempotencyRecord is a cached endpoint response keyed by
// (key, userId, endpoint).
type IdempotencyRecord struct {
	Key        string          `json:"key"`
	UserID     string          `json:"userId"`
	Endpoint   string          `json:"endpoint"`
	Response   json.RawMessage `json:"response"`
	StatusCode int             `json:"statusCode"`
	CreatedAt  time.Time       `json:"createdAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Pagination is a validated page request.
type Pagination struct {
	Page     int
	PageSize int
}

// NewPagination clamps raw page parameters to the supported range:
// page >= 1 (default 1), pageSize 1..100 (default 10).
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size.
func (p Pagination) Limit() int {
	return p.PageSize
}

// BookFilter selects books for the catalog listing. String filters are
// case-insensitive substring matches.
type BookFilter struct {
	Title  string
	Author string
	Genre  string
	Page   Pagination
}

// MovementFilter selects ledger rows for the admin listing. Kind is
// "credit" (amount > 0), "debit" (amount < 0) or empty for all.
type MovementFilter struct {
	Kind string
	From *time.Time
	To   *time.Time
	Page Pagination
}

// JobFilter selects jobs for the admin listing.
type JobFilter struct {
	Status JobStatus
	Page   Pagination
}
