// Package library implements the transactional core: borrow, return, buy
// and cancel engines, plus the stock and milestone watchers that run inside
// the triggering transaction.
package library

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

// Business limits and windows.
const (
	MaxActiveBorrows          = 3
	MaxActivePurchasesPerBook = 2
	MaxActivePurchases        = 10

	BorrowPeriod = 72 * time.Hour
	CancelWindow = 5 * time.Minute
	RestockDelay = time.Hour

	// MilestoneCents is the one-shot wallet threshold ($2000).
	MilestoneCents = 200_000

	// DefaultJobMaxAttempts is the retry budget for jobs scheduled by the
	// engines.
	DefaultJobMaxAttempts = 10
)

// Notification recipients.
const (
	SupplyEmail     = "supply@library.com"
	ManagementEmail = "management@dummy-library.com"
)

// Audit event types.
const (
	EventBorrow           = "BORROW"
	EventReturn           = "RETURN"
	EventBuy              = "BUY"
	EventCancelBuy        = "CANCEL_BUY"
	EventLowStockEmail    = "LOW_STOCK_EMAIL"
	EventRestockScheduled = "RESTOCK_SCHEDULED"
	EventRestockDelivered = "RESTOCK_DELIVERED"
	EventReminderSent     = "REMINDER_SENT"
	EventMilestoneEmail   = "MILESTONE_EMAIL"
)

// Service runs each engine operation inside one serializable transaction.
type Service struct {
	store          storage.Store
	log            zerolog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
	jobMaxAttempts int
}

// NewService creates the engine service.
func NewService(store storage.Store, log zerolog.Logger) *Service {
	return &Service{
		store:          store,
		log:            log.With().Str("component", "library").Logger(),
		now:            func() time.Time { return time.Now().UTC() },
		jobMaxAttempts: DefaultJobMaxAttempts,
	}
}

// WithClock overrides the time source. Used by tests to control windows and
// due times.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithMetrics enables ledger movement counters on the engines.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// WithJobMaxAttempts sets the retry budget stamped on jobs the engines
// schedule. Zero or negative keeps the default.
func (s *Service) WithJobMaxAttempts(n int) *Service {
	if n > 0 {
		s.jobMaxAttempts = n
	}
	return s
}

// observeMovement records a committed ledger movement. Called after the
// transaction commits so a rolled-back write is never counted.
func (s *Service) observeMovement(movementType storage.MovementType, amountCents int64) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(movementType), amountCents)
	}
}

// BorrowResult is the outcome of a borrow or return operation. IsExisting
// reports an idempotent success: the returned borrow pre-dates the call and
// no state changed.
type BorrowResult struct {
	Borrow     storage.Borrow
	Book       storage.Book
	IsExisting bool
}

// PurchaseResult is the outcome of a buy or cancel operation.
type PurchaseResult struct {
	Purchase   storage.Purchase
	Book       storage.Book
	IsExisting bool
}
