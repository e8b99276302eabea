package jobs

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

// Handlers holds the job handlers for the library queue.
type Handlers struct {
	store   storage.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(store storage.Store, log zerolog.Logger) *Handlers {
	return &Handlers{
		store: store,
		log:   log.With().Str("component", "jobs").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// WithMetrics enables ledger movement counters on the handlers.
func (h *Handlers) WithMetrics(m *metrics.Metrics) *Handlers {
	h.metrics = m
	return h
}

// Map returns the handler for each job type, keyed for the runner.
func (h *Handlers) Map() map[storage.JobType]Handler {
	return map[storage.JobType]Handler{
		storage.JobTypeRestock:  h.Restock,
		storage.JobTypeReminder: h.Reminder,
	}
}
