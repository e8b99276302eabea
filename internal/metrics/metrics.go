package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the library server.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine operation metrics
	OperationsTotal *prometheus.CounterVec

	// Job queue metrics
	JobRunsTotal   *prometheus.CounterVec
	JobRunDuration *prometheus.HistogramVec

	// Ledger metrics
	MovementsTotal     *prometheus.CounterVec
	MovementCentsTotal *prometheus.CounterVec

	// Idempotency cache metrics
	IdempotencyHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "library_http_request_duration_seconds",
				Help:    "HTTP request duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_operations_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),

		JobRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_job_runs_total",
				Help: "Total number of job runs by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		JobRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "library_job_run_duration_seconds",
				Help:    "Time taken to run a single job",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"type"},
		),

		MovementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_wallet_movements_total",
				Help: "Total number of wallet movements appended",
			},
			[]string{"type"},
		),
		MovementCentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_wallet_movement_cents_total",
				Help: "Absolute movement amount in cents",
			},
			[]string{"type"},
		),

		IdempotencyHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_idempotency_hits_total",
				Help: "Total number of idempotency cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveRequest records an HTTP request and its duration.
func (m *Metrics) ObserveRequest(method, route string, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOperation records an engine operation outcome.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveJobRun records a single job run.
func (m *Metrics) ObserveJobRun(jobType, outcome string, duration time.Duration) {
	m.JobRunsTotal.WithLabelValues(jobType, outcome).Inc()
	m.JobRunDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// ObserveMovement records a wallet movement.
func (m *Metrics) ObserveMovement(movementType string, amountCents int64) {
	if amountCents < 0 {
		amountCents = -amountCents
	}
	m.MovementsTotal.WithLabelValues(movementType).Inc()
	m.MovementCentsTotal.WithLabelValues(movementType).Add(float64(amountCents))
}

// ObserveIdempotency records an idempotency cache lookup outcome.
func (m *Metrics) ObserveIdempotency(outcome string) {
	m.IdempotencyHitsTotal.WithLabelValues(outcome).Inc()
}
