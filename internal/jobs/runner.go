// Package jobs runs the durable job queue: a polling runner that claims due
// jobs under a lease and the restock and reminder handlers it dispatches to.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/config"
	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

// Handler processes a single claimed job. A nil return completes the job; an
// error reschedules it with backoff until its attempt budget runs out.
type Handler func(ctx context.Context, job storage.Job) error

// Runner polls the queue and dispatches due jobs to their handlers.
type Runner struct {
	store    storage.Store
	cfg      config.JobsConfig
	handlers map[storage.JobType]Handler
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	stopChan chan struct{}
	doneChan chan struct{}
}

// RunnerOptions configures the job runner.
type RunnerOptions struct {
	Store    storage.Store
	Config   config.JobsConfig
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Handlers map[storage.JobType]Handler
}

// NewRunner creates a job runner. Zero config fields fall back to defaults.
func NewRunner(opts RunnerOptions) *Runner {
	cfg := opts.Config
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval.Duration = 5 * time.Second
	}
	if cfg.Lease.Duration <= 0 {
		cfg.Lease.Duration = time.Minute
	}
	if cfg.HandlerTimeout.Duration <= 0 {
		cfg.HandlerTimeout.Duration = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	return &Runner{
		store:    opts.Store,
		cfg:      cfg,
		handlers: opts.Handlers,
		logger:   opts.Logger.With().Str("component", "jobs").Logger(),
		metrics:  opts.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// WithClock overrides the time source. Used by tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Start begins polling for due jobs.
func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop gracefully stops the runner, waiting for the loop to exit.
func (r *Runner) Stop() {
	close(r.stopChan)
	<-r.doneChan
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.cfg.PollInterval.Duration)
	defer ticker.Stop()

	r.logger.Info().
		Dur("pollInterval", r.cfg.PollInterval.Duration).
		Dur("lease", r.cfg.Lease.Duration).
		Msg("job runner started")

	for {
		select {
		case <-r.stopChan:
			r.logger.Info().Msg("job runner stopping")
			return
		case <-ctx.Done():
			r.logger.Info().Msg("job runner context canceled")
			return
		case <-ticker.C:
			r.ProcessDue(ctx)
		}
	}
}

// ProcessDue claims and runs one batch of due jobs. Exported so tests and the
// admin retry path can drive the queue without waiting for the ticker.
func (r *Runner) ProcessDue(ctx context.Context) {
	now := r.now()
	due, err := r.store.DueJobs(ctx, now, r.cfg.Lease.Duration, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to fetch due jobs")
		return
	}
	if len(due) == 0 {
		return
	}

	r.logger.Debug().Int("count", len(due)).Msg("processing due jobs")

	for _, job := range due {
		r.runJob(ctx, job)
	}
}

// runJob claims and executes one job. The claim bumps the attempt counter so
// a crash mid-handler still consumes an attempt once the lease expires.
func (r *Runner) runJob(ctx context.Context, job storage.Job) {
	claimed, err := r.store.ClaimJob(ctx, job.ID, r.now(), r.cfg.Lease.Duration)
	if err != nil {
		r.logger.Error().Err(err).Str("jobID", job.ID).Msg("failed to claim job")
		return
	}
	if !claimed {
		// Another runner instance got there first.
		return
	}
	job.Attempts++

	handler, ok := r.handlers[job.Type]
	if !ok {
		r.fail(ctx, job, fmt.Errorf("no handler registered for job type %s", job.Type))
		return
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.HandlerTimeout.Duration)
	err = handler(jobCtx, job)
	cancel()
	duration := time.Since(start)

	if err == nil {
		if markErr := r.store.CompleteJob(ctx, job.ID, r.now()); markErr != nil {
			r.logger.Error().Err(markErr).Str("jobID", job.ID).Msg("failed to complete job")
			return
		}
		if r.metrics != nil {
			r.metrics.ObserveJobRun(string(job.Type), "completed", duration)
		}
		r.logger.Info().
			Str("jobID", job.ID).
			Str("type", string(job.Type)).
			Int("attempts", job.Attempts).
			Dur("duration", duration).
			Msg("job completed")
		return
	}

	if job.Attempts >= job.MaxAttempts {
		if r.metrics != nil {
			r.metrics.ObserveJobRun(string(job.Type), "failed", duration)
		}
		r.fail(ctx, job, err)
		return
	}

	delay := Backoff(job.Attempts)
	if markErr := r.store.RescheduleJob(ctx, job.ID, r.now().Add(delay), err.Error()); markErr != nil {
		r.logger.Error().Err(markErr).Str("jobID", job.ID).Msg("failed to reschedule job")
		return
	}
	if r.metrics != nil {
		r.metrics.ObserveJobRun(string(job.Type), "retried", duration)
	}
	r.logger.Warn().
		Err(err).
		Str("jobID", job.ID).
		Str("type", string(job.Type)).
		Int("attempts", job.Attempts).
		Dur("nextRetryIn", delay).
		Msg("job failed, scheduled for retry")
}

func (r *Runner) fail(ctx context.Context, job storage.Job, cause error) {
	if markErr := r.store.FailJob(ctx, job.ID, cause.Error(), r.now()); markErr != nil {
		r.logger.Error().Err(markErr).Str("jobID", job.ID).Msg("failed to mark job failed")
		return
	}
	r.logger.Warn().
		Err(cause).
		Str("jobID", job.ID).
		Str("type", string(job.Type)).
		Int("attempts", job.Attempts).
		Msg("job failed permanently")
}
