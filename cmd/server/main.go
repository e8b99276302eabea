// Command server runs the library HTTP API, the durable job runner, and the
// database seeder as one process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/config"
	"github.com/dummy-library/server/internal/dbpool"
	"github.com/dummy-library/server/internal/httpserver"
	"github.com/dummy-library/server/internal/idempotency"
	"github.com/dummy-library/server/internal/jobs"
	"github.com/dummy-library/server/internal/library"
	"github.com/dummy-library/server/internal/lifecycle"
	"github.com/dummy-library/server/internal/logger"
	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/seed"
	"github.com/dummy-library/server/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "library-server",
		Environment: cfg.Environment,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	resources := lifecycle.NewManager()
	defer func() {
		if err := resources.Close(); err != nil {
			log.Error().Err(err).Msg("resource shutdown reported errors")
		}
	}()

	store, err := buildStore(cfg, log, resources)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := seed.Run(ctx, store, cfg.Seed, log); err != nil {
		return err
	}

	collector := metrics.New(nil)
	service := library.NewService(store, log).
		WithMetrics(collector).
		WithJobMaxAttempts(cfg.Jobs.MaxAttempts)
	cache := idempotency.NewCache(store, cfg.Idempotency.TTL.Duration, log, collector)

	runner := jobs.NewRunner(jobs.RunnerOptions{
		Store:    store,
		Config:   cfg.Jobs,
		Logger:   log,
		Metrics:  collector,
		Handlers: jobs.NewHandlers(store, log).WithMetrics(collector).Map(),
	})
	runner.Start(ctx)
	resources.RegisterFunc("job-runner", func() error {
		runner.Stop()
		return nil
	})

	server := httpserver.New(httpserver.Options{
		Config:  cfg,
		Service: service,
		Store:   store,
		Cache:   cache,
		Metrics: collector,
		Logger:  log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("http server listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// buildStore opens Postgres when a URL is configured and falls back to the
// in-memory backend otherwise.
func buildStore(cfg *config.Config, log zerolog.Logger, resources *lifecycle.Manager) (storage.Store, error) {
	if cfg.Database.URL == "" {
		log.Warn().Msg("no database url configured, using in-memory store; state will not survive restarts")
		return storage.NewMemoryStore(), nil
	}

	pool, err := dbpool.New(cfg.Database.URL, cfg.Database.Pool)
	if err != nil {
		return nil, err
	}
	resources.Register("database-pool", pool)

	store, err := storage.NewPostgresStore(pool.DB())
	if err != nil {
		return nil, err
	}
	return store, nil
}
