// Package httpserver exposes the library over HTTP: the public catalog and
// engine endpoints, the admin surface, and the health and metrics probes.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/config"
	"github.com/dummy-library/server/internal/idempotency"
	"github.com/dummy-library/server/internal/library"
	"github.com/dummy-library/server/internal/logger"
	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

// AdminEmail is the literal identity that grants admin access.
const AdminEmail = "admin@dummy-library.com"

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg     *config.Config
	service *library.Service
	store   storage.Store
	cache   *idempotency.Cache
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Options holds the server's dependencies.
type Options struct {
	Config  *config.Config
	Service *library.Service
	Store   storage.Store
	Cache   *idempotency.Cache
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// New builds the HTTP server with its configured router.
func New(opts Options) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:     opts.Config,
			service: opts.Service,
			store:   opts.Store,
			cache:   opts.Cache,
			metrics: opts.Metrics,
			logger:  opts.Logger,
		},
		httpServer: &http.Server{
			Addr:         opts.Config.Server.Address,
			ReadTimeout:  opts.Config.Server.ReadTimeout.Duration,
			WriteTimeout: opts.Config.Server.WriteTimeout.Duration,
			IdleTimeout:  opts.Config.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router)
	return s
}

func (s *Server) configureRouter(router chi.Router) {
	cfg := s.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Logging before RequestID so the request-scoped logger propagates.
	router.Use(logger.Middleware(s.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if s.metrics != nil {
		router.Use(s.metrics.Middleware)
	}

	if cfg.RateLimit.Enabled {
		router.Use(httprate.LimitByIP(cfg.RateLimit.Limit, cfg.RateLimit.Window.Duration))
	}

	// Lightweight probes with a short timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/health", s.health)
		r.Handle("/metrics", promhttp.Handler())
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))

		r.Get("/api/books", s.listBooks)

		// State-changing endpoints require caller identity. Buy carries real
		// money, so its idempotency key is mandatory.
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/api/books/{isbn}/borrow", s.borrowBook)
			r.Post("/api/books/{isbn}/return", s.returnBook)
			r.With(s.cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")).
				Post("/api/books/{isbn}/buy", s.buyBook)
			r.With(s.cache.Middleware("POST:/api/purchases/{id}/cancel")).
				Post("/api/purchases/{id}/cancel", s.cancelPurchase)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Use(requireAdmin)
			r.Get("/api/admin/wallet", s.adminWallet)
			r.Get("/api/admin/wallet/movements", s.adminMovements)
			r.Get("/api/admin/jobs", s.adminJobs)
			r.Post("/api/admin/jobs/{id}/retry", s.adminRetryJob)
			r.Get("/api/admin/emails", s.adminEmails)
			r.Get("/api/admin/events", s.adminEvents)
		})
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
