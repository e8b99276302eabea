// Package idempotency caches successful responses to retried mutating
// requests. Records live in the database keyed by key, user and endpoint, so
// replay survives restarts and a key cannot be reused across endpoints or
// users. Concurrent requests carrying the same key collapse into a single
// execution.
package idempotency

import (
	"bytes"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/dummy-library/server/internal/errors"
	"github.com/dummy-library/server/internal/logger"
	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

const (
	// HeaderKey is the idempotency key header.
	HeaderKey = "X-Idempotency-Key"

	// HeaderUser identifies the caller; the cache is scoped per user.
	HeaderUser = "X-User-Email"

	// HeaderReplay marks a response served from the cache or a collapsed
	// in-flight execution.
	HeaderReplay = "X-Idempotency-Replay"

	// DefaultTTL is how long cached responses remain replayable.
	DefaultTTL = 24 * time.Hour
)

// captured is a fully buffered response, replayable to any writer.
type captured struct {
	status int
	header http.Header
	body   *bytes.Buffer
}

func newCaptured() *captured {
	return &captured{
		status: http.StatusOK,
		header: make(http.Header),
		body:   &bytes.Buffer{},
	}
}

func (c *captured) Header() http.Header { return c.header }

func (c *captured) WriteHeader(statusCode int) { c.status = statusCode }

func (c *captured) Write(b []byte) (int, error) { return c.body.Write(b) }

func (c *captured) writeTo(w http.ResponseWriter) {
	for k, vs := range c.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(c.status)
	w.Write(c.body.Bytes())
}

// Cache wraps the persistent idempotency records.
type Cache struct {
	store   storage.Store
	ttl     time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
	flights singleflight.Group
	now     func() time.Time
}

// NewCache creates the cache. A zero TTL falls back to DefaultTTL.
func NewCache(store storage.Store, ttl time.Duration, log zerolog.Logger, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		log:     log.With().Str("component", "idempotency").Logger(),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Used by tests to expire records.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Middleware returns the optional-key variant: requests without an
// X-Idempotency-Key header pass through uncached.
func (c *Cache) Middleware(endpoint string) func(http.Handler) http.Handler {
	return c.middleware(endpoint, false)
}

// RequiredMiddleware rejects requests that omit the X-Idempotency-Key
// header. Used on endpoints whose double execution costs money.
func (c *Cache) RequiredMiddleware(endpoint string) func(http.Handler) http.Handler {
	return c.middleware(endpoint, true)
}

func (c *Cache) middleware(endpoint string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				if required {
					apperrors.WriteError(w, apperrors.ErrCodeIdempotencyKeyRequired,
						"X-Idempotency-Key header is required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			email := r.Header.Get(HeaderUser)

			// Concurrent holders of the same key share one execution. The
			// flight key uses the email header because the user row may not
			// exist until the handler runs.
			flightKey := endpoint + "|" + email + "|" + key
			v, _, shared := c.flights.Do(flightKey, func() (interface{}, error) {
				return c.execute(next, r, key, email, endpoint), nil
			})
			resp := v.(*captured)

			if shared {
				w.Header().Set(HeaderReplay, "true")
			}
			resp.writeTo(w)
		})
	}
}

// execute serves one request, checking the persistent cache first and
// storing the outcome after.
func (c *Cache) execute(next http.Handler, r *http.Request, key, email, endpoint string) *captured {
	userID := c.resolveUser(r, email)

	// A user the store has never seen cannot have a cached response.
	if userID != "" {
		if cached, ok := c.lookup(r, key, userID, endpoint); ok {
			return cached
		}
	}

	resp := newCaptured()
	next.ServeHTTP(resp, r)

	// Server faults are retryable and must not be pinned in the cache.
	if resp.status >= 500 {
		return resp
	}

	// The handler may have created the user on first contact.
	if userID == "" {
		userID = c.resolveUser(r, email)
	}
	if userID == "" {
		return resp
	}

	now := c.now()
	record := storage.IdempotencyRecord{
		Key:        key,
		UserID:     userID,
		Endpoint:   endpoint,
		Response:   resp.body.Bytes(),
		StatusCode: resp.status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}
	if err := c.store.SaveIdempotencyRecord(r.Context(), record); err != nil {
		// The response already went out; losing the cache entry only costs a
		// re-execution on retry.
		c.log.Warn().Err(err).
			Str("endpoint", endpoint).
			Str("user", logger.RedactEmail(email)).
			Msg("failed to save idempotency record")
	}
	if c.metrics != nil {
		c.metrics.ObserveIdempotency("stored")
	}
	return resp
}

// lookup fetches a live cached response. Expired records are deleted on
// sight.
func (c *Cache) lookup(r *http.Request, key, userID, endpoint string) (*captured, bool) {
	record, err := c.store.GetIdempotencyRecord(r.Context(), key, userID, endpoint)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ObserveIdempotency("miss")
		}
		return nil, false
	}

	if c.now().After(record.ExpiresAt) {
		if err := c.store.DeleteIdempotencyRecord(r.Context(), key, userID, endpoint); err != nil {
			c.log.Warn().Err(err).Msg("failed to delete expired idempotency record")
		}
		if c.metrics != nil {
			c.metrics.ObserveIdempotency("expired")
		}
		return nil, false
	}

	if c.metrics != nil {
		c.metrics.ObserveIdempotency("hit")
	}
	resp := newCaptured()
	resp.header.Set("Content-Type", "application/json")
	resp.header.Set(HeaderReplay, "true")
	resp.status = record.StatusCode
	resp.body.Write(record.Response)
	return resp, true
}

func (c *Cache) resolveUser(r *http.Request, email string) string {
	if email == "" {
		return ""
	}
	user, err := c.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		return ""
	}
	return user.ID
}
