package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/storage"
)

func newCache(t *testing.T) (*Cache, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewCache(store, time.Hour, zerolog.Nop(), nil), store
}

func countingHandler(store *storage.MemoryStore, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		// Engines create users on first contact; mirror that here.
		if email := r.Header.Get(HeaderUser); email != "" {
			store.UpsertUserByEmail(r.Context(), email)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"call":%d}`, *calls)
	})
}

func doRequest(handler http.Handler, key, email string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/books/x/buy", nil)
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	if email != "" {
		req.Header.Set(HeaderUser, email)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequiredKeyMissing(t *testing.T) {
	cache, store := newCache(t)
	calls := 0
	handler := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(countingHandler(store, &calls))

	rec := doRequest(handler, "", "alice@example.com")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if calls != 0 {
		t.Errorf("handler ran %d times, want 0", calls)
	}
}

func TestReplayStoredResponse(t *testing.T) {
	cache, store := newCache(t)
	calls := 0
	handler := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(countingHandler(store, &calls))

	first := doRequest(handler, "key-1", "alice@example.com")
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.Code)
	}
	if first.Header().Get(HeaderReplay) != "" {
		t.Error("first response must not be marked as replay")
	}

	second := doRequest(handler, "key-1", "alice@example.com")
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if second.Code != http.StatusCreated {
		t.Errorf("replay status = %d, want 201", second.Code)
	}
	if second.Header().Get(HeaderReplay) != "true" {
		t.Error("replay header missing")
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replay body = %q, want %q", second.Body.String(), first.Body.String())
	}
}

func TestCacheScopedByKeyAndUser(t *testing.T) {
	cache, store := newCache(t)
	calls := 0
	handler := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(countingHandler(store, &calls))

	doRequest(handler, "key-1", "alice@example.com")
	doRequest(handler, "key-2", "alice@example.com")
	if calls != 2 {
		t.Errorf("handler ran %d times for distinct keys, want 2", calls)
	}

	doRequest(handler, "key-1", "bob@example.com")
	if calls != 3 {
		t.Errorf("handler ran %d times for distinct users, want 3", calls)
	}
}

func TestCacheScopedByEndpoint(t *testing.T) {
	cache, store := newCache(t)
	calls := 0
	buy := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(countingHandler(store, &calls))
	cancel := cache.Middleware("POST:/api/purchases/{id}/cancel")(countingHandler(store, &calls))

	doRequest(buy, "key-1", "alice@example.com")
	doRequest(cancel, "key-1", "alice@example.com")
	if calls != 2 {
		t.Errorf("handler ran %d times across endpoints, want 2", calls)
	}
}

func TestExpiredRecordReExecutes(t *testing.T) {
	cache, store := newCache(t)
	now := time.Now().UTC()
	cache.WithClock(func() time.Time { return now })

	calls := 0
	handler := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(countingHandler(store, &calls))

	doRequest(handler, "key-1", "alice@example.com")

	now = now.Add(2 * time.Hour)
	doRequest(handler, "key-1", "alice@example.com")
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2 after expiry", calls)
	}

	// The expired record is gone from the store.
	user, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	record, err := store.GetIdempotencyRecord(context.Background(), "key-1", user.ID, "POST:/api/books/{isbn}/buy")
	if err != nil {
		t.Fatalf("GetIdempotencyRecord failed: %v", err)
	}
	if !record.ExpiresAt.After(now) {
		t.Error("refreshed record should carry a new expiry")
	}
}

func TestServerErrorNotCached(t *testing.T) {
	cache, store := newCache(t)
	calls := 0
	handler := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if email := r.Header.Get(HeaderUser); email != "" {
				store.UpsertUserByEmail(r.Context(), email)
			}
			http.Error(w, "boom", http.StatusInternalServerError)
		}))

	doRequest(handler, "key-1", "alice@example.com")
	doRequest(handler, "key-1", "alice@example.com")
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2 (5xx must not be cached)", calls)
	}
}

func TestConcurrentSameKeyCollapses(t *testing.T) {
	cache, store := newCache(t)

	var mu sync.Mutex
	calls := 0
	handler := cache.RequiredMiddleware("POST:/api/books/{isbn}/buy")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			store.UpsertUserByEmail(r.Context(), r.Header.Get(HeaderUser))
			time.Sleep(20 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"call":%d}`, n)
		}))

	const parallel = 5
	var wg sync.WaitGroup
	bodies := make([]string, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := doRequest(handler, "key-1", "alice@example.com")
			bodies[i] = rec.Body.String()
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("handler ran %d times, want 1 for concurrent same-key requests", calls)
	}
	for i := 1; i < parallel; i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("body %d = %q, want %q", i, bodies[i], bodies[0])
		}
	}
}

func TestOptionalKeyPassesThrough(t *testing.T) {
	cache, store := newCache(t)
	calls := 0
	handler := cache.Middleware("POST:/api/purchases/{id}/cancel")(countingHandler(store, &calls))

	doRequest(handler, "", "alice@example.com")
	doRequest(handler, "", "alice@example.com")
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2 without a key", calls)
	}
}
