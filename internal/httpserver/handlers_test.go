package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/config"
	"github.com/dummy-library/server/internal/idempotency"
	"github.com/dummy-library/server/internal/library"
	"github.com/dummy-library/server/internal/metrics"
	"github.com/dummy-library/server/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.EnsureWallet(context.Background()); err != nil {
		t.Fatalf("EnsureWallet failed: %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}
	cfg.RateLimit.Enabled = false

	log := zerolog.Nop()
	srv := New(Options{
		Config:  cfg,
		Service: library.NewService(store, log),
		Store:   store,
		Cache:   idempotency.NewCache(store, time.Hour, log, nil),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  log,
	})
	return srv, store
}

func seedBook(t *testing.T, store *storage.MemoryStore, isbn, title string, copies int) storage.Book {
	t.Helper()
	book := storage.Book{
		ID:              uuid.NewString(),
		ISBN:            isbn,
		Title:           title,
		Author:          "Author",
		Genre:           "fiction",
		SellCents:       4500,
		BorrowCents:     500,
		StockCents:      2000,
		AvailableCopies: copies,
		SeededCopies:    copies,
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.CreateBook(context.Background(), book); err != nil {
		t.Fatalf("CreateBook failed: %v", err)
	}
	return book
}

func do(srv *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func asUser(email string) map[string]string {
	return map[string]string{"X-User-Email": email}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	if body.Error.Code == "" {
		t.Fatalf("no error code in body %q", rec.Body.String())
	}
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]bool
	decodeBody(t, rec, &body)
	if !body["ok"] {
		t.Errorf("body = %q, want ok:true", rec.Body.String())
	}
}

func TestListBooksFilterAndPagination(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "Go in Anger", 3)
	seedBook(t, store, "isbn-2", "Calm Databases", 3)
	seedBook(t, store, "isbn-3", "Go Further", 3)

	rec := do(srv, http.MethodGet, "/api/books?title=go&pageSize=1&page=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination struct {
			Total      int `json:"total"`
			Page       int `json:"page"`
			PageSize   int `json:"pageSize"`
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}
	decodeBody(t, rec, &body)
	if body.Pagination.Total != 2 || body.Pagination.TotalPages != 2 || len(body.Data) != 1 {
		t.Errorf("pagination = %+v with %d rows, want total 2 over 2 pages", body.Pagination, len(body.Data))
	}
	if body.Data[0]["sellFormatted"] != "45.00" {
		t.Errorf("sellFormatted = %v, want 45.00", body.Data[0]["sellFormatted"])
	}
}

func TestBorrowEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "A Book", 5)

	rec := do(srv, http.MethodPost, "/api/books/isbn-1/borrow", asUser("alice@example.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status string `json:"status"`
		Book   struct {
			AvailableCopies int `json:"availableCopies"`
		} `json:"book"`
		IsExisting bool `json:"isExisting"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "ACTIVE" || body.Book.AvailableCopies != 4 || body.IsExisting {
		t.Errorf("body = %+v", body)
	}
}

func TestUserHeaderValidation(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "A Book", 5)

	rec := do(srv, http.MethodPost, "/api/books/isbn-1/borrow", nil)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "USER_EMAIL_REQUIRED" {
		t.Errorf("missing header: status %d code %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, http.MethodPost, "/api/books/isbn-1/borrow", asUser("not-an-email"))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_EMAIL" {
		t.Errorf("malformed header: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestBorrowUnknownBook(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(srv, http.MethodPost, "/api/books/nope/borrow", asUser("alice@example.com"))
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "BOOK_NOT_FOUND" {
		t.Errorf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestBuyRequiresIdempotencyKey(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "A Book", 5)

	rec := do(srv, http.MethodPost, "/api/books/isbn-1/buy", asUser("alice@example.com"))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "IDEMPOTENCY_KEY_REQUIRED" {
		t.Errorf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestBuyReplaySameKey(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "A Book", 5)

	headers := asUser("alice@example.com")
	headers["X-Idempotency-Key"] = "buy-1"

	first := do(srv, http.MethodPost, "/api/books/isbn-1/buy", headers)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, body %s", first.Code, first.Body.String())
	}
	var firstBody struct {
		ID string `json:"id"`
	}
	decodeBody(t, first, &firstBody)

	second := do(srv, http.MethodPost, "/api/books/isbn-1/buy", headers)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d", second.Code)
	}
	if second.Header().Get("X-Idempotency-Replay") != "true" {
		t.Error("replay header missing")
	}
	var secondBody struct {
		ID string `json:"id"`
	}
	decodeBody(t, second, &secondBody)
	if secondBody.ID != firstBody.ID {
		t.Errorf("replayed purchase id %s, want %s", secondBody.ID, firstBody.ID)
	}

	// Exactly one purchase and one movement happened.
	book, _ := store.GetBookByISBN(context.Background(), "isbn-1")
	if book.AvailableCopies != 4 {
		t.Errorf("available copies = %d, want 4", book.AvailableCopies)
	}
	balance, _ := store.WalletBalance(context.Background())
	if balance != 4500 {
		t.Errorf("balance = %d, want 4500", balance)
	}
}

func TestCancelEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "A Book", 5)

	headers := asUser("alice@example.com")
	headers["X-Idempotency-Key"] = "buy-1"
	bought := do(srv, http.MethodPost, "/api/books/isbn-1/buy", headers)
	var purchase struct {
		ID string `json:"id"`
	}
	decodeBody(t, bought, &purchase)

	rec := do(srv, http.MethodPost, "/api/purchases/"+purchase.ID+"/cancel", asUser("alice@example.com"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "CANCELED" {
		t.Errorf("status = %s, want CANCELED", body.Status)
	}

	balance, _ := store.WalletBalance(context.Background())
	if balance != 0 {
		t.Errorf("balance = %d, want 0 after refund", balance)
	}
}

func TestAdminGuard(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/admin/wallet", asUser("alice@example.com"))
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "FORBIDDEN" {
		t.Errorf("non-admin: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, http.MethodGet, "/api/admin/wallet", nil)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "USER_EMAIL_REQUIRED" {
		t.Errorf("missing header: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestAdminWalletAndMovements(t *testing.T) {
	srv, store := newTestServer(t)
	seedBook(t, store, "isbn-1", "A Book", 5)

	headers := asUser("alice@example.com")
	headers["X-Idempotency-Key"] = "buy-1"
	if rec := do(srv, http.MethodPost, "/api/books/isbn-1/buy", headers); rec.Code != http.StatusOK {
		t.Fatalf("buy failed: %d", rec.Code)
	}

	rec := do(srv, http.MethodGet, "/api/admin/wallet", asUser(AdminEmail))
	if rec.Code != http.StatusOK {
		t.Fatalf("wallet status = %d", rec.Code)
	}
	var wallet walletDTO
	decodeBody(t, rec, &wallet)
	if wallet.BalanceCents != 4500 || wallet.BalanceFormatted != "45.00" {
		t.Errorf("wallet = %+v", wallet)
	}

	rec = do(srv, http.MethodGet, "/api/admin/wallet/movements?type=credit", asUser(AdminEmail))
	if rec.Code != http.StatusOK {
		t.Fatalf("movements status = %d", rec.Code)
	}
	var movements struct {
		Data []movementDTO `json:"data"`
	}
	decodeBody(t, rec, &movements)
	if len(movements.Data) != 1 || movements.Data[0].Type != "BUY_INCOME" {
		t.Errorf("movements = %+v", movements.Data)
	}

	rec = do(srv, http.MethodGet, "/api/admin/wallet/movements?type=sideways", asUser(AdminEmail))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Errorf("bad filter: status %d body %s", rec.Code, rec.Body.String())
	}
}

func failedJob(t *testing.T, store *storage.MemoryStore, book storage.Book) storage.Job {
	t.Helper()
	ctx := context.Background()
	payload, _ := json.Marshal(map[string]string{"bookId": book.ID, "isbn": book.ISBN})
	activeKey := "RESTOCK:" + book.ID
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        storage.JobTypeRestock,
		Status:      storage.JobStatusPending,
		Payload:     payload,
		RunAt:       time.Now().UTC(),
		MaxAttempts: 3,
		ActiveKey:   &activeKey,
		BookID:      &book.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := store.FailJob(ctx, job.ID, "boom", time.Now().UTC()); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	return job
}

func TestAdminRetryJob(t *testing.T) {
	srv, store := newTestServer(t)
	book := seedBook(t, store, "isbn-1", "A Book", 5)
	job := failedJob(t, store, book)

	rec := do(srv, http.MethodPost, fmt.Sprintf("/api/admin/jobs/%s/retry", job.ID), asUser(AdminEmail))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status   string `json:"status"`
		Attempts int    `json:"attempts"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "PENDING" || body.Attempts != 0 {
		t.Errorf("retried job = %+v, want PENDING with attempts reset", body)
	}

	rec = do(srv, http.MethodPost, "/api/admin/jobs/no-such-job/retry", asUser(AdminEmail))
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "JOB_NOT_FOUND" {
		t.Errorf("status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestAdminJobsFilter(t *testing.T) {
	srv, store := newTestServer(t)
	book := seedBook(t, store, "isbn-1", "A Book", 5)
	failedJob(t, store, book)

	rec := do(srv, http.MethodGet, "/api/admin/jobs?status=FAILED", asUser(AdminEmail))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data []storage.Job `json:"data"`
	}
	decodeBody(t, rec, &body)
	if len(body.Data) != 1 || body.Data[0].Status != storage.JobStatusFailed {
		t.Errorf("jobs = %+v", body.Data)
	}

	rec = do(srv, http.MethodGet, "/api/admin/jobs?status=COMPLETED", asUser(AdminEmail))
	decodeBody(t, rec, &body)
	if len(body.Data) != 0 {
		t.Errorf("expected no completed jobs, got %+v", body.Data)
	}
}
