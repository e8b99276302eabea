package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dummy-library/server/internal/config"
	"github.com/dummy-library/server/internal/storage"
)

const testCatalog = `
books:
  - isbn: isbn-1
    title: First Book
    author: Alice Author
    genre: fiction
    sell_cents: 4500
    borrow_cents: 500
    stock_cents: 2000
    copies: 5
  - isbn: isbn-2
    title: Second Book
    author: Bob Author
    genre: history
    sell_cents: 3000
    borrow_cents: 300
    stock_cents: 1500
    copies: 2
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestRunSeedsCatalogAndBalance(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	cfg := config.SeedConfig{
		Path:                writeCatalog(t, testCatalog),
		InitialBalanceCents: 50_000,
	}

	if err := Run(ctx, store, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	book, err := store.GetBookByISBN(ctx, "isbn-1")
	if err != nil {
		t.Fatalf("seeded book missing: %v", err)
	}
	if book.AvailableCopies != 5 || book.SeededCopies != 5 || book.SellCents != 4500 {
		t.Errorf("book = %+v", book)
	}

	balance, err := store.WalletBalance(ctx)
	if err != nil {
		t.Fatalf("WalletBalance failed: %v", err)
	}
	if balance != 50_000 {
		t.Errorf("balance = %d, want 50000", balance)
	}

	if _, err := store.GetWallet(ctx); err != nil {
		t.Errorf("wallet row missing: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	cfg := config.SeedConfig{
		Path:                writeCatalog(t, testCatalog),
		InitialBalanceCents: 50_000,
	}

	if err := Run(ctx, store, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Drain a copy so a rerun would be visible if it reset the count.
	taken, err := store.DecrementAvailableCopies(ctx, "isbn-1")
	if err != nil || !taken {
		t.Fatalf("decrement failed: taken=%v err=%v", taken, err)
	}

	if err := Run(ctx, store, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	book, _ := store.GetBookByISBN(ctx, "isbn-1")
	if book.AvailableCopies != 4 {
		t.Errorf("available copies = %d, want 4 (rerun must not reset)", book.AvailableCopies)
	}

	balance, _ := store.WalletBalance(ctx)
	if balance != 50_000 {
		t.Errorf("balance = %d, want one opening movement only", balance)
	}
}

func TestRunRejectsInvalidEntry(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := config.SeedConfig{
		Path: writeCatalog(t, "books:\n  - isbn: isbn-1\n    title: \"\"\n    copies: 1\n"),
	}

	if err := Run(context.Background(), store, cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected validation error for empty title")
	}
}

func TestRunWithoutCatalogPath(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := config.SeedConfig{InitialBalanceCents: 1000}

	if err := Run(context.Background(), store, cfg, zerolog.Nop()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	balance, _ := store.WalletBalance(context.Background())
	if balance != 1000 {
		t.Errorf("balance = %d, want 1000", balance)
	}
}
