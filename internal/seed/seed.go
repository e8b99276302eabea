// Package seed prepares a fresh database: the singleton wallet, the book
// catalog from a YAML file, and the opening wallet balance that funds
// restocks. Every step is idempotent, so rerunning on boot changes nothing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dummy-library/server/internal/config"
	"github.com/dummy-library/server/internal/storage"
)

// Catalog is the YAML shape of the seed file.
type Catalog struct {
	Books []BookEntry `yaml:"books"`
}

// BookEntry is one catalog row. Copies becomes both the shelf count and the
// restock target.
type BookEntry struct {
	ISBN        string `yaml:"isbn"`
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Genre       string `yaml:"genre"`
	SellCents   int64  `yaml:"sell_cents"`
	BorrowCents int64  `yaml:"borrow_cents"`
	StockCents  int64  `yaml:"stock_cents"`
	Copies      int    `yaml:"copies"`
}

func (e BookEntry) validate() error {
	if e.ISBN == "" {
		return errors.New("isbn is required")
	}
	if e.Title == "" {
		return errors.New("title is required")
	}
	if e.SellCents < 0 || e.BorrowCents < 0 || e.StockCents < 0 {
		return errors.New("prices must not be negative")
	}
	if e.Copies < 1 {
		return errors.New("copies must be at least 1")
	}
	return nil
}

// Run seeds the store. Books already present are left untouched; the
// opening balance movement carries a fixed dedupe key so it lands once ever.
func Run(ctx context.Context, store storage.Store, cfg config.SeedConfig, log zerolog.Logger) error {
	log = log.With().Str("component", "seed").Logger()

	if err := store.EnsureWallet(ctx); err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}

	if cfg.InitialBalanceCents > 0 {
		dedupe := "INITIAL_BALANCE"
		if _, err := store.AppendMovement(ctx, storage.Movement{
			ID:          uuid.NewString(),
			WalletID:    storage.WalletID,
			AmountCents: cfg.InitialBalanceCents,
			Type:        storage.MovementInitialBalance,
			Reason:      "opening balance",
			DedupeKey:   &dedupe,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("seed opening balance: %w", err)
		}
	}

	if cfg.Path == "" {
		log.Info().Msg("no catalog path configured, skipping book seeding")
		return nil
	}

	catalog, err := loadCatalog(cfg.Path)
	if err != nil {
		return err
	}

	created := 0
	for i, entry := range catalog.Books {
		if err := entry.validate(); err != nil {
			return fmt.Errorf("catalog entry %d (%s): %w", i, entry.ISBN, err)
		}

		_, err := store.GetBookByISBN(ctx, entry.ISBN)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("look up book %s: %w", entry.ISBN, err)
		}

		book := storage.Book{
			ID:              uuid.NewString(),
			ISBN:            entry.ISBN,
			Title:           entry.Title,
			Author:          entry.Author,
			Genre:           entry.Genre,
			SellCents:       entry.SellCents,
			BorrowCents:     entry.BorrowCents,
			StockCents:      entry.StockCents,
			AvailableCopies: entry.Copies,
			SeededCopies:    entry.Copies,
			CreatedAt:       time.Now().UTC(),
		}
		if err := store.CreateBook(ctx, book); err != nil {
			return fmt.Errorf("create book %s: %w", entry.ISBN, err)
		}
		created++
	}

	log.Info().
		Int("catalog", len(catalog.Books)).
		Int("created", created).
		Msg("catalog seeded")
	return nil
}

func loadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	return catalog, nil
}
