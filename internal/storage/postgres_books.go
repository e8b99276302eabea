package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const bookColumns = `id, isbn, title, author, genre, sell_cents, borrow_cents, stock_cents, available_copies, seeded_copies, created_at`

// CreateBook inserts a catalog entry.
func (p pgQueries) CreateBook(ctx context.Context, book Book) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		book.ID,
		book.ISBN,
		book.Title,
		book.Author,
		book.Genre,
		book.SellCents,
		book.BorrowCents,
		book.StockCents,
		book.AvailableCopies,
		book.SeededCopies,
		book.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: book %s", ErrDuplicateKey, book.ISBN)
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetBookByISBN loads a book by its external identity.
func (p pgQueries) GetBookByISBN(ctx context.Context, isbn string) (Book, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = $1`, isbn)
	return scanBook(row)
}

// GetBookByID loads a book by its internal id.
func (p pgQueries) GetBookByID(ctx context.Context, id string) (Book, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	row := p.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	return scanBook(row)
}

// ListBooks returns a catalog page plus the unpaginated match count.
func (p pgQueries) ListBooks(ctx context.Context, filter BookFilter) ([]Book, int, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	where := ` WHERE 1=1`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Title != "" {
		where += ` AND title ILIKE ` + arg("%"+filter.Title+"%")
	}
	if filter.Author != "" {
		where += ` AND author ILIKE ` + arg("%"+filter.Author+"%")
	}
	if filter.Genre != "" {
		where += ` AND genre ILIKE ` + arg("%"+filter.Genre+"%")
	}

	var total int
	if err := p.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	query := `SELECT ` + bookColumns + ` FROM books` + where +
		` ORDER BY title ASC LIMIT ` + arg(filter.Page.Limit()) +
		` OFFSET ` + arg(filter.Page.Offset())

	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, total, rows.Err()
}

// DecrementAvailableCopies takes one copy if any remain. The conditional
// WHERE clause is what keeps inventory non-negative under concurrency.
func (p pgQueries) DecrementAvailableCopies(ctx context.Context, isbn string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies - 1
		WHERE isbn = $1 AND available_copies >= 1
	`, isbn)
	if err != nil {
		return false, fmt.Errorf("decrement copies: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return affected > 0, nil
}

// IncrementAvailableCopies returns copies to the shelf.
func (p pgQueries) IncrementAvailableCopies(ctx context.Context, bookID string, n int) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	result, err := p.q.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies + $2
		WHERE id = $1
	`, bookID, n)
	if err != nil {
		return fmt.Errorf("increment copies: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBook(s scanner) (Book, error) {
	var book Book
	var createdAt time.Time
	err := s.Scan(
		&book.ID,
		&book.ISBN,
		&book.Title,
		&book.Author,
		&book.Genre,
		&book.SellCents,
		&book.BorrowCents,
		&book.StockCents,
		&book.AvailableCopies,
		&book.SeededCopies,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	book.CreatedAt = createdAt.UTC()
	return book, nil
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}
