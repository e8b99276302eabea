package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertUserByEmail returns the user for an email, creating the row on
// first contact. The ON CONFLICT no-op plus re-read keeps the original id
// stable when two requests race on the same new email.
func (p pgQueries) UpsertUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	_, err := p.q.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`, uuid.NewString(), email, time.Now().UTC())
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}

	return p.GetUserByEmail(ctx, email)
}

// GetUserByEmail loads a user by email.
func (p pgQueries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var user User
	var createdAt time.Time
	err := p.q.QueryRowContext(ctx, `
		SELECT id, email, created_at FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}
