// Package users is the billing engine's narrow view of the user collaborator:
// lookups and the idempotent premium-flag flip applied when a payment
// completes.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates no user matches the given id.
var ErrNotFound = errors.New("user not found")

// User holds the fields the billing engine needs.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service defines user operations the billing engine depends on.
type Service interface {
	GetUser(ctx context.Context, id int64) (*User, error)

	// SetPremium flips the premium flag. Setting true when already true is a
	// no-op, not an error; the flip must be safe to repeat.
	SetPremium(ctx context.Context, id int64, premium bool) error
}

// PostgresService implements Service using PostgreSQL.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// GetUser retrieves a user by id.
func (s *PostgresService) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, name, email, is_premium, created_at, updated_at FROM users WHERE id = $1`
	user := &User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.IsPremium, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SetPremium flips the premium flag idempotently.
func (s *PostgresService) SetPremium(ctx context.Context, id int64, premium bool) error {
	query := `UPDATE users SET is_premium = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, premium, id)
	if err != nil {
		return fmt.Errorf("failed to set premium flag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}
