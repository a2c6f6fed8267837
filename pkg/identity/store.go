// Package identity persists user records produced by the external identity
// provider. The provider verifies who the principal is; this package only
// maps the verified principal to a stable user row.
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/workbench/pkg/errs"
	"github.com/platinummonkey/workbench/pkg/storage/postgres"
)

// User represents a persisted user record
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store provides user persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = "id, external_id, email, name, image_url, created_at, updated_at"

func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var name, imageURL sql.NullString
	err := row.Scan(&user.ID, &user.ExternalID, &user.Email, &name, &imageURL,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if name.Valid {
		user.Name = name.String
	}
	if imageURL.Valid {
		user.ImageURL = imageURL.String
	}
	return user, nil
}

// Upsert inserts or refreshes a user by external identity key. Called on
// every successful identity resolution so display fields track the provider.
func (s *Store) Upsert(ctx context.Context, externalID, email, name, imageURL string) (*User, error) {
	query := `
		INSERT INTO users (external_id, email, name, image_url)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT (external_id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, image_url = EXCLUDED.image_url, updated_at = NOW()
		RETURNING ` + userColumns + `
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, externalID, email, name, imageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// FindByExternalID retrieves a user by the identity provider's key.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE external_id = $1"
	user, err := scanUser(s.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by email, case-insensitively. Composable
// inside a caller-supplied transaction.
func (s *Store) FindByEmail(ctx context.Context, q postgres.Querier, email string) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE LOWER(email) = LOWER($1)"
	user, err := scanUser(q.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err == sql.ErrNoRows {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// FindByID retrieves a user by internal ID.
func (s *Store) FindByID(ctx context.Context, id int64) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
