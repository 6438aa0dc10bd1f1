package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// Directory resolves user identities against the user table owned by the
// identity system. The collaboration core only reads from it.
type Directory interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
}

// SQLDirectory implements Directory on a shared relational store
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a directory backed by the shared database
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// GetUser retrieves a user by ID
func (d *SQLDirectory) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, username, email, display_name, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	user := &User{}
	var email, displayName sql.NullString
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Username, &email, &displayName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %d", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if email.Valid {
		user.Email = email.String
	}
	if displayName.Valid {
		user.DisplayName = displayName.String
	}
	return user, nil
}
