package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shiftdeck/shiftdeck/pkg/identity"
)

// Store persists per-user, per-venue permission overrides
type Store struct {
	db *sql.DB
}

// NewStore creates a permission store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UserRole returns the global role of a user, active or not
func (s *Store) UserRole(ctx context.Context, userID int64) (identity.Role, error) {
	var role identity.Role
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user role: %w", err)
	}
	return role, nil
}

// VenuePermissionKeys returns the override keys a user holds at one venue,
// sorted for deterministic output
func (s *Store) VenuePermissionKeys(ctx context.Context, userID, venueID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission FROM venue_permissions
		WHERE user_id = $1 AND venue_id = $2
		ORDER BY permission
	`, userID, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list venue permissions: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan venue permission: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// HasVenuePermission reports whether the user holds the override at the
// venue. Overrides at deactivated venues do not count; they stay stored and
// resume if the venue is reactivated.
func (s *Store) HasVenuePermission(ctx context.Context, userID, venueID int64, perm Permission) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM venue_permissions vp
			JOIN venues v ON v.id = vp.venue_id
			WHERE vp.user_id = $1 AND vp.venue_id = $2 AND vp.permission = $3 AND v.active
		)
	`, userID, venueID, perm.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check venue permission: %w", err)
	}
	return exists, nil
}

// HasAnyVenuePermission reports whether the user holds the override at any
// active venue. Overrides at deactivated venues do not count.
func (s *Store) HasAnyVenuePermission(ctx context.Context, userID int64, perm Permission) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM venue_permissions vp
			JOIN venues v ON v.id = vp.venue_id
			WHERE vp.user_id = $1 AND vp.permission = $2 AND v.active
		)
	`, userID, perm.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check venue permission: %w", err)
	}
	return exists, nil
}

// ReplaceVenuePermissions atomically replaces the user's override set at one
// venue with exactly the given keys. An empty list clears the set. The delete
// and inserts share one transaction, so readers never observe a partial set.
func (s *Store) ReplaceVenuePermissions(ctx context.Context, userID, venueID int64, keys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM venue_permissions WHERE user_id = $1 AND venue_id = $2`,
		userID, venueID)
	if err != nil {
		return fmt.Errorf("failed to clear venue permissions: %w", err)
	}

	for _, key := range keys {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO venue_permissions (user_id, venue_id, permission)
			VALUES ($1, $2, $3)
		`, userID, venueID, key)
		if err != nil {
			return fmt.Errorf("failed to insert venue permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit venue permissions: %w", err)
	}
	return nil
}
