package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when no active user matches the credentials.
// A deactivated user resolves to this error, not to a distinct one: an
// inactive account is indistinguishable from no session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Resolver resolves the acting user for a request
type Resolver struct {
	db *sql.DB
}

// NewResolver creates a resolver backed by the given database
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// ResolveActor loads the user with the given ID and returns it as an Actor.
// Missing and inactive users both yield ErrNotAuthenticated.
func (r *Resolver) ResolveActor(ctx context.Context, userID int64) (*Actor, error) {
	query := `
		SELECT id, username, role, active
		FROM users
		WHERE id = $1
	`

	var actor Actor
	var active bool
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&actor.ID,
		&actor.Username,
		&actor.Role,
		&active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actor: %w", err)
	}

	if !active {
		return nil, ErrNotAuthenticated
	}

	return &actor, nil
}

// ResolveToken validates a bearer token and resolves the actor behind it.
// Expired, revoked and unknown tokens all yield ErrNotAuthenticated.
func (r *Resolver) ResolveToken(ctx context.Context, token string) (*Actor, error) {
	if err := ValidateTokenFormat(token); err != nil {
		return nil, ErrNotAuthenticated
	}

	query := `
		SELECT u.id, u.username, u.role, u.active
		FROM session_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
		  AND t.revoked_at IS NULL
		  AND (t.expires_at IS NULL OR t.expires_at > CURRENT_TIMESTAMP)
	`

	var actor Actor
	var active bool
	err := r.db.QueryRowContext(ctx, query, HashToken(token)).Scan(
		&actor.ID,
		&actor.Username,
		&actor.Role,
		&active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	if !active {
		return nil, ErrNotAuthenticated
	}

	// Best effort; a failed timestamp update must not fail authentication.
	_, _ = r.db.ExecContext(ctx,
		`UPDATE session_tokens SET last_used_at = CURRENT_TIMESTAMP WHERE token_hash = $1`,
		HashToken(token),
	)

	return &actor, nil
}

// GetUser loads a full user record by ID
func (r *Resolver) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, username, email, full_name, active, role, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`

	var user User
	var email, fullName sql.NullString
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&email,
		&fullName,
		&user.Active,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}
	if fullName.Valid {
		user.FullName = fullName.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}

	return &user, nil
}
