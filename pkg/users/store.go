package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shiftdeck/shiftdeck/pkg/identity"
)

// ErrUserNotFound covers both missing users and users outside the caller's
// visibility
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameTaken is returned when creating a user with an existing username
var ErrUsernameTaken = errors.New("username already exists")

// Store persists user accounts
type Store struct {
	db *sql.DB
}

// NewStore creates a user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new user account
func (s *Store) Create(ctx context.Context, user *identity.User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, full_name, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at
	`, user.Username, user.Email, user.FullName, string(user.Role)).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.Active = true
	return nil
}

// Get returns a user by ID, active or not
func (s *Store) Get(ctx context.Context, userID int64) (*identity.User, error) {
	var user identity.User
	var email, fullName sql.NullString
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, active, role, created_at, updated_at, last_login_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Username, &email, &fullName, &user.Active,
		&user.Role, &user.CreatedAt, &user.UpdatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Email = email.String
	user.FullName = fullName.String
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

// UpdateProfile updates a user's email and full name
func (s *Store) UpdateProfile(ctx context.Context, userID int64, email, fullName string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $1, full_name = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, email, fullName, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result)
}

// SetActive flips a user's active flag
func (s *Store) SetActive(ctx context.Context, userID int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET active = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, active, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result)
}

// SetRole reassigns a user's global role
func (s *Store) SetRole(ctx context.Context, userID int64, role identity.Role) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, string(role), userID)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return requireRow(result)
}

// ListActive returns all active users, for the admin directory
func (s *Store) ListActive(ctx context.Context) ([]*identity.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, full_name, active, role, created_at, updated_at, last_login_at
		FROM users WHERE active ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListByIDs returns active users among the given IDs, ordered by username
func (s *Store) ListByIDs(ctx context.Context, userIDs []int64) ([]*identity.User, error) {
	if len(userIDs) == 0 {
		return []*identity.User{}, nil
	}

	placeholders := make([]string, 0, len(userIDs))
	args := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT id, username, email, full_name, active, role, created_at, updated_at, last_login_at
		FROM users WHERE id IN (%s) AND active ORDER BY username
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*identity.User, error) {
	users := []*identity.User{}
	for rows.Next() {
		var user identity.User
		var email, fullName sql.NullString
		var lastLogin sql.NullTime
		if err := rows.Scan(&user.ID, &user.Username, &email, &fullName, &user.Active,
			&user.Role, &user.CreatedAt, &user.UpdatedAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Email = email.String
		user.FullName = fullName.String
		if lastLogin.Valid {
			t := lastLogin.Time
			user.LastLoginAt = &t
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
