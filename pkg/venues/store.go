package venues

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store persists venues and the user-venue assignment graph
type Store struct {
	db *sql.DB
}

// NewStore creates a venue store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new venue
func (s *Store) Create(ctx context.Context, venue *Venue) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO venues (name, address, timezone, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at
	`, venue.Name, venue.Address, venue.Timezone, venue.Active).Scan(
		&venue.ID, &venue.CreatedAt, &venue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create venue: %w", err)
	}
	return nil
}

// Get returns a venue by ID regardless of active state
func (s *Store) Get(ctx context.Context, venueID int64) (*Venue, error) {
	var venue Venue
	var address, timezone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, timezone, active, created_at, updated_at
		FROM venues WHERE id = $1
	`, venueID).Scan(&venue.ID, &venue.Name, &address, &timezone,
		&venue.Active, &venue.CreatedAt, &venue.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrVenueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	venue.Address = address.String
	venue.Timezone = timezone.String
	return &venue, nil
}

// List returns venues, optionally restricted to active ones, ordered by name
func (s *Store) List(ctx context.Context, activeOnly bool) ([]*Venue, error) {
	query := `
		SELECT id, name, address, timezone, active, created_at, updated_at
		FROM venues
	`
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	var venues []*Venue
	for rows.Next() {
		var venue Venue
		var address, timezone sql.NullString
		if err := rows.Scan(&venue.ID, &venue.Name, &address, &timezone,
			&venue.Active, &venue.CreatedAt, &venue.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venue.Address = address.String
		venue.Timezone = timezone.String
		venues = append(venues, &venue)
	}
	return venues, rows.Err()
}

// SetActive flips a venue's active flag
func (s *Store) SetActive(ctx context.Context, venueID int64, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE venues SET active = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, active, venueID)
	if err != nil {
		return fmt.Errorf("failed to update venue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVenueNotFound
	}
	return nil
}

// AddMember assigns a user to a venue. Re-adding an existing assignment is a
// no-op.
func (s *Store) AddMember(ctx context.Context, userID, venueID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_venues (user_id, venue_id, added_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, venue_id) DO NOTHING
	`, userID, venueID)
	if err != nil {
		return fmt.Errorf("failed to add venue member: %w", err)
	}
	return nil
}

// RemoveMember removes a user's assignment to a venue
func (s *Store) RemoveMember(ctx context.Context, userID, venueID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM user_venues WHERE user_id = $1 AND venue_id = $2`,
		userID, venueID)
	if err != nil {
		return fmt.Errorf("failed to remove venue member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotMember
	}
	return nil
}

// Members lists the users assigned to a venue, active users only
func (s *Store) Members(ctx context.Context, venueID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uv.user_id, uv.venue_id, u.username, u.full_name, u.role, uv.added_at
		FROM user_venues uv
		JOIN users u ON u.id = uv.user_id
		WHERE uv.venue_id = $1 AND u.active
		ORDER BY u.username
	`, venueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list venue members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		var fullName sql.NullString
		if err := rows.Scan(&m.UserID, &m.VenueID, &m.Username, &fullName, &m.Role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan venue member: %w", err)
		}
		m.FullName = fullName.String
		members = append(members, &m)
	}
	return members, rows.Err()
}

// ActiveVenueIDs returns the IDs of active venues the user is assigned to.
// Assignments to deactivated venues are excluded, which makes deactivation
// take effect everywhere downstream.
func (s *Store) ActiveVenueIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id
		FROM user_venues uv
		JOIN venues v ON v.id = uv.venue_id
		WHERE uv.user_id = $1 AND v.active
		ORDER BY v.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user venues: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan venue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserIDsAtVenues returns the distinct IDs of active users assigned to any of
// the given active venues
func (s *Store) UserIDsAtVenues(ctx context.Context, venueIDs []int64) ([]int64, error) {
	if len(venueIDs) == 0 {
		return []int64{}, nil
	}

	placeholders := make([]string, 0, len(venueIDs))
	args := make([]interface{}, 0, len(venueIDs))
	for _, id := range venueIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT uv.user_id
		FROM user_venues uv
		JOIN venues v ON v.id = uv.venue_id
		JOIN users u ON u.id = uv.user_id
		WHERE uv.venue_id IN (%s) AND v.active AND u.active
		ORDER BY uv.user_id
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users at venues: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsMember reports whether the user is assigned to the venue and the venue is
// active
func (s *Store) IsMember(ctx context.Context, userID, venueID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_venues uv
			JOIN venues v ON v.id = uv.venue_id
			WHERE uv.user_id = $1 AND uv.venue_id = $2 AND v.active
		)
	`, userID, venueID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check venue membership: %w", err)
	}
	return exists, nil
}
