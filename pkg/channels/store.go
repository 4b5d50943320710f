package channels

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store persists channels, their venue links and their memberships
type Store struct {
	db *sql.DB
}

// NewStore creates a channel store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a channel with its venue links and the creator's membership
// in one transaction
func (s *Store) Create(ctx context.Context, channel *Channel, venueIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO channels (name, description, archived, created_by, created_at, updated_at)
		VALUES ($1, $2, 0, $3, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at
	`, channel.Name, channel.Description, channel.CreatedBy).Scan(
		&channel.ID, &channel.CreatedAt, &channel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	for _, venueID := range venueIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channel_venues (channel_id, venue_id) VALUES ($1, $2)`,
			channel.ID, venueID)
		if err != nil {
			return fmt.Errorf("failed to link channel venue: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, added_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
	`, channel.ID, channel.CreatedBy, string(MemberRoleCreator))
	if err != nil {
		return fmt.Errorf("failed to add channel creator: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit channel: %w", err)
	}
	channel.VenueIDs = venueIDs
	return nil
}

// Get returns a channel with its venue links, regardless of archive state
func (s *Store) Get(ctx context.Context, channelID int64) (*Channel, error) {
	var channel Channel
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, archived, created_by, created_at, updated_at
		FROM channels WHERE id = $1
	`, channelID).Scan(&channel.ID, &channel.Name, &description, &channel.Archived,
		&channel.CreatedBy, &channel.CreatedAt, &channel.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	channel.Description = description.String

	channel.VenueIDs, err = s.VenueIDs(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// VenueIDs returns the IDs of active venues the channel is linked to. Links
// to deactivated venues stay stored but are excluded here, so they stop
// granting access.
func (s *Store) VenueIDs(ctx context.Context, channelID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cv.venue_id
		FROM channel_venues cv
		JOIN venues v ON v.id = cv.venue_id
		WHERE cv.channel_id = $1 AND v.active
		ORDER BY cv.venue_id
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel venues: %w", err)
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

// ReplaceVenues atomically replaces the channel's venue links
func (s *Store) ReplaceVenues(ctx context.Context, channelID int64, venueIDs []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM channel_venues WHERE channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("failed to clear channel venues: %w", err)
	}
	for _, venueID := range venueIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channel_venues (channel_id, venue_id) VALUES ($1, $2)`,
			channelID, venueID)
		if err != nil {
			return fmt.Errorf("failed to link channel venue: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE channels SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("failed to touch channel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit channel venues: %w", err)
	}
	return nil
}

// SetArchived flips a channel's archived flag
func (s *Store) SetArchived(ctx context.Context, channelID int64, archived bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE channels SET archived = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, archived, channelID)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrChannelNotFound
	}
	return nil
}

// AccessibleIDs returns the IDs of channels linked to at least one of the
// given active venues. Archived channels are excluded unless requested.
func (s *Store) AccessibleIDs(ctx context.Context, venueIDs []int64, includeArchived bool) ([]int64, error) {
	if len(venueIDs) == 0 {
		return []int64{}, nil
	}

	placeholders := make([]string, 0, len(venueIDs))
	args := make([]interface{}, 0, len(venueIDs)+1)
	for _, id := range venueIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT c.id
		FROM channels c
		JOIN channel_venues cv ON cv.channel_id = c.id
		JOIN venues v ON v.id = cv.venue_id
		WHERE cv.venue_id IN (%s) AND v.active
	`, strings.Join(placeholders, ", "))
	if !includeArchived {
		query += " AND NOT c.archived"
	}
	query += " ORDER BY c.id"

	return s.queryIDs(ctx, query, args...)
}

// AllIDs returns every channel ID, for the unbounded scope
func (s *Store) AllIDs(ctx context.Context, includeArchived bool) ([]int64, error) {
	query := `SELECT id FROM channels`
	if !includeArchived {
		query += ` WHERE NOT archived`
	}
	query += ` ORDER BY id`
	return s.queryIDs(ctx, query)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan channel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddMember inserts a channel membership
func (s *Store) AddMember(ctx context.Context, channelID, userID int64, role MemberRole) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, added_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
	`, channelID, userID, string(role))
	if err != nil {
		return fmt.Errorf("failed to add channel member: %w", err)
	}
	return nil
}

// RemoveMember deletes a channel membership
func (s *Store) RemoveMember(ctx context.Context, channelID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove channel member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotChannelMember
	}
	return nil
}

// UpdateMemberRole changes a member's channel role
func (s *Store) UpdateMemberRole(ctx context.Context, channelID, userID int64, role MemberRole) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE channel_members SET role = $1 WHERE channel_id = $2 AND user_id = $3
	`, string(role), channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to update channel member role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotChannelMember
	}
	return nil
}

// MemberRole returns the user's role in the channel, reporting membership
func (s *Store) MemberRole(ctx context.Context, channelID, userID int64) (MemberRole, bool, error) {
	var role MemberRole
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get channel member role: %w", err)
	}
	return role, true, nil
}

// Members lists the channel's members, creators first
func (s *Store) Members(ctx context.Context, channelID int64) ([]*Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.channel_id, cm.user_id, u.username, cm.role, cm.added_at
		FROM channel_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.channel_id = $1
		ORDER BY CASE cm.role WHEN 'CREATOR' THEN 0 WHEN 'MODERATOR' THEN 1 ELSE 2 END, u.username
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Username, &m.Role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel member: %w", err)
		}
		members = append(members, &m)
	}
	return members, rows.Err()
}

// CreatorCount returns how many CREATOR members the channel has
func (s *Store) CreatorCount(ctx context.Context, channelID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_members WHERE channel_id = $1 AND role = 'CREATOR'`,
		channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count channel creators: %w", err)
	}
	return count, nil
}
