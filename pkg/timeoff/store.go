package timeoff

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Store persists time-off requests
type Store struct {
	db *sql.DB
}

// NewStore creates a time-off store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending request
func (s *Store) Create(ctx context.Context, req *Request) error {
	req.Status = StatusPending
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO timeoff_requests (user_id, venue_id, start_date, end_date, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`, req.UserID, req.VenueID, req.StartDate, req.EndDate, req.Reason, string(req.Status)).Scan(
		&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create time-off request: %w", err)
	}
	return nil
}

// Get returns a request by ID
func (s *Store) Get(ctx context.Context, requestID int64) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, venue_id, start_date, end_date, reason, status,
		       decided_by, decided_at, created_at
		FROM timeoff_requests WHERE id = $1
	`, requestID)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time-off request: %w", err)
	}
	return req, nil
}

// Decide atomically moves a pending request to its final status. The status
// guard in the WHERE clause makes concurrent decisions race-safe: exactly
// one wins.
func (s *Store) Decide(ctx context.Context, requestID, deciderID int64, status Status) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE timeoff_requests
		SET status = $1, decided_by = $2, decided_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND status = $4
	`, string(status), deciderID, requestID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("failed to decide time-off request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// ListForUser returns the user's own requests, newest first
func (s *Store) ListForUser(ctx context.Context, userID int64) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, venue_id, start_date, end_date, reason, status,
		       decided_by, decided_at, created_at
		FROM timeoff_requests WHERE user_id = $1 ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time-off requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// ListForVenues returns requests at the given venues, pending first then
// newest
func (s *Store) ListForVenues(ctx context.Context, venueIDs []int64, pendingOnly bool) ([]*Request, error) {
	if len(venueIDs) == 0 {
		return []*Request{}, nil
	}

	placeholders := make([]string, 0, len(venueIDs))
	args := make([]interface{}, 0, len(venueIDs)+1)
	for _, id := range venueIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, venue_id, start_date, end_date, reason, status,
		       decided_by, decided_at, created_at
		FROM timeoff_requests WHERE venue_id IN (%s)
	`, strings.Join(placeholders, ", "))
	if pendingOnly {
		args = append(args, string(StatusPending))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += ` ORDER BY CASE status WHEN 'PENDING' THEN 0 ELSE 1 END, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list time-off requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scanner) (*Request, error) {
	var req Request
	var reason sql.NullString
	var decidedBy sql.NullInt64
	var decidedAt sql.NullTime
	err := row.Scan(&req.ID, &req.UserID, &req.VenueID, &req.StartDate, &req.EndDate,
		&reason, &req.Status, &decidedBy, &decidedAt, &req.CreatedAt)
	if err != nil {
		return nil, err
	}
	req.Reason = reason.String
	if decidedBy.Valid {
		id := decidedBy.Int64
		req.DecidedBy = &id
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		req.DecidedAt = &t
	}
	return &req, nil
}

func scanRequests(rows *sql.Rows) ([]*Request, error) {
	requests := []*Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time-off request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}
