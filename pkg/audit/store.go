package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Store reads persisted audit records for listing, export and retention
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Search returns audit events matching the filter, newest first
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, status,
		       actor_id, username, venue_id,
		       resource_type, resource_id,
		       request_id, message, error_message, changes
		FROM audit_log
	`

	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conds = append(conds, "timestamp >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conds = append(conds, "timestamp <= "+arg(*filter.EndTime))
	}
	if filter.ActorID != nil {
		conds = append(conds, "actor_id = "+arg(*filter.ActorID))
	}
	if filter.VenueID != nil {
		conds = append(conds, "venue_id = "+arg(*filter.VenueID))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, 0, len(filter.EventTypes))
		for _, et := range filter.EventTypes {
			placeholders = append(placeholders, arg(string(et)))
		}
		conds = append(conds, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}
	if filter.ResourceType != "" {
		conds = append(conds, "resource_type = "+arg(string(filter.ResourceType)))
	}
	if filter.ResourceID != "" {
		conds = append(conds, "resource_id = "+arg(filter.ResourceID))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit log: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// DeleteOlderThan removes audit records older than the cutoff, returning the
// number deleted. Used by the retention job.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return result.RowsAffected()
}

func scanEvent(scanner interface {
	Scan(dest ...interface{}) error
}) (*Event, error) {
	var event Event
	var actorID, venueID sql.NullInt64
	var username, resourceType, resourceID, requestID, message, errorMessage, changesJSON sql.NullString

	err := scanner.Scan(
		&event.ID,
		&event.Timestamp,
		&event.EventType,
		&event.Status,
		&actorID,
		&username,
		&venueID,
		&resourceType,
		&resourceID,
		&requestID,
		&message,
		&errorMessage,
		&changesJSON,
	)
	if err != nil {
		return nil, err
	}

	if actorID.Valid {
		id := actorID.Int64
		event.ActorID = &id
	}
	if venueID.Valid {
		id := venueID.Int64
		event.VenueID = &id
	}
	event.Username = username.String
	event.ResourceType = ResourceType(resourceType.String)
	event.ResourceID = resourceID.String
	event.RequestID = requestID.String
	event.Message = message.String
	event.ErrorMessage = errorMessage.String

	if changesJSON.Valid && changesJSON.String != "" {
		var changes ChangeDetails
		if err := json.Unmarshal([]byte(changesJSON.String), &changes); err == nil {
			event.Changes = &changes
		}
	}

	return &event, nil
}
