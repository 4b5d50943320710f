package timeoff

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a time-off request. Decisions are final;
// a decided request is never reopened.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

// Request is a time-off request tied to the venue the user would be absent
// from
type Request struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	VenueID   int64      `json:"venue_id"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	Reason    string     `json:"reason,omitempty"`
	Status    Status     `json:"status"`
	DecidedBy *int64     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

var (
	// ErrRequestNotFound covers missing requests and requests outside the
	// caller's visibility
	ErrRequestNotFound = errors.New("time-off request not found")

	// ErrAlreadyDecided is returned when deciding a request twice
	ErrAlreadyDecided = errors.New("request has already been decided")

	// ErrInvalidDates is returned when the requested range is empty or
	// reversed
	ErrInvalidDates = errors.New("end date must not be before start date")

	// ErrOwnRequest is returned when a user tries to decide their own request
	ErrOwnRequest = errors.New("you cannot decide your own request")
)
