package venues

import (
	"errors"
	"time"
)

// Venue is a physical location staff are assigned to. Venues are never
// physically deleted; deactivation removes them from every visibility and
// permission computation.
type Venue struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a user's assignment to a venue
type Member struct {
	UserID   int64     `json:"user_id"`
	VenueID  int64     `json:"venue_id"`
	Username string    `json:"username"`
	FullName string    `json:"full_name,omitempty"`
	Role     string    `json:"role"`
	AddedAt  time.Time `json:"added_at"`
}

// Scope is the set of venues a request is allowed to touch. For admins the
// scope is unbounded; for everyone else it is the actor's active venue
// assignments. Services build one per request and filter every venue-scoped
// query through it, so the admin bypass lives in exactly one place.
type Scope struct {
	all      bool
	venueIDs map[int64]struct{}
}

// AdminScope returns the unbounded scope
func AdminScope() *Scope {
	return &Scope{all: true}
}

// ScopeOf builds a bounded scope over the given venue IDs
func ScopeOf(venueIDs []int64) *Scope {
	set := make(map[int64]struct{}, len(venueIDs))
	for _, id := range venueIDs {
		set[id] = struct{}{}
	}
	return &Scope{venueIDs: set}
}

// AllowsAll reports whether the scope is unbounded
func (s *Scope) AllowsAll() bool {
	return s.all
}

// Contains reports whether the venue is inside the scope
func (s *Scope) Contains(venueID int64) bool {
	if s.all {
		return true
	}
	_, ok := s.venueIDs[venueID]
	return ok
}

// ContainsAny reports whether at least one of the venues is inside the scope
func (s *Scope) ContainsAny(venueIDs []int64) bool {
	if s.all {
		return true
	}
	for _, id := range venueIDs {
		if _, ok := s.venueIDs[id]; ok {
			return true
		}
	}
	return false
}

// VenueIDs returns the bounded scope's venues. Callers must check AllowsAll
// first; an unbounded scope returns nil.
func (s *Scope) VenueIDs() []int64 {
	if s.all {
		return nil
	}
	ids := make([]int64, 0, len(s.venueIDs))
	for id := range s.venueIDs {
		ids = append(ids, id)
	}
	return ids
}

// IsEmpty reports whether the scope covers no venues at all
func (s *Scope) IsEmpty() bool {
	return !s.all && len(s.venueIDs) == 0
}

var (
	// ErrVenueNotFound covers both "no such venue" and "venue outside your
	// scope"; callers cannot tell the two apart.
	ErrVenueNotFound = errors.New("venue not found")

	// ErrNotMember is returned when removing an assignment that does not exist
	ErrNotMember = errors.New("user is not assigned to this venue")
)
