package channels

import (
	"errors"
	"time"
)

// Channel is a venue-linked discussion space. A channel is visible to a user
// when at least one of its venues is in the user's scope. Channels are
// archived, never deleted.
type Channel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	VenueIDs    []int64   `json:"venue_ids"`
}

// MemberRole is a user's role within one channel, unrelated to their global
// role
type MemberRole string

const (
	MemberRoleCreator   MemberRole = "CREATOR"
	MemberRoleModerator MemberRole = "MODERATOR"
	MemberRoleMember    MemberRole = "MEMBER"
)

// Valid reports whether the member role is one of the known roles
func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleCreator, MemberRoleModerator, MemberRoleMember:
		return true
	}
	return false
}

// Member is a user's membership in a channel
type Member struct {
	ChannelID int64      `json:"channel_id"`
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	Role      MemberRole `json:"role"`
	AddedAt   time.Time  `json:"added_at"`
}

var (
	// ErrChannelNotFound covers both "no such channel" and "channel outside
	// your venues"
	ErrChannelNotFound = errors.New("channel not found")

	// ErrNoVenues is returned when a channel would end up with no venue links
	ErrNoVenues = errors.New("channel must be linked to at least one venue")

	// ErrLastCreator guards the invariant that every channel keeps at least
	// one CREATOR
	ErrLastCreator = errors.New("channel must retain at least one creator")

	// ErrNotChannelMember is returned when acting on a membership that does
	// not exist
	ErrNotChannelMember = errors.New("user is not a member of this channel")

	// ErrMemberNotEligible is returned when adding a user who shares no
	// active venue with the channel
	ErrMemberNotEligible = errors.New("user must share a venue with the channel")

	// ErrAlreadyMember is returned when adding a user who is already in the
	// channel
	ErrAlreadyMember = errors.New("user is already a member of this channel")
)
