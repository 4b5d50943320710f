package messaging

import (
	"errors"
	"time"
)

// EditWindow is how long a message stays editable by its author
const EditWindow = 15 * time.Minute

// Conversation is a direct conversation between two or more users. There are
// no venue links; access comes purely from being a participant, and new
// conversations can only be started with users who share an active venue
// with the initiator.
type Conversation struct {
	ID           int64     `json:"id"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	Participants []int64   `json:"participants,omitempty"`
}

// Participant is a user's membership in a conversation
type Participant struct {
	ConversationID int64      `json:"conversation_id"`
	UserID         int64      `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	MutedUntil     *time.Time `json:"muted_until,omitempty"`
}

// Message is a single message in a conversation. Deletion is physical and
// author-only; there is no tombstone.
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// Editable reports whether the message is still inside its edit window
func (m *Message) Editable(now time.Time) bool {
	return now.Sub(m.CreatedAt) <= EditWindow
}

var (
	// ErrConversationNotFound covers both "no such conversation" and
	// "conversation you are not part of"
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound covers missing messages and messages the caller may
	// not act on
	ErrMessageNotFound = errors.New("message not found")

	// ErrEditWindowExpired is returned when editing a message older than the
	// edit window
	ErrEditWindowExpired = errors.New("message can no longer be edited")

	// ErrNotInYourVenues is the uniform rejection for starting a conversation
	// with anyone outside the initiator's venues. It does not reveal whether
	// the target exists.
	ErrNotInYourVenues = errors.New("you can only message users in your venues")

	// ErrNoParticipants is returned when starting a conversation with nobody
	ErrNoParticipants = errors.New("conversation needs at least one other participant")
)
