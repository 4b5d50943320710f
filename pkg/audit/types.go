package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthTokenRevoke EventType = "auth.token_revoke"

	// Authorization events
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"
	EventTypeAuthzPermissionUpdate EventType = "authz.venue_permission_update"

	// Admin user management events
	EventTypeUserCreate     EventType = "user.create"
	EventTypeUserUpdate     EventType = "user.update"
	EventTypeUserDeactivate EventType = "user.deactivate"
	EventTypeUserRoleChange EventType = "user.role_change"

	// Venue events
	EventTypeVenueCreate       EventType = "venue.create"
	EventTypeVenueDeactivate   EventType = "venue.deactivate"
	EventTypeVenueMemberAdd    EventType = "venue.member_add"
	EventTypeVenueMemberRemove EventType = "venue.member_remove"

	// Channel events
	EventTypeChannelCreate           EventType = "channel.create"
	EventTypeChannelArchive          EventType = "channel.archive"
	EventTypeChannelVenueUpdate      EventType = "channel.venue_update"
	EventTypeChannelMemberAdd        EventType = "channel.member_add"
	EventTypeChannelMemberRemove     EventType = "channel.member_remove"
	EventTypeChannelMemberRoleChange EventType = "channel.member_role_change"

	// Messaging events
	EventTypeConversationCreate EventType = "conversation.create"
	EventTypeMessageDelete      EventType = "message.delete"

	// Time-off events
	EventTypeTimeOffDecision EventType = "timeoff.decision"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeUser         ResourceType = "user"
	ResourceTypeVenue        ResourceType = "venue"
	ResourceTypeChannel      ResourceType = "channel"
	ResourceTypeConversation ResourceType = "conversation"
	ResourceTypeMessage      ResourceType = "message"
	ResourceTypePermission   ResourceType = "permission"
	ResourceTypeTimeOff      ResourceType = "timeoff"
	ResourceTypeToken        ResourceType = "token"
)

// Event is a single audit record. ActorID is the user who performed the
// action; VenueID is set when the action is scoped to one venue.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID  *int64 `json:"actor_id,omitempty"`
	Username string `json:"username,omitempty"`
	VenueID  *int64 `json:"venue_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID    string         `json:"request_id,omitempty"`
	Message      string         `json:"message,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Changes      *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for mutations
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter selects audit records for listing and export
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID *int64
	VenueID *int64

	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
