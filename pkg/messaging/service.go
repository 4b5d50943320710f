package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// Service implements direct messaging between users who share venues
type Service struct {
	store    *Store
	venues   *venues.Service
	auditLog audit.Logger
	now      func() time.Time
}

// NewService creates the messaging service
func NewService(store *Store, venueSvc *venues.Service, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{
		store:    store,
		venues:   venueSvc,
		auditLog: auditLogger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartConversation creates a conversation between the actor and the given
// participants. Every participant must share at least one active venue with
// the actor; any that does not, including IDs that do not exist at all, is
// rejected with the same error. Admins are exempt from the shared-venue
// requirement but not from messaging only real participants.
func (s *Service) StartConversation(ctx context.Context, actor *identity.Actor, participantIDs []int64) (*Conversation, error) {
	unique := make(map[int64]struct{}, len(participantIDs)+1)
	members := []int64{actor.ID}
	unique[actor.ID] = struct{}{}
	for _, id := range participantIDs {
		if _, dup := unique[id]; dup {
			continue
		}
		unique[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, ErrNoParticipants
	}

	if !actor.IsAdmin() {
		visible, err := s.venues.SharedVenueUsers(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		visibleSet := make(map[int64]struct{}, len(visible))
		for _, id := range visible {
			visibleSet[id] = struct{}{}
		}
		for _, id := range members[1:] {
			if _, ok := visibleSet[id]; !ok {
				return nil, ErrNotInYourVenues
			}
		}
	}

	conv, err := s.store.CreateConversation(ctx, actor.ID, members)
	if err != nil {
		return nil, err
	}

	audit.Mutation(ctx, s.auditLog, audit.EventTypeConversationCreate, actor.ID,
		audit.ResourceTypeConversation, fmt.Sprintf("%d", conv.ID), &audit.ChangeDetails{
			After: map[string]interface{}{"participants": members},
		})
	return conv, nil
}

// GetConversation returns a conversation the actor participates in.
// Everything else, existing or not, is reported as not found.
func (s *Service) GetConversation(ctx context.Context, actor *identity.Actor, conversationID int64) (*Conversation, error) {
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.store.GetConversation(ctx, conversationID)
}

// ListConversations returns the IDs of the actor's conversations
func (s *Service) ListConversations(ctx context.Context, actor *identity.Actor) ([]int64, error) {
	return s.store.ConversationIDsFor(ctx, actor.ID)
}

// SendMessage posts a message to a conversation the actor participates in
func (s *Service) SendMessage(ctx context.Context, actor *identity.Actor, conversationID int64, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("message body is required")
	}
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return nil, err
	}

	msg := &Message{ConversationID: conversationID, SenderID: actor.ID, Body: body}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces the body of the actor's own message while it is still
// inside the edit window. Messages by other senders are reported as not
// found.
func (s *Service) EditMessage(ctx context.Context, actor *identity.Actor, messageID int64, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("message body is required")
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actor.ID {
		return nil, ErrMessageNotFound
	}
	if !msg.Editable(s.now()) {
		return nil, ErrEditWindowExpired
	}

	if err := s.store.UpdateMessageBody(ctx, messageID, body); err != nil {
		return nil, err
	}
	return s.store.GetMessage(ctx, messageID)
}

// DeleteMessage permanently removes the actor's own message. There is no
// time limit and no moderator override; only the author may delete.
func (s *Service) DeleteMessage(ctx context.Context, actor *identity.Actor, messageID int64) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actor.ID {
		return ErrMessageNotFound
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeMessageDelete, actor.ID,
		audit.ResourceTypeMessage, fmt.Sprintf("%d", messageID), nil)
	return nil
}

// ListMessages returns messages in a conversation the actor participates in
func (s *Service) ListMessages(ctx context.Context, actor *identity.Actor, conversationID, afterID int64, limit int) ([]*Message, error) {
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID, afterID, limit)
}

// MarkRead records that the actor has read a message in one of their
// conversations and advances their read watermark. Reads are monotonic.
func (s *Service) MarkRead(ctx context.Context, actor *identity.Actor, messageID int64) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireParticipant(ctx, actor, msg.ConversationID); err != nil {
		return ErrMessageNotFound
	}

	if err := s.store.MarkRead(ctx, messageID, actor.ID); err != nil {
		return err
	}
	return s.store.TouchLastRead(ctx, msg.ConversationID, actor.ID)
}

// Mute silences a conversation for the actor until the given time; nil
// clears the mute
func (s *Service) Mute(ctx context.Context, actor *identity.Actor, conversationID int64, until *time.Time) error {
	if err := s.requireParticipant(ctx, actor, conversationID); err != nil {
		return err
	}
	return s.store.SetMutedUntil(ctx, conversationID, actor.ID, until)
}

// Search finds messages matching the text across the actor's conversations.
// Candidate senders are restricted to the actor's shared-venue users, so
// messages from senders who no longer share an active venue stay out of the
// results even when the conversation itself remains readable. Admins search
// without the sender restriction.
func (s *Service) Search(ctx context.Context, actor *identity.Actor, query string, limit int) ([]*Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*Message{}, nil
	}

	var senderIDs []int64
	if !actor.IsAdmin() {
		visible, err := s.venues.SharedVenueUsers(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		senderIDs = visible
		if senderIDs == nil {
			senderIDs = []int64{}
		}
	}
	return s.store.SearchMessages(ctx, actor.ID, query, limit, senderIDs)
}

func (s *Service) requireParticipant(ctx context.Context, actor *identity.Actor, conversationID int64) error {
	ok, err := s.store.IsParticipant(ctx, conversationID, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConversationNotFound
	}
	return nil
}
