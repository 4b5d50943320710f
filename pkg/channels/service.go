package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// Service implements channel operations with venue-scoped access control
type Service struct {
	store    *Store
	venues   *venues.Service
	authz    *authz.Service
	auditLog audit.Logger
}

// NewService creates the channel service
func NewService(store *Store, venueSvc *venues.Service, authzSvc *authz.Service, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{store: store, venues: venueSvc, authz: authzSvc, auditLog: auditLogger}
}

// AccessibleChannelIDs returns the IDs of channels the actor can see: every
// channel for admins, otherwise channels linked to at least one venue in the
// actor's scope. An actor with no active venues sees no channels.
func (s *Service) AccessibleChannelIDs(ctx context.Context, actor *identity.Actor, includeArchived bool) ([]int64, error) {
	scope, err := s.venues.ScopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if scope.AllowsAll() {
		return s.store.AllIDs(ctx, includeArchived)
	}
	return s.store.AccessibleIDs(ctx, scope.VenueIDs(), includeArchived)
}

// Get returns a channel the actor can see. Channels outside the actor's
// venues are reported as not found, same as channels that do not exist.
func (s *Service) Get(ctx context.Context, actor *identity.Actor, channelID int64) (*Channel, error) {
	channel, err := s.store.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ctx, actor, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

func (s *Service) checkVisible(ctx context.Context, actor *identity.Actor, channel *Channel) error {
	if actor.IsAdmin() {
		return nil
	}
	scope, err := s.venues.ScopeFor(ctx, actor)
	if err != nil {
		return err
	}
	if !scope.ContainsAny(channel.VenueIDs) {
		return ErrChannelNotFound
	}
	return nil
}

// Create creates a channel linked to the given venues. The actor needs
// channels:create and, unless they are an admin, every target venue must be
// in their scope. The creator becomes the channel's first CREATOR member.
func (s *Service) Create(ctx context.Context, actor *identity.Actor, name, description string, venueIDs []int64) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("channel name is required")
	}
	if len(venueIDs) == 0 {
		return nil, ErrNoVenues
	}

	if !actor.IsAdmin() {
		canCreate, err := s.authz.HasPermissionAnyVenue(ctx, actor,
			authz.Permission{Resource: authz.ResourceChannels, Action: authz.ActionCreate})
		if err != nil {
			return nil, err
		}
		if !canCreate {
			return nil, authz.ErrPermissionDenied
		}

		scope, err := s.venues.ScopeFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		for _, venueID := range venueIDs {
			if !scope.Contains(venueID) {
				return nil, venues.ErrVenueNotFound
			}
		}
	}

	for _, venueID := range venueIDs {
		venue, err := s.venues.Store().Get(ctx, venueID)
		if err != nil {
			return nil, err
		}
		if !venue.Active {
			return nil, venues.ErrVenueNotFound
		}
	}

	channel := &Channel{Name: name, Description: description, CreatedBy: actor.ID}
	if err := s.store.Create(ctx, channel, venueIDs); err != nil {
		return nil, err
	}

	audit.Mutation(ctx, s.auditLog, audit.EventTypeChannelCreate, actor.ID,
		audit.ResourceTypeChannel, fmt.Sprintf("%d", channel.ID), &audit.ChangeDetails{
			After: map[string]interface{}{"name": name, "venue_ids": venueIDs},
		})
	return channel, nil
}

// CanManage decides whether the actor may manage the channel (archive it,
// change its venues, manage its members). The rules are checked in order,
// first match wins:
//
//  1. The actor holds posts:manage, by role grant or by an override at any
//     active venue. Global management; admins pass here.
//  2. CREATOR and MODERATOR members manage their channel.
//  3. A MANAGER whose active venues cover EVERY current member manages the
//     channel, venue-scoped. A single member outside the manager's venues
//     refuses the whole check.
//
// Everyone else is refused.
func (s *Service) CanManage(ctx context.Context, actor *identity.Actor, channel *Channel) (bool, error) {
	granted, err := s.authz.HasPermissionAnyVenue(ctx, actor,
		authz.Permission{Resource: authz.ResourcePosts, Action: authz.ActionManage})
	if err != nil {
		return false, err
	}
	if granted {
		return true, nil
	}

	role, isMember, err := s.store.MemberRole(ctx, channel.ID, actor.ID)
	if err != nil {
		return false, err
	}
	if isMember && (role == MemberRoleCreator || role == MemberRoleModerator) {
		return true, nil
	}

	if actor.Role != identity.RoleManager {
		return false, nil
	}
	members, err := s.store.Members(ctx, channel.ID)
	if err != nil {
		return false, err
	}
	visible, err := s.venues.SharedVenueUsers(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	covered := make(map[int64]struct{}, len(visible))
	for _, id := range visible {
		covered[id] = struct{}{}
	}
	for _, member := range members {
		if _, ok := covered[member.UserID]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// UpdateVenues replaces the channel's venue links. Requires manage rights;
// the new set must be non-empty, and non-admins can only link venues inside
// their own scope.
func (s *Service) UpdateVenues(ctx context.Context, actor *identity.Actor, channelID int64, venueIDs []int64) error {
	channel, err := s.Get(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, actor, channel); err != nil {
		return err
	}
	if len(venueIDs) == 0 {
		return ErrNoVenues
	}

	if !actor.IsAdmin() {
		scope, err := s.venues.ScopeFor(ctx, actor)
		if err != nil {
			return err
		}
		for _, venueID := range venueIDs {
			if !scope.Contains(venueID) {
				return venues.ErrVenueNotFound
			}
		}
	}

	if err := s.store.ReplaceVenues(ctx, channelID, venueIDs); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeChannelVenueUpdate, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.ResourceType = audit.ResourceTypeChannel
	event.ResourceID = fmt.Sprintf("%d", channelID)
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"venue_ids": channel.VenueIDs},
		After:  map[string]interface{}{"venue_ids": venueIDs},
	}
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// Archive archives the channel. Requires manage rights.
func (s *Service) Archive(ctx context.Context, actor *identity.Actor, channelID int64) error {
	channel, err := s.Get(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, actor, channel); err != nil {
		return err
	}
	if err := s.store.SetArchived(ctx, channelID, true); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeChannelArchive, actor.ID,
		audit.ResourceTypeChannel, fmt.Sprintf("%d", channelID), nil)
	return nil
}

// AddMember adds a user to the channel. Requires manage rights, and the new
// member must share at least one active venue with the channel; CREATOR
// cannot be granted this way.
func (s *Service) AddMember(ctx context.Context, actor *identity.Actor, channelID, userID int64, role MemberRole) error {
	channel, err := s.Get(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, actor, channel); err != nil {
		return err
	}
	if role == "" {
		role = MemberRoleMember
	}
	if !role.Valid() || role == MemberRoleCreator {
		return fmt.Errorf("invalid member role %q", role)
	}

	eligible := false
	for _, venueID := range channel.VenueIDs {
		member, err := s.venues.Store().IsMember(ctx, userID, venueID)
		if err != nil {
			return err
		}
		if member {
			eligible = true
			break
		}
	}
	if !eligible {
		return ErrMemberNotEligible
	}

	if _, exists, err := s.store.MemberRole(ctx, channelID, userID); err != nil {
		return err
	} else if exists {
		return ErrAlreadyMember
	}

	if err := s.store.AddMember(ctx, channelID, userID, role); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeChannelMemberAdd, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.ResourceType = audit.ResourceTypeChannel
	event.ResourceID = fmt.Sprintf("%d", channelID)
	event.Changes = &audit.ChangeDetails{
		After: map[string]interface{}{"user_id": userID, "role": string(role)},
	}
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// RemoveMember removes a member. Members may remove themselves; removing
// anyone else requires manage rights. The channel's last CREATOR can never
// be removed.
func (s *Service) RemoveMember(ctx context.Context, actor *identity.Actor, channelID, userID int64) error {
	channel, err := s.Get(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if actor.ID != userID {
		if err := s.requireManage(ctx, actor, channel); err != nil {
			return err
		}
	}

	role, isMember, err := s.store.MemberRole(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotChannelMember
	}
	if role == MemberRoleCreator {
		count, err := s.store.CreatorCount(ctx, channelID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastCreator
		}
	}

	if err := s.store.RemoveMember(ctx, channelID, userID); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeChannelMemberRemove, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.ResourceType = audit.ResourceTypeChannel
	event.ResourceID = fmt.Sprintf("%d", channelID)
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"user_id": userID, "role": string(role)},
	}
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// UpdateMemberRole changes a member's channel role. Requires manage rights.
// Demoting the channel's last CREATOR is refused.
func (s *Service) UpdateMemberRole(ctx context.Context, actor *identity.Actor, channelID, userID int64, newRole MemberRole) error {
	channel, err := s.Get(ctx, actor, channelID)
	if err != nil {
		return err
	}
	if err := s.requireManage(ctx, actor, channel); err != nil {
		return err
	}
	if !newRole.Valid() {
		return fmt.Errorf("invalid member role %q", newRole)
	}

	oldRole, isMember, err := s.store.MemberRole(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotChannelMember
	}
	if oldRole == newRole {
		return nil
	}
	if oldRole == MemberRoleCreator {
		count, err := s.store.CreatorCount(ctx, channelID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrLastCreator
		}
	}

	if err := s.store.UpdateMemberRole(ctx, channelID, userID, newRole); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeChannelMemberRoleChange, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.ResourceType = audit.ResourceTypeChannel
	event.ResourceID = fmt.Sprintf("%d", channelID)
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"user_id": userID, "role": string(oldRole)},
		After:  map[string]interface{}{"user_id": userID, "role": string(newRole)},
	}
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// Members lists the channel's members. The channel must be visible to the
// actor.
func (s *Service) Members(ctx context.Context, actor *identity.Actor, channelID int64) ([]*Member, error) {
	if _, err := s.Get(ctx, actor, channelID); err != nil {
		return nil, err
	}
	return s.store.Members(ctx, channelID)
}

func (s *Service) requireManage(ctx context.Context, actor *identity.Actor, channel *Channel) error {
	ok, err := s.CanManage(ctx, actor, channel)
	if err != nil {
		return err
	}
	if !ok {
		audit.Denied(ctx, s.auditLog, actor.ID, audit.ResourceTypeChannel,
			fmt.Sprintf("%d", channel.ID), "channel management denied")
		return authz.ErrPermissionDenied
	}
	return nil
}
