package venues

import (
	"context"
	"fmt"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
)

// Service implements venue administration and the visibility primitives the
// rest of the system is built on: per-request venue scopes and the
// shared-venue user set.
type Service struct {
	store    *Store
	authz    *authz.Service
	auditLog audit.Logger
}

// NewService creates the venue service
func NewService(store *Store, authzSvc *authz.Service, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{store: store, authz: authzSvc, auditLog: auditLogger}
}

// Store exposes the underlying store for services composing venue queries
func (s *Service) Store() *Store {
	return s.store
}

// ScopeFor builds the venue scope for a request. Admins get the unbounded
// scope; everyone else gets their active venue assignments. A user with no
// active venues gets an empty scope and sees nothing venue-scoped.
func (s *Service) ScopeFor(ctx context.Context, actor *identity.Actor) (*Scope, error) {
	if actor.IsAdmin() {
		return AdminScope(), nil
	}
	ids, err := s.store.ActiveVenueIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return ScopeOf(ids), nil
}

// SharedVenueUsers returns the IDs of active users who share at least one
// active venue with the given user. The user appears in their own set
// whenever they have at least one active venue; with no active venues the
// set is empty. Both hops re-check venue active state, so a deactivated
// venue contributes nothing even while assignments to it remain stored.
func (s *Service) SharedVenueUsers(ctx context.Context, userID int64) ([]int64, error) {
	venueIDs, err := s.store.ActiveVenueIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.UserIDsAtVenues(ctx, venueIDs)
}

// SharesVenue reports whether two users share at least one active venue
func (s *Service) SharesVenue(ctx context.Context, userA, userB int64) (bool, error) {
	venueIDs, err := s.store.ActiveVenueIDs(ctx, userA)
	if err != nil {
		return false, err
	}
	for _, venueID := range venueIDs {
		member, err := s.store.IsMember(ctx, userB, venueID)
		if err != nil {
			return false, err
		}
		if member {
			return true, nil
		}
	}
	return false, nil
}

// Create creates a venue. Only roles carrying venues:manage may create;
// venue-level overrides cannot, since creation is not scoped to any venue.
func (s *Service) Create(ctx context.Context, actor *identity.Actor, venue *Venue) error {
	if !actor.IsAdmin() && !s.authz.Grants().Has(actor.Role, authz.Permission{Resource: authz.ResourceVenues, Action: authz.ActionManage}) {
		return authz.ErrPermissionDenied
	}
	venue.Active = true
	if err := s.store.Create(ctx, venue); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeVenueCreate, actor.ID,
		audit.ResourceTypeVenue, fmt.Sprintf("%d", venue.ID), &audit.ChangeDetails{
			After: map[string]interface{}{"name": venue.Name},
		})
	return nil
}

// Get returns a venue visible to the actor. Non-admins only see venues they
// are assigned to; anything else is reported as not found, whether or not
// the venue exists.
func (s *Service) Get(ctx context.Context, actor *identity.Actor, venueID int64) (*Venue, error) {
	if !actor.IsAdmin() {
		member, err := s.store.IsMember(ctx, actor.ID, venueID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrVenueNotFound
		}
	}
	return s.store.Get(ctx, venueID)
}

// List returns the venues visible to the actor: all venues for admins,
// active assigned venues for everyone else
func (s *Service) List(ctx context.Context, actor *identity.Actor, activeOnly bool) ([]*Venue, error) {
	if actor.IsAdmin() {
		return s.store.List(ctx, activeOnly)
	}

	ids, err := s.store.ActiveVenueIDs(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	venues := make([]*Venue, 0, len(ids))
	for _, id := range ids {
		venue, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	return venues, nil
}

// Deactivate logically deletes a venue. Admin only. Assignments and
// overrides stay stored but stop counting everywhere.
func (s *Service) Deactivate(ctx context.Context, actor *identity.Actor, venueID int64) error {
	if !actor.IsAdmin() {
		return authz.ErrPermissionDenied
	}
	if err := s.store.SetActive(ctx, venueID, false); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeVenueDeactivate, actor.ID,
		audit.ResourceTypeVenue, fmt.Sprintf("%d", venueID), nil)
	return nil
}

// AddMember assigns a user to a venue. Requires venues:manage effective at
// that venue.
func (s *Service) AddMember(ctx context.Context, actor *identity.Actor, userID, venueID int64) error {
	if err := s.requireVenueManage(ctx, actor, venueID); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, venueID); err != nil {
		return err
	}
	if err := s.store.AddMember(ctx, userID, venueID); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeVenueMemberAdd, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.VenueID = &venueID
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = fmt.Sprintf("%d", userID)
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// RemoveMember removes a user's venue assignment. Requires venues:manage
// effective at that venue.
func (s *Service) RemoveMember(ctx context.Context, actor *identity.Actor, userID, venueID int64) error {
	if err := s.requireVenueManage(ctx, actor, venueID); err != nil {
		return err
	}
	if err := s.store.RemoveMember(ctx, userID, venueID); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeVenueMemberRemove, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.VenueID = &venueID
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = fmt.Sprintf("%d", userID)
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// Members lists the venue's active members. The venue must be inside the
// actor's scope.
func (s *Service) Members(ctx context.Context, actor *identity.Actor, venueID int64) ([]*Member, error) {
	if !actor.IsAdmin() {
		member, err := s.store.IsMember(ctx, actor.ID, venueID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrVenueNotFound
		}
	}
	return s.store.Members(ctx, venueID)
}

func (s *Service) requireVenueManage(ctx context.Context, actor *identity.Actor, venueID int64) error {
	granted, err := s.authz.HasEffectivePermission(ctx, actor, venueID,
		authz.Permission{Resource: authz.ResourceVenues, Action: authz.ActionManage})
	if err != nil {
		return err
	}
	if !granted {
		audit.Denied(ctx, s.auditLog, actor.ID, audit.ResourceTypeVenue,
			fmt.Sprintf("%d", venueID), "venue member management denied")
		return authz.ErrPermissionDenied
	}
	return nil
}
