package timeoff

import (
	"context"
	"fmt"
	"time"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// Service implements time-off requests and venue-scoped approval
type Service struct {
	store    *Store
	venues   *venues.Service
	authz    *authz.Service
	auditLog audit.Logger
}

// NewService creates the time-off service
func NewService(store *Store, venueSvc *venues.Service, authzSvc *authz.Service, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{store: store, venues: venueSvc, authz: authzSvc, auditLog: auditLogger}
}

// Request files a time-off request at one of the actor's venues
func (s *Service) Request(ctx context.Context, actor *identity.Actor, venueID int64, start, end time.Time, reason string) (*Request, error) {
	if end.Before(start) {
		return nil, ErrInvalidDates
	}

	if !actor.IsAdmin() {
		member, err := s.venues.Store().IsMember(ctx, actor.ID, venueID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, venues.ErrVenueNotFound
		}
	}

	req := &Request{
		UserID:    actor.ID,
		VenueID:   venueID,
		StartDate: start,
		EndDate:   end,
		Reason:    reason,
	}
	if err := s.store.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Decide approves or denies a pending request. The decider needs
// timeoff:approve effective at the request's venue and cannot decide their
// own request. Decisions are final.
func (s *Service) Decide(ctx context.Context, actor *identity.Actor, requestID int64, approve bool) error {
	req, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return err
	}
	if req.UserID == actor.ID {
		return ErrOwnRequest
	}

	granted, err := s.authz.HasEffectivePermission(ctx, actor, req.VenueID,
		authz.Permission{Resource: authz.ResourceTimeOff, Action: authz.ActionApprove})
	if err != nil {
		return err
	}
	if !granted {
		audit.Denied(ctx, s.auditLog, actor.ID, audit.ResourceTypeTimeOff,
			fmt.Sprintf("%d", requestID), "time-off decision denied")
		return authz.ErrPermissionDenied
	}

	status := StatusDenied
	if approve {
		status = StatusApproved
	}
	if err := s.store.Decide(ctx, requestID, actor.ID, status); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeTimeOffDecision, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.VenueID = &req.VenueID
	event.ResourceType = audit.ResourceTypeTimeOff
	event.ResourceID = fmt.Sprintf("%d", requestID)
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"status": string(StatusPending)},
		After:  map[string]interface{}{"status": string(status)},
	}
	_ = s.auditLog.Record(ctx, event)
	return nil
}

// Get returns a request visible to the actor: their own, any for admins,
// and requests at venues inside the actor's scope for everyone else.
func (s *Service) Get(ctx context.Context, actor *identity.Actor, requestID int64) (*Request, error) {
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || req.UserID == actor.ID {
		return req, nil
	}

	scope, err := s.venues.ScopeFor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !scope.Contains(req.VenueID) {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// ListMine returns the actor's own requests
func (s *Service) ListMine(ctx context.Context, actor *identity.Actor) ([]*Request, error) {
	return s.store.ListForUser(ctx, actor.ID)
}

// ListForVenue returns requests at one venue. The venue must be inside the
// actor's scope and the actor needs timeoff:approve there; requesters see
// only their own requests through ListMine.
func (s *Service) ListForVenue(ctx context.Context, actor *identity.Actor, venueID int64, pendingOnly bool) ([]*Request, error) {
	if !actor.IsAdmin() {
		scope, err := s.venues.ScopeFor(ctx, actor)
		if err != nil {
			return nil, err
		}
		if !scope.Contains(venueID) {
			return nil, venues.ErrVenueNotFound
		}

		granted, err := s.authz.HasEffectivePermission(ctx, actor, venueID,
			authz.Permission{Resource: authz.ResourceTimeOff, Action: authz.ActionApprove})
		if err != nil {
			return nil, err
		}
		if !granted {
			return nil, authz.ErrPermissionDenied
		}
	}
	return s.store.ListForVenues(ctx, []int64{venueID}, pendingOnly)
}
