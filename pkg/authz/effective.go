package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// EffectivePermissionSet is what a user can do at one venue: the grants of
// their global role plus the overrides assigned at that venue. ReadOnly is
// set when the viewer is looking at their own permissions; self-service
// permission editing is never allowed.
type EffectivePermissionSet struct {
	UserID           int64    `json:"user_id"`
	VenueID          int64    `json:"venue_id"`
	Role             string   `json:"role"`
	RolePermissions  []string `json:"role_permissions"`
	VenuePermissions []string `json:"venue_permissions"`
	ReadOnly         bool     `json:"read_only"`
}

// Has reports whether the key appears in either component of the set
func (s *EffectivePermissionSet) Has(key string) bool {
	for _, k := range s.RolePermissions {
		if k == key {
			return true
		}
	}
	for _, k := range s.VenuePermissions {
		if k == key {
			return true
		}
	}
	return false
}

// Service evaluates effective permissions and manages venue overrides
type Service struct {
	store    *Store
	grants   *Grants
	auditLog audit.Logger
	metrics  *observability.Metrics
}

// NewService creates the authorization service. metrics may be nil.
func NewService(store *Store, grants *Grants, auditLogger audit.Logger, metrics *observability.Metrics) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{
		store:    store,
		grants:   grants,
		auditLog: auditLogger,
		metrics:  metrics,
	}
}

// Grants exposes the role table for callers that only need role lookups
func (s *Service) Grants() *Grants {
	return s.grants
}

// EffectivePermissions computes the target user's effective permission set at
// a venue. Any authenticated actor may view; the set comes back ReadOnly when
// the actor is the target.
func (s *Service) EffectivePermissions(ctx context.Context, actor *identity.Actor, targetUserID, venueID int64) (*EffectivePermissionSet, error) {
	role, err := s.store.UserRole(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	venueKeys, err := s.store.VenuePermissionKeys(ctx, targetUserID, venueID)
	if err != nil {
		return nil, err
	}

	return &EffectivePermissionSet{
		UserID:           targetUserID,
		VenueID:          venueID,
		Role:             string(role),
		RolePermissions:  s.grants.RoleKeys(role),
		VenuePermissions: venueKeys,
		ReadOnly:         actor.ID == targetUserID,
	}, nil
}

// HasEffectivePermission reports whether the actor holds the permission at
// the venue, through role or override. Admins pass every check.
func (s *Service) HasEffectivePermission(ctx context.Context, actor *identity.Actor, venueID int64, perm Permission) (bool, error) {
	granted, err := s.hasEffective(ctx, actor, venueID, perm)
	if err != nil {
		return false, err
	}
	s.observe(perm, granted)
	return granted, nil
}

func (s *Service) hasEffective(ctx context.Context, actor *identity.Actor, venueID int64, perm Permission) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if s.grants.Has(actor.Role, perm) {
		return true, nil
	}
	return s.store.HasVenuePermission(ctx, actor.ID, venueID, perm)
}

// HasPermissionAnyVenue reports whether the actor holds the permission
// through role or through an override at any active venue
func (s *Service) HasPermissionAnyVenue(ctx context.Context, actor *identity.Actor, perm Permission) (bool, error) {
	if actor.IsAdmin() {
		s.observe(perm, true)
		return true, nil
	}
	if s.grants.Has(actor.Role, perm) {
		s.observe(perm, true)
		return true, nil
	}
	granted, err := s.store.HasAnyVenuePermission(ctx, actor.ID, perm)
	if err != nil {
		return false, err
	}
	s.observe(perm, granted)
	return granted, nil
}

// BulkUpdateVenuePermissions replaces the target user's override set at a
// venue with exactly the given keys, atomically. The actor needs
// permissions:manage (by role, or by override at this venue); admins always
// may. Self-targeting is rejected regardless of privilege. Every failure
// surfaces as the same permission-denied error.
func (s *Service) BulkUpdateVenuePermissions(ctx context.Context, actor *identity.Actor, targetUserID, venueID int64, keys []string) error {
	if actor.ID == targetUserID {
		s.denied(ctx, actor, venueID, targetUserID, "self-service permission update rejected")
		return ErrPermissionDenied
	}

	canManage, err := s.hasEffective(ctx, actor, venueID, Permission{ResourcePermissions, ActionManage})
	if err != nil {
		return err
	}
	if !canManage {
		s.denied(ctx, actor, venueID, targetUserID, "venue permission update denied")
		return ErrPermissionDenied
	}

	if _, err := s.store.UserRole(ctx, targetUserID); err != nil {
		return err
	}

	normalized, err := normalizeKeys(keys)
	if err != nil {
		return err
	}

	before, err := s.store.VenuePermissionKeys(ctx, targetUserID, venueID)
	if err != nil {
		return err
	}

	if err := s.store.ReplaceVenuePermissions(ctx, targetUserID, venueID, normalized); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypeAuthzPermissionUpdate, audit.EventStatusSuccess)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.VenueID = &venueID
	event.ResourceType = audit.ResourceTypePermission
	event.ResourceID = fmt.Sprintf("user:%d", targetUserID)
	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"permissions": before},
		After:  map[string]interface{}{"permissions": normalized},
	}
	_ = s.auditLog.Record(ctx, event)

	return nil
}

func (s *Service) denied(ctx context.Context, actor *identity.Actor, venueID, targetUserID int64, message string) {
	event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
	event.ActorID = &actor.ID
	event.Username = actor.Username
	event.VenueID = &venueID
	event.ResourceType = audit.ResourceTypePermission
	event.ResourceID = fmt.Sprintf("user:%d", targetUserID)
	event.Message = message
	_ = s.auditLog.Record(ctx, event)
}

func (s *Service) observe(perm Permission, granted bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveAuthzDecision(string(perm.Resource), string(perm.Action), granted)
}

// normalizeKeys validates, deduplicates and sorts the requested keys
func normalizeKeys(keys []string) ([]string, error) {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, err := ParsePermission(key); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPermission, key)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}
