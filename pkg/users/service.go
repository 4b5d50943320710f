package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
)

// Service implements user administration and the user directory
type Service struct {
	store    *Store
	venues   *venues.Service
	tokens   *identity.TokenManager
	auditLog audit.Logger
}

// NewService creates the user service. tokens may be nil in contexts without
// session management; deactivation then skips token revocation.
func NewService(store *Store, venueSvc *venues.Service, tokens *identity.TokenManager, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{store: store, venues: venueSvc, tokens: tokens, auditLog: auditLogger}
}

// Create creates a user account. Admin only.
func (s *Service) Create(ctx context.Context, actor *identity.Actor, user *identity.User) error {
	if !actor.IsAdmin() {
		return authz.ErrPermissionDenied
	}
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return fmt.Errorf("username is required")
	}
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}

	if err := s.store.Create(ctx, user); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeUserCreate, actor.ID,
		audit.ResourceTypeUser, fmt.Sprintf("%d", user.ID), &audit.ChangeDetails{
			After: map[string]interface{}{"username": user.Username, "role": string(user.Role)},
		})
	return nil
}

// UpdateProfile updates a user's profile fields. Admins may edit anyone;
// users may edit themselves.
func (s *Service) UpdateProfile(ctx context.Context, actor *identity.Actor, userID int64, email, fullName string) error {
	if !actor.IsAdmin() && actor.ID != userID {
		return authz.ErrPermissionDenied
	}
	if err := s.store.UpdateProfile(ctx, userID, email, fullName); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeUserUpdate, actor.ID,
		audit.ResourceTypeUser, fmt.Sprintf("%d", userID), nil)
	return nil
}

// Deactivate logically deletes a user and revokes their session tokens.
// Admin only; admins cannot deactivate themselves, which keeps at least the
// acting admin alive.
func (s *Service) Deactivate(ctx context.Context, actor *identity.Actor, userID int64) error {
	if !actor.IsAdmin() {
		return authz.ErrPermissionDenied
	}
	if actor.ID == userID {
		return fmt.Errorf("cannot deactivate your own account")
	}

	if err := s.store.SetActive(ctx, userID, false); err != nil {
		return err
	}
	if s.tokens != nil {
		if err := s.tokens.RevokeUserTokens(ctx, userID); err != nil {
			return err
		}
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeUserDeactivate, actor.ID,
		audit.ResourceTypeUser, fmt.Sprintf("%d", userID), nil)
	return nil
}

// ChangeRole reassigns a user's global role. Admin only; self-demotion is
// rejected.
func (s *Service) ChangeRole(ctx context.Context, actor *identity.Actor, userID int64, role identity.Role) error {
	if !actor.IsAdmin() {
		return authz.ErrPermissionDenied
	}
	if actor.ID == userID {
		return fmt.Errorf("cannot change your own role")
	}
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	before, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if before.Role == role {
		return nil
	}

	if err := s.store.SetRole(ctx, userID, role); err != nil {
		return err
	}
	audit.Mutation(ctx, s.auditLog, audit.EventTypeUserRoleChange, actor.ID,
		audit.ResourceTypeUser, fmt.Sprintf("%d", userID), &audit.ChangeDetails{
			Before: map[string]interface{}{"role": string(before.Role)},
			After:  map[string]interface{}{"role": string(role)},
		})
	return nil
}

// Get returns a user visible to the actor: themselves, anyone for admins,
// and shared-venue users for everyone else. Anyone outside that set is
// reported as not found.
func (s *Service) Get(ctx context.Context, actor *identity.Actor, userID int64) (*identity.User, error) {
	if actor.IsAdmin() || actor.ID == userID {
		return s.store.Get(ctx, userID)
	}

	shared, err := s.venues.SharesVenue(ctx, actor.ID, userID)
	if err != nil {
		return nil, err
	}
	if !shared {
		return nil, ErrUserNotFound
	}

	user, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Directory lists the users the actor can see. Admins get every active
// user; everyone else gets their shared-venue users, excluding themselves.
func (s *Service) Directory(ctx context.Context, actor *identity.Actor) ([]*identity.User, error) {
	if actor.IsAdmin() {
		return s.store.ListActive(ctx)
	}

	visible, err := s.venues.SharedVenueUsers(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	others := make([]int64, 0, len(visible))
	for _, id := range visible {
		if id != actor.ID {
			others = append(others, id)
		}
	}
	return s.store.ListByIDs(ctx, others)
}
