package sso

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/users"
)

// Provisioner maps external identities to local user accounts. Subjects are
// remembered in sso_identities; on first sign-in an identity is matched to
// an existing account by email, or a new account is created when
// auto-provisioning is enabled.
type Provisioner struct {
	db          *sql.DB
	userStore   *users.Store
	auditLogger audit.Logger

	autoProvision bool
	defaultRole   identity.Role
}

// NewProvisioner creates a provisioner
func NewProvisioner(db *sql.DB, userStore *users.Store, auditLogger audit.Logger, config Config) *Provisioner {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	role := config.DefaultRole
	if !role.Valid() {
		role = identity.RoleStaff
	}
	return &Provisioner{
		db:            db,
		userStore:     userStore,
		auditLogger:   auditLogger,
		autoProvision: config.AutoProvision,
		defaultRole:   role,
	}
}

// Resolve returns the local user for an external identity, linking or
// creating accounts as configured. Unknown identities and deactivated
// accounts both yield ErrSignInNotAllowed.
func (p *Provisioner) Resolve(ctx context.Context, ext *ExternalIdentity) (*identity.User, error) {
	var userID int64
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id FROM sso_identities WHERE subject = $1`, ext.Subject).Scan(&userID)
	switch {
	case err == nil:
		user, err := p.userStore.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load linked user: %w", err)
		}
		if !user.Active {
			return nil, ErrSignInNotAllowed
		}
		return user, nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	if user, err := p.matchByEmail(ctx, ext); err != nil {
		return nil, err
	} else if user != nil {
		if err := p.link(ctx, ext.Subject, user.ID); err != nil {
			return nil, err
		}
		return user, nil
	}

	if !p.autoProvision {
		return nil, ErrSignInNotAllowed
	}
	return p.provision(ctx, ext)
}

// matchByEmail finds an active account with the identity's email, or nil
func (p *Provisioner) matchByEmail(ctx context.Context, ext *ExternalIdentity) (*identity.User, error) {
	var userID int64
	err := p.db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE email = $1 AND active`, ext.Email).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match identity by email: %w", err)
	}
	return p.userStore.Get(ctx, userID)
}

func (p *Provisioner) link(ctx context.Context, subject string, userID int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sso_identities (subject, user_id, created_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (subject) DO NOTHING
	`, subject, userID)
	if err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}
	return nil
}

func (p *Provisioner) provision(ctx context.Context, ext *ExternalIdentity) (*identity.User, error) {
	user := &identity.User{
		Username: ext.Username,
		Email:    ext.Email,
		FullName: ext.FullName,
		Role:     p.defaultRole,
	}
	if err := p.userStore.Create(ctx, user); err != nil {
		if err == users.ErrUsernameTaken {
			// The username belongs to a different email; do not hijack it.
			return nil, ErrSignInNotAllowed
		}
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}
	if err := p.link(ctx, ext.Subject, user.ID); err != nil {
		return nil, err
	}

	audit.Mutation(ctx, p.auditLogger, audit.EventTypeUserCreate, user.ID,
		audit.ResourceTypeUser, fmt.Sprintf("user:%d", user.ID), &audit.ChangeDetails{
			After: map[string]interface{}{
				"username":    user.Username,
				"role":        string(user.Role),
				"provisioned": true,
			},
		})

	return user, nil
}
