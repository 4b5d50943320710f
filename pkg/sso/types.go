package sso

import (
	"context"
	"errors"

	"github.com/shiftdeck/shiftdeck/pkg/identity"
)

// ErrSignInNotAllowed is returned when an external identity cannot be
// mapped to an active local account. Unknown identities (with
// auto-provisioning off) and deactivated accounts produce the same error.
var ErrSignInNotAllowed = errors.New("sign-in not allowed")

// ErrStateMismatch is returned when the OAuth2 state check fails
var ErrStateMismatch = errors.New("state parameter mismatch")

// ExternalIdentity is what an identity provider asserts about a user
type ExternalIdentity struct {
	Subject  string
	Email    string
	Username string
	FullName string
}

// Provider abstracts an external identity provider
type Provider interface {
	// AuthCodeURL returns the provider URL to redirect the browser to
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for a verified identity
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}

// Config configures single sign-on
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// AutoProvision creates local accounts for unknown identities
	AutoProvision bool
	// DefaultRole is assigned to auto-provisioned accounts
	DefaultRole identity.Role
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.IssuerURL == "" {
		return errors.New("issuer URL is required")
	}
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	if c.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	if c.RedirectURL == "" {
		return errors.New("redirect URL is required")
	}
	for _, scope := range c.Scopes {
		if scope == "openid" {
			return nil
		}
	}
	return errors.New("'openid' scope is required")
}
