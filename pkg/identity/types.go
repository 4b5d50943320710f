package identity

import "time"

// Role is the global role assigned to a user. Roles are single-valued and
// non-nullable; changing a user's grants means reassigning the role.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
)

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// User represents a staff account. Users are never physically deleted;
// deactivation flips Active and is treated as the absence of a session.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	Active      bool       `json:"active"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Actor is the resolved caller for a request: an active, authenticated user.
// Every service entry point takes an Actor; an Actor is only ever produced by
// the Resolver, so holding one implies the active check already passed.
type Actor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the actor carries the role-level admin bypass
func (a *Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// SessionToken is an opaque bearer token record. Only the SHA-256 hash is
// stored; the plaintext token is returned once at creation.
type SessionToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}
