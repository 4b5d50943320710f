// Package identity resolves the acting user for every request.
//
// The Resolver turns a user ID or bearer token into an Actor: an active user
// with a role. Inactive accounts are treated exactly like missing sessions;
// both resolve to ErrNotAuthenticated, so no downstream code ever sees a
// deactivated user as a caller.
//
// Session tokens are opaque random values stored as SHA-256 hashes with a
// short display prefix. The plaintext is handed out once at creation.
package identity
