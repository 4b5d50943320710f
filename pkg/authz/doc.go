// Package authz implements permission evaluation for venue-scoped access
// control.
//
// A user's effective permissions at a venue are the union of two layers: the
// grants of their single global role (a fixed table compiled into the binary)
// and per-user overrides stored against that venue. Overrides only add; there
// are no negative grants. Admins bypass permission checks entirely.
//
// Venue overrides are replaced wholesale: an update supplies the complete
// desired set and the store swaps it in one transaction, so concurrent
// readers see either the old set or the new one, never a mix.
package authz
