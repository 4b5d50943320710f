// Package venues manages venues and the user-venue assignment graph, and
// provides the two visibility primitives every other feature filters
// through: the per-request venue Scope (unbounded for admins, the actor's
// active assignments otherwise) and the shared-venue user set.
//
// Deactivating a venue is the only venue deletion. Assignments and overrides
// stay in the database but stop counting, because every query joins on the
// venue's active flag.
package venues
