// Package channels implements venue-linked channels and their memberships.
//
// Channel visibility is derived entirely from the venue graph: a channel is
// accessible when at least one of its venues is in the viewer's scope.
// Channel membership grants a role inside the channel (CREATOR, MODERATOR,
// MEMBER) but never widens visibility.
//
// Management rights come from three independent sources, checked in order:
// the global admin bypass, CREATOR/MODERATOR membership, and
// channels:manage held effectively at every one of the channel's venues.
package channels
