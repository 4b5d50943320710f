// Package timeoff implements time-off requests. A request belongs to the
// venue the user would be absent from; approving or denying it requires
// timeoff:approve effective at that venue, and nobody decides their own
// request. Decisions are final.
package timeoff
