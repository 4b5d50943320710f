// Package users implements user administration and the directory.
//
// Directory visibility follows the venue graph: a user sees exactly the
// active users who share at least one active venue with them, excluding
// themselves. Admins see everyone. Deactivation is the only deletion and
// also revokes the user's sessions.
package users
