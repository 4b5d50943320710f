package authz

import "errors"

var (
	// ErrPermissionDenied is returned for every authorization failure. The
	// message is deliberately uniform so callers cannot distinguish "no such
	// grant" from "grant exists but you lack it".
	ErrPermissionDenied = errors.New("you don't have permission to perform this action")

	// ErrInvalidPermission is returned when a write names a permission
	// outside the canonical enumeration
	ErrInvalidPermission = errors.New("invalid permission")

	// ErrUserNotFound is returned when the target user does not exist
	ErrUserNotFound = errors.New("user not found")
)
