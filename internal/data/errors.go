package data

import "github.com/atelierhq/atelier/internal/ports"

// Repository sentinel errors. They alias the port-level sentinels so
// callers can test against either package.
var (
	ErrUserNotFound       = ports.ErrUserNotFound
	ErrInvitationNotFound = ports.ErrInvitationNotFound
)
