package auth

// Package auth contains domain-level types for identity, roles, and access
// windows. It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role represents an application authorization role.
// Keep string form for easy persistence and transport.
// The set is closed: admin and designer are the only valid values.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDesigner Role = "designer"
)

// ParseRole converts a stored string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleDesigner:
		return RoleDesigner, nil
	default:
		return "", fmt.Errorf("invalid role: %q (valid options: admin, designer)", s)
	}
}

// IsValid reports whether the role is one of the closed set.
func (r Role) IsValid() bool { return r == RoleAdmin || r == RoleDesigner }

// TimeWindow is a permitted hour-of-day range for non-admin access.
// The interval is half-open: access is allowed when
// StartHour <= hour < EndHour. Windows do not wrap across midnight;
// NewTimeWindow rejects start >= end.
type TimeWindow struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// NewTimeWindow validates the bounds and returns a window.
func NewTimeWindow(start, end int) (TimeWindow, error) {
	if start < 0 || start > 23 {
		return TimeWindow{}, fmt.Errorf("start hour %d out of range [0,24)", start)
	}
	if end < 1 || end > 24 {
		return TimeWindow{}, fmt.Errorf("end hour %d out of range (0,24]", end)
	}
	if start >= end {
		return TimeWindow{}, fmt.Errorf("start hour %d must be before end hour %d", start, end)
	}
	return TimeWindow{StartHour: start, EndHour: end}, nil
}

// ParseTimeWindow parses the stored "9-18" text form used by the
// users.allowed_hours column.
func ParseTimeWindow(s string) (TimeWindow, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return TimeWindow{}, fmt.Errorf("invalid time window %q: want \"start-end\"", s)
	}
	startHour, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid time window start %q: %w", start, err)
	}
	endHour, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil {
		return TimeWindow{}, fmt.Errorf("invalid time window end %q: %w", end, err)
	}
	return NewTimeWindow(startHour, endHour)
}

// String renders the window in its stored text form.
func (w TimeWindow) String() string {
	return strconv.Itoa(w.StartHour) + "-" + strconv.Itoa(w.EndHour)
}

// Contains reports whether the given hour falls inside the window.
func (w TimeWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// DefaultDesignerWindow is the access window assigned at registration.
var DefaultDesignerWindow = TimeWindow{StartHour: 9, EndHour: 18}

// Identity represents the authenticated principal returned by the identity
// provider. Adapters map provider-specific claims into this shape. It is an
// authentication-layer concept; whether the principal is provisioned in the
// application is a separate question answered by the user store.
type Identity struct {
	ID    string // stable provider-issued identifier (sub)
	Email string
}

// UserRecord binds an Identity to an application role and access policy.
// There is exactly one UserRecord per provisioned identity; an authenticated
// identity without one is a degraded (unprovisioned) state, never a default
// role.
type UserRecord struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Role         Role        `json:"role"`
	AccessWindow *TimeWindow `json:"access_window"`
	CreatedAt    time.Time   `json:"created_at"`
}

// ProviderSession is the provider-owned authenticated-connection state.
// The core never persists it; the provider's own token is the source of
// truth on reload.
type ProviderSession struct {
	AccessToken  string
	RefreshToken string
	Identity     Identity
	ExpiresAt    time.Time
}
