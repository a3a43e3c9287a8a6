package auth

import "time"

// IsAllowed applies the time-window gate: admins bypass it unconditionally,
// a nil window means unrestricted access, and otherwise the wall-clock hour
// must fall inside the half-open [StartHour, EndHour) interval.
//
// Pure and deterministic; callers inject the clock.
func IsAllowed(role Role, window *TimeWindow, now time.Time) bool {
	if role == RoleAdmin {
		return true
	}
	if window == nil {
		return true
	}
	return window.Contains(now.Hour())
}
