package data

import "time"

// TimeProvider supplies the current time to repositories so that
// creation timestamps and expiry comparisons are testable.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time { return time.Now() }

// FixedTimeProvider implements TimeProvider with a settable instant for
// tests.
type FixedTimeProvider struct {
	fixed time.Time
}

// NewFixedTimeProvider creates a FixedTimeProvider pinned to t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{fixed: t}
}

// Now returns the pinned time.
func (f *FixedTimeProvider) Now() time.Time { return f.fixed }

// SetTime re-pins the provider to t.
func (f *FixedTimeProvider) SetTime(t time.Time) { f.fixed = t }

// Advance moves the pinned time forward by d.
func (f *FixedTimeProvider) Advance(d time.Duration) { f.fixed = f.fixed.Add(d) }
