package service

import (
	"log/slog"
	"time"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/ports"
)

// stateSource is the slice of SessionManager the authorizer reads.
type stateSource interface {
	Current() domainauth.State
}

// AuthorizerOptions groups dependencies for Authorizer.
type AuthorizerOptions struct {
	Sessions stateSource
	Clock    ports.Clock
	Logger   *slog.Logger
}

// Authorizer is a read-only projection of session state answering the
// questions middleware asks: who is here, are they an admin, and does the
// wall clock fall inside their access window. It holds no state of its
// own; every answer is computed from the session snapshot at call time.
type Authorizer struct {
	sessions stateSource
	clock    ports.Clock
	logger   *slog.Logger
}

// NewAuthorizer constructs an Authorizer.
func NewAuthorizer(opts AuthorizerOptions) *Authorizer {
	if opts.Sessions == nil {
		panic("authorizer requires a session source")
	}
	clock := opts.Clock
	if clock == nil {
		clock = ports.ClockFunc(time.Now)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{sessions: opts.Sessions, clock: clock, logger: logger}
}

// Snapshot is a point-in-time answer set. Loading distinguishes "nobody is
// signed in" from "we do not know yet".
type Snapshot struct {
	User          *domainauth.UserRecord
	Identity      *domainauth.Identity
	Loading       bool
	Authenticated bool
	IsAdmin       bool
	CanAccessNow  bool
}

// Snapshot computes the current authorization answers.
func (a *Authorizer) Snapshot() Snapshot {
	state := a.sessions.Current()

	snap := Snapshot{
		User:     state.User,
		Identity: state.Identity,
		Loading:  state.Loading(),
	}

	switch state.Phase {
	case domainauth.PhaseAuthenticated:
		snap.Authenticated = true
		snap.IsAdmin = state.User.Role == domainauth.RoleAdmin
		snap.CanAccessNow = domainauth.IsAllowed(state.User.Role, state.User.AccessWindow, a.clock.Now())
	case domainauth.PhaseUnprovisioned:
		// Signed in at the provider but no UserRecord: authenticated for
		// identity purposes, no role, no access grant.
		snap.Authenticated = true
	}
	return snap
}

// CanAccessNow reports whether the current user may act at this moment.
// Unknown and anonymous states answer false.
func (a *Authorizer) CanAccessNow() bool {
	return a.Snapshot().CanAccessNow
}
