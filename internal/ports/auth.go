package ports

// Package ports defines interfaces (hexagonal ports) for the authorization
// core. Implementations live in internal/adapters and internal/data;
// orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
)

// ErrProviderRejected is wrapped by providers when the provider itself
// refused the request (bad credentials, duplicate signup). Transport-level
// failures are returned unwrapped so callers can surface them as an opaque
// availability problem instead.
var ErrProviderRejected = errors.New("identity provider rejected the request")

// SessionEventType classifies provider session-change events.
type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "SIGNED_IN"
	SessionSignedOut SessionEventType = "SIGNED_OUT"
	SessionRefreshed SessionEventType = "TOKEN_REFRESHED"
)

// SessionEvent is a typed provider session-change notification. Session is
// nil for SIGNED_OUT.
type SessionEvent struct {
	Type    SessionEventType
	Session *domainauth.ProviderSession
}

// IdentityProvider is the external identity provider the core delegates
// credential handling to. Events delivers session changes on a channel with
// a single consumer (the session manager); the channel closes when the
// provider is closed.
type IdentityProvider interface {
	// CurrentSession returns the provider session restored from the
	// provider's own persisted token, or nil when none exists.
	CurrentSession(ctx context.Context) (*domainauth.ProviderSession, error)

	// Events returns the session-change stream. The returned channel is
	// owned by the provider and closed by Close.
	Events() <-chan SessionEvent

	// SignInWithPassword performs a credential check. On success the
	// provider also emits a SIGNED_IN event.
	SignInWithPassword(ctx context.Context, email, password string) (*domainauth.ProviderSession, error)

	// SignUp creates a new provider identity. Depending on provider
	// configuration the returned session may be nil (e.g. e-mail
	// confirmation pending).
	SignUp(ctx context.Context, email, password string) (domainauth.Identity, *domainauth.ProviderSession, error)

	// SignOut revokes the current provider session and emits SIGNED_OUT.
	SignOut(ctx context.Context) error

	// Close releases the event subscription. After Close the Events channel
	// is closed and no further events are delivered.
	Close() error
}

// ErrUserNotFound is returned by UserStore when no record exists for an
// id. This is an expected outcome for authenticated-but-unprovisioned
// identities, not a failure.
var ErrUserNotFound = errors.New("user not found")

// ErrInvitationNotFound is returned by InvitationStore when no invitation
// matches a token or id.
var ErrInvitationNotFound = errors.New("invitation not found")

// UserStore persists application UserRecords (table: users).
type UserStore interface {
	Get(ctx context.Context, id string) (domainauth.UserRecord, error)
	Insert(ctx context.Context, user domainauth.UserRecord) error
	List(ctx context.Context) ([]domainauth.UserRecord, error)
	UpdateRole(ctx context.Context, id string, role domainauth.Role) error
	UpdateAccessWindow(ctx context.Context, id string, window *domainauth.TimeWindow) error
}

// InvitationStore persists invitations (table: invitations). Consume,
// Cancel, and Refresh are conditional writes: they only take effect while
// the stored status is still pending, and report whether they did.
type InvitationStore interface {
	Insert(ctx context.Context, inv domainauth.Invitation) error
	GetByToken(ctx context.Context, token string) (domainauth.Invitation, error)
	GetByID(ctx context.Context, id string) (domainauth.Invitation, error)
	List(ctx context.Context) ([]domainauth.Invitation, error)

	// Consume atomically transitions pending → accepted. It returns false
	// when the invitation was no longer pending, which is how the loser of
	// a registration race finds out.
	Consume(ctx context.Context, id string) (bool, error)

	// Cancel transitions pending → cancelled.
	Cancel(ctx context.Context, id string) (bool, error)

	// Refresh replaces the token and expiry of a still-pending invitation
	// (admin resend).
	Refresh(ctx context.Context, id, token string, expiresAt time.Time) (bool, error)
}

// RegistrationStore couples invitation acceptance to user provisioning in a
// single transaction. It returns false without creating the user when the
// invitation was no longer pending, so two registrations racing on one token
// produce exactly one UserRecord.
type RegistrationStore interface {
	ConsumeAndProvision(ctx context.Context, invitationID string, user domainauth.UserRecord) (bool, error)
}

// ErrTokenNotFound is returned by TokenStore.Get when no token is stored
// under the key.
var ErrTokenNotFound = errors.New("token not found")

// TokenStore persists the provider's opaque token material between process
// runs so a session can be restored on reload.
type TokenStore interface {
	Save(ctx context.Context, key string, token []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Clock abstracts wall-clock reads for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
