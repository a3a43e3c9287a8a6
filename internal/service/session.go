package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/ports"
)

// identityResolver is the slice of RoleService the session manager needs.
type identityResolver interface {
	Resolve(ctx context.Context, identityID string) (*domainauth.UserRecord, error)
}

// invitationGate is the slice of InvitationService the session manager
// needs at registration.
type invitationGate interface {
	Validate(ctx context.Context, token string) (ValidationResult, error)
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Provider     ports.IdentityProvider
	Roles        identityResolver
	Invitations  invitationGate
	Registration ports.RegistrationStore
	Logger       *slog.Logger
}

// SessionManager owns the published authentication state. It is the single
// consumer of the provider's session-change stream, and that stream is the
// sole writer of published state: Login and Logout only initiate
// provider-side effects, so there is no local write racing the stream's.
//
// States: Initializing → {Authenticated, AuthenticatedUnprovisioned,
// Anonymous}, with exactly one transition out of Initializing.
type SessionManager struct {
	provider     ports.IdentityProvider
	roles        identityResolver
	invitations  invitationGate
	registration ports.RegistrationStore
	logger       *slog.Logger

	mu      sync.RWMutex
	state   domainauth.State
	subs    map[int]chan domainauth.State
	nextSub int

	wg      sync.WaitGroup
	started bool
}

// NewSessionManager constructs a SessionManager in the Initializing state.
// Call Start to perform the initial provider read and attach to the event
// stream.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	if opts.Provider == nil {
		panic("session manager requires an identity provider")
	}
	if opts.Roles == nil {
		panic("session manager requires a role resolver")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		provider:     opts.Provider,
		roles:        opts.Roles,
		invitations:  opts.Invitations,
		registration: opts.Registration,
		logger:       logger,
		state:        domainauth.Initializing(),
		subs:         make(map[int]chan domainauth.State),
	}
}

// Start reads the current provider session once, publishes the first
// settled state, and then consumes the provider event stream until Close.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("session manager already started")
	}
	m.started = true
	m.mu.Unlock()

	sess, err := m.provider.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("read current provider session: %w", err)
	}
	m.publish(m.stateFor(ctx, sess))

	events := m.provider.Events()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				m.handleEvent(ctx, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close releases the provider subscription and waits for the event loop to
// drain. Safe to call once on every exit path.
func (m *SessionManager) Close() error {
	err := m.provider.Close()
	m.wg.Wait()
	return err
}

// Current returns the latest published state.
func (m *SessionManager) Current() domainauth.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a channel receiving every published state change and a
// cancel function releasing it. Slow consumers miss intermediate states
// rather than blocking the publisher.
func (m *SessionManager) Subscribe() (<-chan domainauth.State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan domainauth.State, 1)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Login delegates the credential check to the provider. The returned state
// is a read-only enrichment for the caller's immediate response; published
// state still arrives through the event stream.
func (m *SessionManager) Login(ctx context.Context, email, password string) (domainauth.State, error) {
	sess, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, ports.ErrProviderRejected) {
			return domainauth.State{}, providerRejected(err)
		}
		return domainauth.State{}, providerUnavailable(err)
	}
	return m.stateFor(ctx, sess), nil
}

// Register runs the invitation-gated signup flow: validate the token,
// create the provider identity, then atomically consume the invitation and
// provision the UserRecord. Losing the consume race aborts provisioning
// and reports it; a UserRecord never exists without its consumed
// invitation.
func (m *SessionManager) Register(ctx context.Context, email, password, invitationToken string) (domainauth.UserRecord, error) {
	if m.invitations == nil || m.registration == nil {
		return domainauth.UserRecord{}, errors.New("registration is not configured")
	}

	result, err := m.invitations.Validate(ctx, invitationToken)
	if err != nil {
		return domainauth.UserRecord{}, fmt.Errorf("validate invitation: %w", err)
	}
	if !result.Valid() {
		return domainauth.UserRecord{}, invalidInvitation(result.Reason.Message())
	}
	if !strings.EqualFold(result.Invitation.Email, strings.TrimSpace(email)) {
		return domainauth.UserRecord{}, invalidInvitation("This invitation was issued for a different e-mail address.")
	}

	identity, _, err := m.provider.SignUp(ctx, email, password)
	if err != nil {
		if errors.Is(err, ports.ErrProviderRejected) {
			return domainauth.UserRecord{}, providerRejected(err)
		}
		return domainauth.UserRecord{}, providerUnavailable(err)
	}

	window := domainauth.DefaultDesignerWindow
	user := domainauth.UserRecord{
		ID:           identity.ID,
		Email:        identity.Email,
		Role:         domainauth.RoleDesigner,
		AccessWindow: &window,
	}

	won, err := m.registration.ConsumeAndProvision(ctx, result.Invitation.ID, user)
	if err != nil {
		return domainauth.UserRecord{}, fmt.Errorf("provision user: %w", err)
	}
	if !won {
		// Another registration consumed the invitation between validation
		// and here. Roll the provider session back; the orphaned provider
		// identity is flagged for operator attention.
		if serr := m.provider.SignOut(ctx); serr != nil {
			m.logger.ErrorContext(ctx, "rollback sign-out failed after invitation race",
				"identity_id", identity.ID, "error", serr)
		}
		m.logger.WarnContext(ctx, "provider identity left unprovisioned after invitation race",
			"identity_id", identity.ID, "invitation_id", result.Invitation.ID)
		return domainauth.UserRecord{}, invitationRace()
	}

	m.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID, "invitation_id", result.Invitation.ID, "role", user.Role)
	return user, nil
}

// Logout delegates to the provider; the stream publishes Anonymous.
func (m *SessionManager) Logout(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		return providerUnavailable(err)
	}
	return nil
}

func (m *SessionManager) handleEvent(ctx context.Context, ev ports.SessionEvent) {
	switch ev.Type {
	case ports.SessionSignedOut:
		m.publish(domainauth.Anonymous())
	case ports.SessionSignedIn, ports.SessionRefreshed:
		m.publish(m.stateFor(ctx, ev.Session))
	default:
		m.logger.WarnContext(ctx, "ignoring unknown session event", "type", ev.Type)
	}
}

// stateFor enriches a provider session with the application role. A
// resolution failure degrades to Unprovisioned: the identity is known but
// no role is guessed.
func (m *SessionManager) stateFor(ctx context.Context, sess *domainauth.ProviderSession) domainauth.State {
	if sess == nil {
		return domainauth.Anonymous()
	}
	user, err := m.roles.Resolve(ctx, sess.Identity.ID)
	if err != nil {
		m.logger.ErrorContext(ctx, "role resolution failed", "identity_id", sess.Identity.ID, "error", err)
		return domainauth.Unprovisioned(sess.Identity)
	}
	if user == nil {
		return domainauth.Unprovisioned(sess.Identity)
	}
	return domainauth.Authenticated(*user)
}

func (m *SessionManager) publish(state domainauth.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	for _, ch := range m.subs {
		select {
		case ch <- state:
		default:
			// Drop the stale value and replace it with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}
