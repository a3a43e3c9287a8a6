package devauth

// Package devauth provides a config-driven, in-memory IdentityProvider for
// local development and tests. It keeps its accounts and current session in
// process memory and emits the same typed events a real provider would.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/ports"
)

// Config controls the dev provider. Seed accounts are optional.
type Config struct {
	// Accounts maps email → password for pre-seeded identities.
	Accounts map[string]string
	// SessionDuration defaults to 8h when zero.
	SessionDuration time.Duration
}

type account struct {
	id       string
	password string
}

// Provider implements ports.IdentityProvider in memory.
type Provider struct {
	mu       sync.Mutex
	accounts map[string]account
	current  *domainauth.ProviderSession
	duration time.Duration

	events    chan ports.SessionEvent
	closeOnce sync.Once
}

var _ ports.IdentityProvider = (*Provider)(nil)

// ErrInvalidCredentials is returned when the email/password pair does not
// match a known account.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ports.ErrProviderRejected)

// ErrAccountExists is returned by SignUp for an already-registered email.
var ErrAccountExists = fmt.Errorf("%w: account already exists", ports.ErrProviderRejected)

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) *Provider {
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	accounts := make(map[string]account, len(cfg.Accounts))
	for email, password := range cfg.Accounts {
		accounts[normalize(email)] = account{id: IdentityID(email), password: password}
	}
	return &Provider{
		accounts: accounts,
		duration: dur,
		// Buffered so emitting never blocks a caller while the manager is
		// between reads.
		events: make(chan ports.SessionEvent, 8),
	}
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// IdentityID derives the provider id for an email. Deterministic so rows
// provisioned by dev seeding keep matching the account across restarts.
func IdentityID(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+normalize(email))).String()
}

// CurrentSession returns the in-memory session, if any.
func (p *Provider) CurrentSession(_ context.Context) (*domainauth.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	sess := *p.current
	return &sess, nil
}

// Events returns the session-change stream.
func (p *Provider) Events() <-chan ports.SessionEvent { return p.events }

// SignInWithPassword checks the credential pair against the account map and
// establishes a session on success.
func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (*domainauth.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[normalize(email)]
	if !ok || acct.password != password {
		return nil, ErrInvalidCredentials
	}

	sess := domainauth.ProviderSession{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		Identity:     domainauth.Identity{ID: acct.id, Email: normalize(email)},
		ExpiresAt:    time.Now().Add(p.duration),
	}
	p.current = &sess
	p.emitLocked(ports.SessionEvent{Type: ports.SessionSignedIn, Session: &sess})

	out := sess
	return &out, nil
}

// SignUp registers a new account and signs it in immediately, the way a
// provider with e-mail confirmation disabled behaves.
func (p *Provider) SignUp(_ context.Context, email, password string) (domainauth.Identity, *domainauth.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := normalize(email)
	if _, exists := p.accounts[key]; exists {
		return domainauth.Identity{}, nil, ErrAccountExists
	}

	acct := account{id: IdentityID(key), password: password}
	p.accounts[key] = acct

	identity := domainauth.Identity{ID: acct.id, Email: key}
	sess := domainauth.ProviderSession{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		Identity:     identity,
		ExpiresAt:    time.Now().Add(p.duration),
	}
	p.current = &sess
	p.emitLocked(ports.SessionEvent{Type: ports.SessionSignedIn, Session: &sess})

	out := sess
	return identity, &out, nil
}

// SignOut drops the current session.
func (p *Provider) SignOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.emitLocked(ports.SessionEvent{Type: ports.SessionSignedOut})
	return nil
}

// Close ends the event stream.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		close(p.events)
		p.events = nil
	})
	return nil
}

func (p *Provider) emitLocked(ev ports.SessionEvent) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- ev:
	default:
		// Drop rather than block when no consumer is attached (tests that
		// drive the provider directly).
	}
}

// AccountID exposes the identity id for a seeded account (test helper).
func (p *Provider) AccountID(email string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[normalize(email)]
	return acct.id, ok
}
