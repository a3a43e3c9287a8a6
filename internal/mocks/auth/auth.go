package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider  = (*FakeProvider)(nil)
	_ ports.UserStore         = (*MemoryUserStore)(nil)
	_ ports.InvitationStore   = (*MemoryInvitationStore)(nil)
	_ ports.RegistrationStore = (*MemoryRegistrationStore)(nil)
	_ ports.TokenStore        = (*MemoryTokenStore)(nil)
)

// FakeProvider simulates an identity provider with scriptable outcomes and
// a real event channel so state-machine tests can drive transitions.
type FakeProvider struct {
	CurrentSessionFunc func(ctx context.Context) (*domainauth.ProviderSession, error)
	SignInFunc         func(ctx context.Context, email, password string) (*domainauth.ProviderSession, error)
	SignUpFunc         func(ctx context.Context, email, password string) (domainauth.Identity, *domainauth.ProviderSession, error)
	SignOutFunc        func(ctx context.Context) error

	mu       sync.Mutex
	events   chan ports.SessionEvent
	signOuts int
	closed   bool
}

// NewFakeProvider creates a FakeProvider whose default session is nil
// (nobody signed in).
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{events: make(chan ports.SessionEvent, 16)}
}

// Emit pushes an event into the stream, as the real provider would after a
// sign-in, refresh or sign-out.
func (p *FakeProvider) Emit(ev ports.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.events <- ev
}

// SignOutCalls reports how many times SignOut ran.
func (p *FakeProvider) SignOutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

func (p *FakeProvider) CurrentSession(ctx context.Context) (*domainauth.ProviderSession, error) {
	if p.CurrentSessionFunc != nil {
		return p.CurrentSessionFunc(ctx)
	}
	return nil, nil
}

func (p *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.ProviderSession, error) {
	if p.SignInFunc != nil {
		return p.SignInFunc(ctx, email, password)
	}
	return nil, fmt.Errorf("%w: no account for %s", ports.ErrProviderRejected, email)
}

func (p *FakeProvider) SignUp(ctx context.Context, email, password string) (domainauth.Identity, *domainauth.ProviderSession, error) {
	if p.SignUpFunc != nil {
		return p.SignUpFunc(ctx, email, password)
	}
	identity := domainauth.Identity{ID: "fake-" + email, Email: email}
	return identity, Session(identity), nil
}

func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signOuts++
	p.mu.Unlock()
	if p.SignOutFunc != nil {
		return p.SignOutFunc(ctx)
	}
	p.Emit(ports.SessionEvent{Type: ports.SessionSignedOut})
	return nil
}

func (p *FakeProvider) Events() <-chan ports.SessionEvent { return p.events }

func (p *FakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

// Session builds a ProviderSession for an identity with a one-hour expiry.
func Session(identity domainauth.Identity) *domainauth.ProviderSession {
	return &domainauth.ProviderSession{
		AccessToken:  "access-" + identity.ID,
		RefreshToken: "refresh-" + identity.ID,
		Identity:     identity,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// MemoryUserStore is an in-memory user store for unit tests.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]domainauth.UserRecord
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]domainauth.UserRecord)}
}

// Seed inserts users without error handling, for test setup.
func (m *MemoryUserStore) Seed(users ...domainauth.UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		m.users[u.ID] = u
	}
}

func (m *MemoryUserStore) Get(_ context.Context, id string) (domainauth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domainauth.UserRecord{}, ports.ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUserStore) Insert(_ context.Context, user domainauth.UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryUserStore) List(_ context.Context) ([]domainauth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.UserRecord, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *MemoryUserStore) UpdateRole(_ context.Context, id string, role domainauth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	u.Role = role
	m.users[id] = u
	return nil
}

func (m *MemoryUserStore) UpdateAccessWindow(_ context.Context, id string, window *domainauth.TimeWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	u.AccessWindow = window
	m.users[id] = u
	return nil
}

// MemoryInvitationStore is an in-memory invitation store with the same
// conditional-write semantics as the SQL implementation.
type MemoryInvitationStore struct {
	mu          sync.Mutex
	invitations map[string]domainauth.Invitation
}

// NewMemoryInvitationStore creates an empty in-memory invitation store.
func NewMemoryInvitationStore() *MemoryInvitationStore {
	return &MemoryInvitationStore{invitations: make(map[string]domainauth.Invitation)}
}

// Seed inserts invitations without error handling, for test setup.
func (m *MemoryInvitationStore) Seed(invs ...domainauth.Invitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range invs {
		m.invitations[inv.ID] = inv
	}
}

func (m *MemoryInvitationStore) Insert(_ context.Context, inv domainauth.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations[inv.ID] = inv
	return nil
}

func (m *MemoryInvitationStore) GetByToken(_ context.Context, token string) (domainauth.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return domainauth.Invitation{}, ports.ErrInvitationNotFound
}

func (m *MemoryInvitationStore) GetByID(_ context.Context, id string) (domainauth.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok {
		return domainauth.Invitation{}, ports.ErrInvitationNotFound
	}
	return inv, nil
}

func (m *MemoryInvitationStore) List(_ context.Context) ([]domainauth.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.Invitation, 0, len(m.invitations))
	for _, inv := range m.invitations {
		out = append(out, inv)
	}
	return out, nil
}

func (m *MemoryInvitationStore) Consume(_ context.Context, id string) (bool, error) {
	return m.transition(id, domainauth.InvitationAccepted), nil
}

func (m *MemoryInvitationStore) Cancel(_ context.Context, id string) (bool, error) {
	return m.transition(id, domainauth.InvitationCancelled), nil
}

func (m *MemoryInvitationStore) Refresh(_ context.Context, id, token string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok || inv.Status != domainauth.InvitationPending {
		return false, nil
	}
	inv.Token = token
	inv.ExpiresAt = expiresAt
	m.invitations[id] = inv
	return true, nil
}

// transition applies pending → target under the lock, mirroring the SQL
// conditional UPDATE.
func (m *MemoryInvitationStore) transition(id string, target domainauth.InvitationStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[id]
	if !ok || inv.Status != domainauth.InvitationPending {
		return false
	}
	inv.Status = target
	m.invitations[id] = inv
	return true
}

// MemoryRegistrationStore couples a MemoryInvitationStore and a
// MemoryUserStore behind the atomic consume-and-provision contract.
type MemoryRegistrationStore struct {
	Invitations *MemoryInvitationStore
	Users       *MemoryUserStore

	mu sync.Mutex
}

// NewMemoryRegistrationStore wires the two memory stores together.
func NewMemoryRegistrationStore(invs *MemoryInvitationStore, users *MemoryUserStore) *MemoryRegistrationStore {
	return &MemoryRegistrationStore{Invitations: invs, Users: users}
}

func (m *MemoryRegistrationStore) ConsumeAndProvision(ctx context.Context, invitationID string, user domainauth.UserRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	won, err := m.Invitations.Consume(ctx, invitationID)
	if err != nil || !won {
		return false, err
	}
	if err := m.Users.Insert(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// MemoryTokenStore is an in-memory token store; TTLs are recorded but not
// enforced.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string][]byte
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string][]byte)}
}

func (m *MemoryTokenStore) Save(_ context.Context, key string, token []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[key] = append([]byte(nil), token...)
	return nil
}

func (m *MemoryTokenStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[key]
	if !ok {
		return nil, ports.ErrTokenNotFound
	}
	return append([]byte(nil), token...), nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}
