package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	mocksauth "github.com/atelierhq/atelier/internal/mocks/auth"
	"github.com/atelierhq/atelier/internal/ports"
	"github.com/atelierhq/atelier/internal/service"
)

type sessionFixture struct {
	provider     *mocksauth.FakeProvider
	users        *mocksauth.MemoryUserStore
	invitations  *mocksauth.MemoryInvitationStore
	registration *mocksauth.MemoryRegistrationStore
	manager      *service.SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	provider := mocksauth.NewFakeProvider()
	users := mocksauth.NewMemoryUserStore()
	invitations := mocksauth.NewMemoryInvitationStore()
	registration := mocksauth.NewMemoryRegistrationStore(invitations, users)

	manager := service.NewSessionManager(service.SessionManagerOptions{
		Provider: provider,
		Roles:    service.NewRoleService(service.RoleServiceOptions{Users: users}),
		Invitations: service.NewInvitationService(service.InvitationServiceOptions{
			Store: invitations,
		}),
		Registration: registration,
	})
	t.Cleanup(func() { _ = manager.Close() })

	return &sessionFixture{
		provider:     provider,
		users:        users,
		invitations:  invitations,
		registration: registration,
		manager:      manager,
	}
}

func waitForPhase(t *testing.T, m *service.SessionManager, phase domainauth.Phase) domainauth.State {
	t.Helper()
	var state domainauth.State
	require.Eventually(t, func() bool {
		state = m.Current()
		return state.Phase == phase
	}, time.Second, 5*time.Millisecond, "waiting for phase %s, have %s", phase, m.Current().Phase)
	return state
}

func TestSessionManagerStart(t *testing.T) {
	t.Run("begins initializing", func(t *testing.T) {
		fx := newSessionFixture(t)
		state := fx.manager.Current()
		assert.Equal(t, domainauth.PhaseInitializing, state.Phase)
		assert.True(t, state.Loading())
	})

	t.Run("no provider session settles anonymous", func(t *testing.T) {
		fx := newSessionFixture(t)
		require.NoError(t, fx.manager.Start(context.Background()))

		state := fx.manager.Current()
		assert.Equal(t, domainauth.PhaseAnonymous, state.Phase)
		assert.False(t, state.Loading())
	})

	t.Run("provisioned session settles authenticated", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.users.Seed(designerUser("u1"))
		fx.provider.CurrentSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
			return mocksauth.Session(domainauth.Identity{ID: "u1", Email: "u1@example.com"}), nil
		}

		require.NoError(t, fx.manager.Start(context.Background()))

		state := fx.manager.Current()
		require.Equal(t, domainauth.PhaseAuthenticated, state.Phase)
		require.NotNil(t, state.User)
		assert.Equal(t, domainauth.RoleDesigner, state.User.Role)
	})

	t.Run("unknown identity settles unprovisioned, never a default role", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.provider.CurrentSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
			return mocksauth.Session(domainauth.Identity{ID: "stranger", Email: "s@example.com"}), nil
		}

		require.NoError(t, fx.manager.Start(context.Background()))

		state := fx.manager.Current()
		assert.Equal(t, domainauth.PhaseUnprovisioned, state.Phase)
		assert.Nil(t, state.User)
		require.NotNil(t, state.Identity)
		assert.Equal(t, "stranger", state.Identity.ID)
	})

	t.Run("provider read failure keeps initializing", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.provider.CurrentSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
			return nil, errors.New("connection refused")
		}

		err := fx.manager.Start(context.Background())
		require.Error(t, err)
		assert.Equal(t, domainauth.PhaseInitializing, fx.manager.Current().Phase)
	})

	t.Run("second start is rejected", func(t *testing.T) {
		fx := newSessionFixture(t)
		require.NoError(t, fx.manager.Start(context.Background()))
		assert.Error(t, fx.manager.Start(context.Background()))
	})
}

func TestSessionManagerEvents(t *testing.T) {
	t.Run("signed-in event publishes authenticated", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.users.Seed(designerUser("u1"))
		require.NoError(t, fx.manager.Start(context.Background()))
		waitForPhase(t, fx.manager, domainauth.PhaseAnonymous)

		fx.provider.Emit(ports.SessionEvent{
			Type:    ports.SessionSignedIn,
			Session: mocksauth.Session(domainauth.Identity{ID: "u1", Email: "u1@example.com"}),
		})

		state := waitForPhase(t, fx.manager, domainauth.PhaseAuthenticated)
		assert.Equal(t, "u1", state.User.ID)
	})

	t.Run("signed-out event publishes anonymous", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.users.Seed(designerUser("u1"))
		fx.provider.CurrentSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
			return mocksauth.Session(domainauth.Identity{ID: "u1", Email: "u1@example.com"}), nil
		}
		require.NoError(t, fx.manager.Start(context.Background()))
		waitForPhase(t, fx.manager, domainauth.PhaseAuthenticated)

		fx.provider.Emit(ports.SessionEvent{Type: ports.SessionSignedOut})

		state := waitForPhase(t, fx.manager, domainauth.PhaseAnonymous)
		assert.Nil(t, state.User)
		assert.False(t, state.Loading())
	})

	t.Run("subscribers see the latest state", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.users.Seed(designerUser("u1"))
		require.NoError(t, fx.manager.Start(context.Background()))

		ch, cancel := fx.manager.Subscribe()
		defer cancel()

		fx.provider.Emit(ports.SessionEvent{
			Type:    ports.SessionSignedIn,
			Session: mocksauth.Session(domainauth.Identity{ID: "u1", Email: "u1@example.com"}),
		})

		select {
		case state := <-ch:
			assert.Equal(t, domainauth.PhaseAuthenticated, state.Phase)
		case <-time.After(time.Second):
			t.Fatal("no state published to subscriber")
		}
	})
}

func TestSessionManagerLogin(t *testing.T) {
	t.Run("success returns enriched state", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.users.Seed(designerUser("u1"))
		fx.provider.SignInFunc = func(_ context.Context, email, _ string) (*domainauth.ProviderSession, error) {
			return mocksauth.Session(domainauth.Identity{ID: "u1", Email: email}), nil
		}
		require.NoError(t, fx.manager.Start(context.Background()))

		state, err := fx.manager.Login(context.Background(), "u1@example.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, domainauth.PhaseAuthenticated, state.Phase)
	})

	t.Run("bad credentials map to provider rejection", func(t *testing.T) {
		fx := newSessionFixture(t)
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Login(context.Background(), "u1@example.com", "wrong")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthProviderRejected, authErr.Code)
	})

	t.Run("transport failure maps to provider unavailable", func(t *testing.T) {
		fx := newSessionFixture(t)
		fx.provider.SignInFunc = func(context.Context, string, string) (*domainauth.ProviderSession, error) {
			return nil, errors.New("dial tcp: connection refused")
		}
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Login(context.Background(), "u1@example.com", "pw")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthProviderUnavailable, authErr.Code)
	})
}

func TestSessionManagerRegister(t *testing.T) {
	now := time.Now()

	seedInvitation := func(fx *sessionFixture, email string) domainauth.Invitation {
		inv := domainauth.Invitation{
			ID:        "inv-1",
			Email:     email,
			Token:     "tok-1",
			Status:    domainauth.InvitationPending,
			CreatedAt: now,
			ExpiresAt: now.Add(24 * time.Hour),
		}
		fx.invitations.Seed(inv)
		return inv
	}

	t.Run("happy path provisions a designer", func(t *testing.T) {
		fx := newSessionFixture(t)
		seedInvitation(fx, "new@example.com")
		require.NoError(t, fx.manager.Start(context.Background()))

		user, err := fx.manager.Register(context.Background(), "new@example.com", "pw", "tok-1")
		require.NoError(t, err)
		assert.Equal(t, domainauth.RoleDesigner, user.Role)
		require.NotNil(t, user.AccessWindow)
		assert.Equal(t, domainauth.DefaultDesignerWindow, *user.AccessWindow)

		inv, err := fx.invitations.GetByID(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, domainauth.InvitationAccepted, inv.Status)

		stored, err := fx.users.Get(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", stored.Email)
	})

	t.Run("unknown token", func(t *testing.T) {
		fx := newSessionFixture(t)
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Register(context.Background(), "new@example.com", "pw", "nope")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthInvalidInvitation, authErr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		fx := newSessionFixture(t)
		inv := seedInvitation(fx, "new@example.com")
		inv.ExpiresAt = now.Add(-time.Hour)
		fx.invitations.Seed(inv)
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Register(context.Background(), "new@example.com", "pw", "tok-1")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthInvalidInvitation, authErr.Code)
	})

	t.Run("email must match the invitation", func(t *testing.T) {
		fx := newSessionFixture(t)
		seedInvitation(fx, "invited@example.com")
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Register(context.Background(), "other@example.com", "pw", "tok-1")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthInvalidInvitation, authErr.Code)
	})

	t.Run("email comparison is case-insensitive", func(t *testing.T) {
		fx := newSessionFixture(t)
		seedInvitation(fx, "invited@example.com")
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Register(context.Background(), "Invited@Example.COM", "pw", "tok-1")
		require.NoError(t, err)
	})

	t.Run("losing the invitation race rolls the provider back", func(t *testing.T) {
		fx := newSessionFixture(t)
		seedInvitation(fx, "new@example.com")
		require.NoError(t, fx.manager.Start(context.Background()))

		// The invitation is consumed between validation and provisioning.
		fx.provider.SignUpFunc = func(_ context.Context, email, _ string) (domainauth.Identity, *domainauth.ProviderSession, error) {
			_, err := fx.invitations.Consume(context.Background(), "inv-1")
			require.NoError(t, err)
			identity := domainauth.Identity{ID: "loser", Email: email}
			return identity, mocksauth.Session(identity), nil
		}

		_, err := fx.manager.Register(context.Background(), "new@example.com", "pw", "tok-1")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthInvitationRace, authErr.Code)

		// The loser must not be provisioned, and the provider session is
		// rolled back.
		_, err = fx.users.Get(context.Background(), "loser")
		assert.ErrorIs(t, err, ports.ErrUserNotFound)
		assert.Equal(t, 1, fx.provider.SignOutCalls())
	})

	t.Run("provider signup rejection", func(t *testing.T) {
		fx := newSessionFixture(t)
		seedInvitation(fx, "new@example.com")
		fx.provider.SignUpFunc = func(context.Context, string, string) (domainauth.Identity, *domainauth.ProviderSession, error) {
			return domainauth.Identity{}, nil, errors.New("dial tcp: connection refused")
		}
		require.NoError(t, fx.manager.Start(context.Background()))

		_, err := fx.manager.Register(context.Background(), "new@example.com", "pw", "tok-1")
		var authErr *service.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, service.AuthProviderUnavailable, authErr.Code)

		// The invitation survives for a retry.
		inv, err := fx.invitations.GetByID(context.Background(), "inv-1")
		require.NoError(t, err)
		assert.Equal(t, domainauth.InvitationPending, inv.Status)
	})
}

func TestSessionManagerLogout(t *testing.T) {
	fx := newSessionFixture(t)
	fx.users.Seed(designerUser("u1"))
	fx.provider.CurrentSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
		return mocksauth.Session(domainauth.Identity{ID: "u1", Email: "u1@example.com"}), nil
	}
	require.NoError(t, fx.manager.Start(context.Background()))
	waitForPhase(t, fx.manager, domainauth.PhaseAuthenticated)

	require.NoError(t, fx.manager.Logout(context.Background()))

	state := waitForPhase(t, fx.manager, domainauth.PhaseAnonymous)
	assert.False(t, state.Loading())
	assert.Nil(t, state.User)
}
