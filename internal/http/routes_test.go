package httpx_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	httpx "github.com/atelierhq/atelier/internal/http"
	mocksauth "github.com/atelierhq/atelier/internal/mocks/auth"
	"github.com/atelierhq/atelier/internal/ports"
	"github.com/atelierhq/atelier/internal/service"
)

type apiFixture struct {
	provider    *mocksauth.FakeProvider
	users       *mocksauth.MemoryUserStore
	invitations *mocksauth.MemoryInvitationStore
	manager     *service.SessionManager
	now         time.Time
	handler     http.Handler
}

type fixtureOptions struct {
	// signedInAs seeds the provider with a session for this identity id.
	signedInAs string
	// hour sets the wall clock hour the authorizer sees.
	hour int
}

func newAPIFixture(t *testing.T, opts fixtureOptions) *apiFixture {
	t.Helper()

	hour := opts.hour
	if hour == 0 {
		hour = 12
	}
	now := time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
	clock := ports.ClockFunc(func() time.Time { return now })

	provider := mocksauth.NewFakeProvider()
	users := mocksauth.NewMemoryUserStore()
	invitations := mocksauth.NewMemoryInvitationStore()
	registration := mocksauth.NewMemoryRegistrationStore(invitations, users)

	if opts.signedInAs != "" {
		id := opts.signedInAs
		provider.CurrentSessionFunc = func(context.Context) (*domainauth.ProviderSession, error) {
			return mocksauth.Session(domainauth.Identity{ID: id, Email: id + "@example.com"}), nil
		}
	}

	invitationSvc := service.NewInvitationService(service.InvitationServiceOptions{
		Store: invitations,
		Clock: clock,
	})
	roleSvc := service.NewRoleService(service.RoleServiceOptions{Users: users})
	manager := service.NewSessionManager(service.SessionManagerOptions{
		Provider:     provider,
		Roles:        roleSvc,
		Invitations:  invitationSvc,
		Registration: registration,
	})
	t.Cleanup(func() { _ = manager.Close() })

	authorizer := service.NewAuthorizer(service.AuthorizerOptions{
		Sessions: manager,
		Clock:    clock,
	})

	handler := httpx.NewRouter(httpx.RouterServices{
		Sessions:    manager,
		Invitations: invitationSvc,
		Roles:       roleSvc,
		Authorizer:  authorizer,
	})

	return &apiFixture{
		provider:    provider,
		users:       users,
		invitations: invitations,
		manager:     manager,
		now:         now,
		handler:     handler,
	}
}

func (fx *apiFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, fx.manager.Start(context.Background()))
}

func (fx *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func seedAdmin(fx *apiFixture, id string) {
	fx.users.Seed(domainauth.UserRecord{
		ID:    id,
		Email: id + "@example.com",
		Role:  domainauth.RoleAdmin,
	})
}

func seedDesigner(fx *apiFixture, id string) {
	window := domainauth.DefaultDesignerWindow
	fx.users.Seed(domainauth.UserRecord{
		ID:           id,
		Email:        id + "@example.com",
		Role:         domainauth.RoleDesigner,
		AccessWindow: &window,
	})
}

func seedInvitation(fx *apiFixture, token, email string) domainauth.Invitation {
	inv := domainauth.Invitation{
		ID:        "inv-" + token,
		Email:     email,
		Token:     token,
		Status:    domainauth.InvitationPending,
		CreatedAt: fx.now,
		ExpiresAt: fx.now.Add(24 * time.Hour),
	}
	fx.invitations.Seed(inv)
	return inv
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t, fixtureOptions{})
	rec := fx.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuthMe(t *testing.T) {
	t.Run("before start reports loading", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})

		rec := fx.do(t, http.MethodGet, "/api/auth/me", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "initializing", body["phase"])
		assert.Equal(t, true, body["loading"])
	})

	t.Run("anonymous after start", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		fx.start(t)

		body := decodeBody(t, fx.do(t, http.MethodGet, "/api/auth/me", ""))
		assert.Equal(t, "anonymous", body["phase"])
		assert.Equal(t, false, body["loading"])
	})

	t.Run("authenticated admin", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "a1"})
		seedAdmin(fx, "a1")
		fx.start(t)

		body := decodeBody(t, fx.do(t, http.MethodGet, "/api/auth/me", ""))
		assert.Equal(t, "authenticated", body["phase"])
		assert.Equal(t, true, body["is_admin"])
		assert.Equal(t, true, body["can_access_now"])
	})

	t.Run("unprovisioned identity", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "stranger"})
		fx.start(t)

		body := decodeBody(t, fx.do(t, http.MethodGet, "/api/auth/me", ""))
		assert.Equal(t, "authenticated_unprovisioned", body["phase"])
		assert.Nil(t, body["user"])
		assert.Equal(t, false, body["can_access_now"])
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		seedDesigner(fx, "d1")
		fx.provider.SignInFunc = func(_ context.Context, email, _ string) (*domainauth.ProviderSession, error) {
			return mocksauth.Session(domainauth.Identity{ID: "d1", Email: email}), nil
		}
		fx.start(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/login",
			`{"email":"d1@example.com","password":"pw"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "authenticated", body["phase"])
	})

	t.Run("bad credentials yield 401", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		fx.start(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/login",
			`{"email":"d1@example.com","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "provider_rejected", decodeBody(t, rec)["error"])
	})

	t.Run("missing fields yield 400", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		fx.start(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/login", `{"email":"d1@example.com"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegisterEndpoint(t *testing.T) {
	t.Run("success returns the new designer", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		seedInvitation(fx, "tok-1", "new@example.com")
		fx.start(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"new@example.com","password":"pw","invitation_token":"tok-1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "designer", user["role"])
	})

	t.Run("used invitation yields 400", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		inv := seedInvitation(fx, "tok-1", "new@example.com")
		inv.Status = domainauth.InvitationAccepted
		fx.invitations.Seed(inv)
		fx.start(t)

		rec := fx.do(t, http.MethodPost, "/api/auth/register",
			`{"email":"new@example.com","password":"pw","invitation_token":"tok-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_invitation", decodeBody(t, rec)["error"])
	})
}

func TestValidateEndpoint(t *testing.T) {
	t.Run("valid token reveals the invited email", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		seedInvitation(fx, "tok-1", "new@example.com")
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/invitations/validate/tok-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "new@example.com", body["email"])
	})

	t.Run("unknown token is a 200 with a reason", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/invitations/validate/nope", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, "not_found", body["reason"])
	})
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("anonymous gets 401", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/invitations", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("designer gets 403", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "d1"})
		seedDesigner(fx, "d1")
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/invitations", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin manages invitations", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "a1"})
		seedAdmin(fx, "a1")
		fx.start(t)

		rec := fx.do(t, http.MethodPost, "/api/invitations", `{"email":"new@example.com"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decodeBody(t, rec)["invitation"].(map[string]any)
		id := created["id"].(string)

		rec = fx.do(t, http.MethodGet, "/api/invitations", "")
		require.Equal(t, http.StatusOK, rec.Code)
		invs := decodeBody(t, rec)["invitations"].([]any)
		assert.Len(t, invs, 1)

		rec = fx.do(t, http.MethodPost, "/api/invitations/"+id+"/resend", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = fx.do(t, http.MethodDelete, "/api/invitations/"+id, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = fx.do(t, http.MethodDelete, "/api/invitations/"+id, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("admin manages users", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "a1"})
		seedAdmin(fx, "a1")
		seedDesigner(fx, "d1")
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/admin/users", "")
		require.Equal(t, http.StatusOK, rec.Code)
		users := decodeBody(t, rec)["users"].([]any)
		assert.Len(t, users, 2)

		rec = fx.do(t, http.MethodPut, "/api/admin/users/d1/role", `{"role":"admin"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = fx.do(t, http.MethodPut, "/api/admin/users/a1/role", `{"role":"designer"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = fx.do(t, http.MethodPut, "/api/admin/users/d1/window", `{"allowed_hours":"10-14"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = fx.do(t, http.MethodPut, "/api/admin/users/d1/window", `{"allowed_hours":"18-9"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = fx.do(t, http.MethodPut, "/api/admin/users/d1/window", `{"allowed_hours":null}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestWorkspaceGate(t *testing.T) {
	t.Run("designer inside the window", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "d1", hour: 12})
		seedDesigner(fx, "d1")
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/workspace", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("designer outside the window", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "d1", hour: 20})
		seedDesigner(fx, "d1")
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/workspace", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "outside_access_window", decodeBody(t, rec)["error"])
	})

	t.Run("admin at any hour", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "a1", hour: 3})
		seedAdmin(fx, "a1")
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/workspace", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("still initializing answers 503", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{})

		rec := fx.do(t, http.MethodGet, "/api/workspace", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "initializing", decodeBody(t, rec)["error"])
	})

	t.Run("unprovisioned identity answers 403", func(t *testing.T) {
		fx := newAPIFixture(t, fixtureOptions{signedInAs: "stranger"})
		fx.start(t)

		rec := fx.do(t, http.MethodGet, "/api/workspace", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "unprovisioned", decodeBody(t, rec)["error"])
	})
}
