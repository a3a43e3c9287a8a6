package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/service"
)

type staticState struct{ state domainauth.State }

func (s staticState) Current() domainauth.State { return s.state }

func newAuthorizer(state domainauth.State, now time.Time) *service.Authorizer {
	return service.NewAuthorizer(service.AuthorizerOptions{
		Sessions: staticState{state: state},
		Clock:    fixedClock(now),
	})
}

func at(hour int) time.Time {
	return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
}

func TestAuthorizerSnapshot(t *testing.T) {
	t.Run("initializing is loading, nothing granted", func(t *testing.T) {
		snap := newAuthorizer(domainauth.Initializing(), at(12)).Snapshot()
		assert.True(t, snap.Loading)
		assert.False(t, snap.Authenticated)
		assert.False(t, snap.CanAccessNow)
	})

	t.Run("anonymous", func(t *testing.T) {
		snap := newAuthorizer(domainauth.Anonymous(), at(12)).Snapshot()
		assert.False(t, snap.Loading)
		assert.False(t, snap.Authenticated)
		assert.False(t, snap.CanAccessNow)
	})

	t.Run("designer inside the window", func(t *testing.T) {
		snap := newAuthorizer(domainauth.Authenticated(designerUser("d1")), at(12)).Snapshot()
		assert.True(t, snap.Authenticated)
		assert.False(t, snap.IsAdmin)
		assert.True(t, snap.CanAccessNow)
	})

	t.Run("designer outside the window", func(t *testing.T) {
		snap := newAuthorizer(domainauth.Authenticated(designerUser("d1")), at(20)).Snapshot()
		assert.True(t, snap.Authenticated)
		assert.False(t, snap.CanAccessNow)
	})

	t.Run("window boundaries are half-open", func(t *testing.T) {
		cases := map[int]bool{8: false, 9: true, 17: true, 18: false}
		for hour, want := range cases {
			auth := newAuthorizer(domainauth.Authenticated(designerUser("d1")), at(hour))
			assert.Equal(t, want, auth.CanAccessNow(), "hour %d", hour)
		}
	})

	t.Run("admin bypasses the window", func(t *testing.T) {
		snap := newAuthorizer(domainauth.Authenticated(adminUser("a1")), at(3)).Snapshot()
		assert.True(t, snap.IsAdmin)
		assert.True(t, snap.CanAccessNow)
	})

	t.Run("designer with no window is unrestricted", func(t *testing.T) {
		user := designerUser("d1")
		user.AccessWindow = nil
		snap := newAuthorizer(domainauth.Authenticated(user), at(3)).Snapshot()
		assert.True(t, snap.CanAccessNow)
	})

	t.Run("unprovisioned identity gets no access", func(t *testing.T) {
		identity := domainauth.Identity{ID: "stranger", Email: "s@example.com"}
		snap := newAuthorizer(domainauth.Unprovisioned(identity), at(12)).Snapshot()
		assert.True(t, snap.Authenticated)
		assert.Nil(t, snap.User)
		assert.False(t, snap.IsAdmin)
		assert.False(t, snap.CanAccessNow)
	})
}
