package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
	mocksauth "github.com/atelierhq/atelier/internal/mocks/auth"
	"github.com/atelierhq/atelier/internal/ports"
	"github.com/atelierhq/atelier/internal/service"
)

func fixedClock(t time.Time) ports.Clock {
	return ports.ClockFunc(func() time.Time { return t })
}

func newInvitationService(store ports.InvitationStore, now time.Time) *service.InvitationService {
	return service.NewInvitationService(service.InvitationServiceOptions{
		Store: store,
		Clock: fixedClock(now),
	})
}

func pendingInvitation(token string, expiresAt time.Time) domainauth.Invitation {
	return domainauth.Invitation{
		ID:        "inv-" + token,
		Email:     "designer@example.com",
		Token:     token,
		Status:    domainauth.InvitationPending,
		CreatedAt: expiresAt.Add(-7 * 24 * time.Hour),
		ExpiresAt: expiresAt,
	}
}

func TestInvitationValidate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("pending and unexpired is valid", func(t *testing.T) {
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(pendingInvitation("tok-ok", now.Add(time.Hour)))
		svc := newInvitationService(store, now)

		res, err := svc.Validate(context.Background(), "tok-ok")
		require.NoError(t, err)
		assert.True(t, res.Valid())
		assert.Equal(t, "designer@example.com", res.Invitation.Email)
	})

	t.Run("unknown token", func(t *testing.T) {
		svc := newInvitationService(mocksauth.NewMemoryInvitationStore(), now)

		res, err := svc.Validate(context.Background(), "missing")
		require.NoError(t, err)
		assert.False(t, res.Valid())
		assert.Equal(t, domainauth.RejectNotFound, res.Reason)
	})

	t.Run("empty token", func(t *testing.T) {
		svc := newInvitationService(mocksauth.NewMemoryInvitationStore(), now)

		res, err := svc.Validate(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, domainauth.RejectNotFound, res.Reason)
	})

	t.Run("accepted token reads already used", func(t *testing.T) {
		inv := pendingInvitation("tok-used", now.Add(time.Hour))
		inv.Status = domainauth.InvitationAccepted
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(inv)
		svc := newInvitationService(store, now)

		res, err := svc.Validate(context.Background(), "tok-used")
		require.NoError(t, err)
		assert.Equal(t, domainauth.RejectAlreadyUsed, res.Reason)
	})

	t.Run("cancelled token", func(t *testing.T) {
		inv := pendingInvitation("tok-cancelled", now.Add(time.Hour))
		inv.Status = domainauth.InvitationCancelled
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(inv)
		svc := newInvitationService(store, now)

		res, err := svc.Validate(context.Background(), "tok-cancelled")
		require.NoError(t, err)
		assert.Equal(t, domainauth.RejectCancelled, res.Reason)
	})

	t.Run("expiry wins over status", func(t *testing.T) {
		for _, status := range []domainauth.InvitationStatus{
			domainauth.InvitationPending,
			domainauth.InvitationAccepted,
			domainauth.InvitationCancelled,
		} {
			inv := pendingInvitation("tok-"+string(status), now.Add(-time.Minute))
			inv.Status = status
			store := mocksauth.NewMemoryInvitationStore()
			store.Seed(inv)
			svc := newInvitationService(store, now)

			res, err := svc.Validate(context.Background(), inv.Token)
			require.NoError(t, err)
			assert.Equal(t, domainauth.RejectExpired, res.Reason, "status %s", status)
		}
	})

	t.Run("expiry is derived, not stored", func(t *testing.T) {
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(pendingInvitation("tok-derive", now.Add(time.Minute)))

		before := newInvitationService(store, now)
		res, err := before.Validate(context.Background(), "tok-derive")
		require.NoError(t, err)
		assert.True(t, res.Valid())

		after := newInvitationService(store, now.Add(2*time.Minute))
		res, err = after.Validate(context.Background(), "tok-derive")
		require.NoError(t, err)
		assert.Equal(t, domainauth.RejectExpired, res.Reason)

		// The stored row never changed; only the clock moved.
		stored, err := store.GetByID(context.Background(), "inv-tok-derive")
		require.NoError(t, err)
		assert.Equal(t, domainauth.InvitationPending, stored.Status)
	})
}

func TestInvitationConsume(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("consume wins once", func(t *testing.T) {
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(pendingInvitation("tok", now.Add(time.Hour)))
		svc := newInvitationService(store, now)

		require.NoError(t, svc.Consume(context.Background(), "inv-tok"))

		err := svc.Consume(context.Background(), "inv-tok")
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("concurrent consumers yield exactly one winner", func(t *testing.T) {
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(pendingInvitation("tok-race", now.Add(time.Hour)))
		svc := newInvitationService(store, now)

		const attempts = 16
		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- svc.Consume(context.Background(), "inv-tok-race")
			}()
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
			} else {
				assert.True(t, apperrors.IsConflict(err))
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func TestInvitationCreate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("defaults to seven days", func(t *testing.T) {
		store := mocksauth.NewMemoryInvitationStore()
		svc := newInvitationService(store, now)

		inv, err := svc.Create(context.Background(), service.CreateInvitationInput{Email: "new@example.com"})
		require.NoError(t, err)
		assert.Equal(t, domainauth.InvitationPending, inv.Status)
		assert.Equal(t, now.Add(7*24*time.Hour), inv.ExpiresAt)
		assert.NotEmpty(t, inv.Token)
	})

	t.Run("explicit lifetime", func(t *testing.T) {
		svc := newInvitationService(mocksauth.NewMemoryInvitationStore(), now)

		inv, err := svc.Create(context.Background(), service.CreateInvitationInput{
			Email: "new@example.com",
			TTL:   48 * time.Hour,
		})
		require.NoError(t, err)
		assert.Equal(t, now.Add(48*time.Hour), inv.ExpiresAt)
	})

	t.Run("rejects empty email", func(t *testing.T) {
		svc := newInvitationService(mocksauth.NewMemoryInvitationStore(), now)

		_, err := svc.Create(context.Background(), service.CreateInvitationInput{})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestInvitationCancelAndResend(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("cancel pending", func(t *testing.T) {
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(pendingInvitation("tok", now.Add(time.Hour)))
		svc := newInvitationService(store, now)

		require.NoError(t, svc.Cancel(context.Background(), "inv-tok"))

		inv, err := store.GetByID(context.Background(), "inv-tok")
		require.NoError(t, err)
		assert.Equal(t, domainauth.InvitationCancelled, inv.Status)
	})

	t.Run("cancel unknown id", func(t *testing.T) {
		svc := newInvitationService(mocksauth.NewMemoryInvitationStore(), now)

		err := svc.Cancel(context.Background(), "nope")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("cancel consumed invitation conflicts", func(t *testing.T) {
		inv := pendingInvitation("tok", now.Add(time.Hour))
		inv.Status = domainauth.InvitationAccepted
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(inv)
		svc := newInvitationService(store, now)

		err := svc.Cancel(context.Background(), inv.ID)
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("resend rotates token and extends expiry", func(t *testing.T) {
		orig := pendingInvitation("tok-old", now.Add(time.Hour))
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(orig)
		svc := newInvitationService(store, now)

		inv, err := svc.Resend(context.Background(), orig.ID)
		require.NoError(t, err)
		assert.NotEqual(t, orig.Token, inv.Token)
		assert.Equal(t, now.Add(7*24*time.Hour), inv.ExpiresAt)
		assert.Equal(t, domainauth.InvitationPending, inv.Status)
	})

	t.Run("resend cancelled invitation conflicts", func(t *testing.T) {
		inv := pendingInvitation("tok", now.Add(time.Hour))
		inv.Status = domainauth.InvitationCancelled
		store := mocksauth.NewMemoryInvitationStore()
		store.Seed(inv)
		svc := newInvitationService(store, now)

		_, err := svc.Resend(context.Background(), inv.ID)
		assert.True(t, apperrors.IsConflict(err))
	})
}
