// Package devseed provisions local development data: user records matching
// the dev auth accounts and a pending invitation to exercise the
// registration flow. Seeding is idempotent; existing rows are left alone.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atelierhq/atelier/internal/adapters/devauth"
	"github.com/atelierhq/atelier/internal/data"
	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
	"github.com/atelierhq/atelier/internal/ports"
	"github.com/atelierhq/atelier/internal/service"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	users       ports.UserStore
	invitations *service.InvitationService
}

// NewServices constructs the required services for seeding using the
// provided DB.
func NewServices(db *sql.DB, logger *slog.Logger) Services {
	return Services{
		users: data.NewUserRepo(db),
		invitations: service.NewInvitationService(service.InvitationServiceOptions{
			Store:  data.NewInvitationRepo(db),
			Logger: logger,
		}),
	}
}

// seedInvitationEmail gets a pending invitation so the registration flow can
// be exercised against the dev provider without touching the admin API.
const seedInvitationEmail = "invited@example.com"

// Run seeds user records for the dev auth accounts and ensures a pending
// invitation exists. The first account becomes the admin; the rest are
// designers with the default access window.
func Run(ctx context.Context, svcs Services, accounts []string, logger *slog.Logger) error {
	failures := seedUsers(ctx, svcs.users, accounts, logger)
	if err := seedInvitation(ctx, svcs.invitations, logger); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to seed invitation", "error", err)
		}
		failures++
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedUsers(ctx context.Context, users ports.UserStore, accounts []string, logger *slog.Logger) int {
	failures := 0
	for i, entry := range accounts {
		email, _, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}

		role := domainauth.RoleDesigner
		if i == 0 {
			role = domainauth.RoleAdmin
		}

		created, err := seedUser(ctx, users, email, role)
		if err != nil {
			if logger != nil {
				logger.ErrorContext(ctx, "failed to seed user", "email", email, "error", err)
			}
			failures++
			continue
		}
		if logger != nil {
			msg := "user already provisioned"
			if created {
				msg = "provisioned dev user"
			}
			logger.InfoContext(ctx, msg, "email", email, "role", role)
		}
	}
	return failures
}

func seedUser(ctx context.Context, users ports.UserStore, email string, role domainauth.Role) (bool, error) {
	id := devauth.IdentityID(email)

	_, err := users.Get(ctx, id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ports.ErrUserNotFound) {
		return false, err
	}

	user := domainauth.UserRecord{ID: id, Email: strings.ToLower(strings.TrimSpace(email)), Role: role}
	if role == domainauth.RoleDesigner {
		window := domainauth.DefaultDesignerWindow
		user.AccessWindow = &window
	}

	if err := users.Insert(ctx, user); err != nil {
		if apperrors.IsConflict(err) {
			// Another process seeded it first.
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func seedInvitation(ctx context.Context, svc *service.InvitationService, logger *slog.Logger) error {
	existing, err := svc.List(ctx)
	if err != nil {
		return fmt.Errorf("list invitations: %w", err)
	}
	for _, inv := range existing {
		if inv.Email == seedInvitationEmail && inv.Status == domainauth.InvitationPending {
			if logger != nil {
				logger.InfoContext(ctx, "pending dev invitation exists", "email", inv.Email, "token", inv.Token)
			}
			return nil
		}
	}

	inv, err := svc.Create(ctx, service.CreateInvitationInput{Email: seedInvitationEmail})
	if err != nil {
		return err
	}
	if logger != nil {
		logger.InfoContext(ctx, "seeded dev invitation", "email", inv.Email, "token", inv.Token)
	}
	return nil
}
