package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/atelierhq/atelier/internal/data"
	"github.com/atelierhq/atelier/internal/ports"
	"github.com/atelierhq/atelier/internal/service"
)

// ServiceContainer holds the constructed application services.
type ServiceContainer struct {
	Provider    ports.IdentityProvider
	Sessions    *service.SessionManager
	Invitations *service.InvitationService
	Roles       *service.RoleService
	Authorizer  *service.Authorizer
}

// ServicesConfig contains dependencies for BuildServices.
type ServicesConfig struct {
	DB       *sql.DB
	Provider ports.IdentityProvider
	Logger   *slog.Logger
}

// BuildServices wires repositories and services together. The session
// manager is constructed but not started; call StartServices.
func BuildServices(cfg ServicesConfig) *ServiceContainer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	invitations := service.NewInvitationService(service.InvitationServiceOptions{
		Store:  data.NewInvitationRepo(cfg.DB),
		Logger: logger,
	})
	roles := service.NewRoleService(service.RoleServiceOptions{
		Users:  data.NewUserRepo(cfg.DB),
		Logger: logger,
	})
	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Provider:     cfg.Provider,
		Roles:        roles,
		Invitations:  invitations,
		Registration: data.NewRegistrationRepo(cfg.DB),
		Logger:       logger,
	})
	authorizer := service.NewAuthorizer(service.AuthorizerOptions{
		Sessions: sessions,
		Logger:   logger,
	})

	return &ServiceContainer{
		Provider:    cfg.Provider,
		Sessions:    sessions,
		Invitations: invitations,
		Roles:       roles,
		Authorizer:  authorizer,
	}
}

// StartServices performs the initial provider read and attaches the session
// manager to the provider event stream.
func StartServices(ctx context.Context, services *ServiceContainer) error {
	if err := services.Sessions.Start(ctx); err != nil {
		return fmt.Errorf("start session manager: %w", err)
	}
	return nil
}

// StopServices releases the provider subscription and drains the session
// manager event loop.
func StopServices(services *ServiceContainer, logger *slog.Logger) {
	if err := services.Sessions.Close(); err != nil && logger != nil {
		logger.Error("closing session manager failed", "error", err)
	}
}
