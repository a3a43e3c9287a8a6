package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
	"github.com/atelierhq/atelier/internal/ports"
)

// RoleServiceOptions groups dependencies for RoleService.
type RoleServiceOptions struct {
	Users  ports.UserStore
	Logger *slog.Logger
}

// RoleService resolves identities to UserRecords and carries the admin
// mutations on roles and access windows.
type RoleService struct {
	users  ports.UserStore
	logger *slog.Logger

	// group collapses concurrent resolutions of the same identity: session
	// events can arrive in bursts (sign-in immediately followed by a token
	// refresh) and one lookup answers all of them.
	group singleflight.Group
}

// NewRoleService constructs a RoleService.
func NewRoleService(opts RoleServiceOptions) *RoleService {
	if opts.Users == nil {
		panic("role service requires a user store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{users: opts.Users, logger: logger}
}

// Resolve looks up the UserRecord for an identity. A missing record is a
// legitimate outcome (authenticated but never provisioned) and returns
// (nil, nil), not an error.
func (s *RoleService) Resolve(ctx context.Context, identityID string) (*domainauth.UserRecord, error) {
	if identityID == "" {
		return nil, errors.New("identity id is required")
	}

	v, err, _ := s.group.Do(identityID, func() (any, error) {
		user, err := s.users.Get(ctx, identityID)
		if err != nil {
			if errors.Is(err, ports.ErrUserNotFound) {
				return (*domainauth.UserRecord)(nil), nil
			}
			return nil, err
		}
		return &user, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve role for %s: %w", identityID, err)
	}
	return v.(*domainauth.UserRecord), nil
}

// ListUsers returns all provisioned users.
func (s *RoleService) ListUsers(ctx context.Context) ([]domainauth.UserRecord, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ChangeRole sets another user's role. Only admins may do this, and never
// on themselves: role changes to one's own record via this path are how
// privilege-escalation bugs are born.
func (s *RoleService) ChangeRole(ctx context.Context, actor domainauth.UserRecord, targetID string, role domainauth.Role) error {
	if actor.Role != domainauth.RoleAdmin {
		return apperrors.Forbidden("only admins can change roles")
	}
	if actor.ID == targetID {
		return apperrors.Forbidden("admins cannot change their own role")
	}
	if !role.IsValid() {
		return apperrors.ValidationField("role", "role must be admin or designer")
	}

	if err := s.users.UpdateRole(ctx, targetID, role); err != nil {
		if errors.Is(err, ports.ErrUserNotFound) {
			return apperrors.NotFound("user not found")
		}
		return fmt.Errorf("update role: %w", err)
	}

	s.logger.InfoContext(ctx, "role changed", "actor_id", actor.ID, "target_id", targetID, "role", role)
	return nil
}

// ChangeAccessWindow sets another user's access window; nil clears it.
// Admin-only, same self-edit restriction as ChangeRole.
func (s *RoleService) ChangeAccessWindow(ctx context.Context, actor domainauth.UserRecord, targetID string, window *domainauth.TimeWindow) error {
	if actor.Role != domainauth.RoleAdmin {
		return apperrors.Forbidden("only admins can change access windows")
	}

	if err := s.users.UpdateAccessWindow(ctx, targetID, window); err != nil {
		if errors.Is(err, ports.ErrUserNotFound) {
			return apperrors.NotFound("user not found")
		}
		return fmt.Errorf("update access window: %w", err)
	}

	s.logger.InfoContext(ctx, "access window changed", "actor_id", actor.ID, "target_id", targetID)
	return nil
}
