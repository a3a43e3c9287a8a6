package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	apperrors "github.com/atelierhq/atelier/internal/errors"
	"github.com/atelierhq/atelier/internal/ports"
)

// DefaultInvitationTTL is applied when an admin creates an invitation
// without an explicit lifetime.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InvitationServiceOptions groups dependencies for InvitationService.
type InvitationServiceOptions struct {
	Store  ports.InvitationStore
	Clock  ports.Clock
	Logger *slog.Logger
}

// InvitationService validates and administers single-use registration
// invitations.
type InvitationService struct {
	store  ports.InvitationStore
	clock  ports.Clock
	logger *slog.Logger
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(opts InvitationServiceOptions) *InvitationService {
	if opts.Store == nil {
		panic("invitation service requires a store")
	}
	clock := opts.Clock
	if clock == nil {
		clock = ports.ClockFunc(time.Now)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{store: opts.Store, clock: clock, logger: logger}
}

// ValidationResult is the outcome of a token check. Reason is RejectNone
// when the invitation is usable.
type ValidationResult struct {
	Invitation domainauth.Invitation
	Reason     domainauth.RejectReason
}

// Valid reports whether the token may be used for registration.
func (r ValidationResult) Valid() bool { return r.Reason == domainauth.RejectNone }

// Validate checks a token without side effects. Rejections are values, not
// errors; the returned error covers storage failures only.
func (s *InvitationService) Validate(ctx context.Context, token string) (ValidationResult, error) {
	if token == "" {
		return ValidationResult{Reason: domainauth.RejectNotFound}, nil
	}

	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ports.ErrInvitationNotFound) {
			return ValidationResult{Reason: domainauth.RejectNotFound}, nil
		}
		return ValidationResult{}, fmt.Errorf("look up invitation: %w", err)
	}

	// Expiry is derived from the clock, never from the stored status, and
	// takes precedence over whatever status reads.
	if inv.Expired(s.clock.Now()) {
		return ValidationResult{Invitation: inv, Reason: domainauth.RejectExpired}, nil
	}

	switch inv.Status {
	case domainauth.InvitationPending:
		return ValidationResult{Invitation: inv}, nil
	case domainauth.InvitationAccepted:
		return ValidationResult{Invitation: inv, Reason: domainauth.RejectAlreadyUsed}, nil
	case domainauth.InvitationCancelled:
		return ValidationResult{Invitation: inv, Reason: domainauth.RejectCancelled}, nil
	default:
		return ValidationResult{}, fmt.Errorf("invitation %s has unknown status %q", inv.ID, inv.Status)
	}
}

// Consume transitions pending → accepted. Losing the conditional write
// yields a Conflict; the caller must not provision a user in that case.
func (s *InvitationService) Consume(ctx context.Context, id string) error {
	won, err := s.store.Consume(ctx, id)
	if err != nil {
		return fmt.Errorf("consume invitation: %w", err)
	}
	if !won {
		return apperrors.Conflict("invitation is no longer pending")
	}
	return nil
}

// CreateInvitationInput carries admin inputs for Create.
type CreateInvitationInput struct {
	Email string
	// TTL defaults to DefaultInvitationTTL when zero.
	TTL time.Duration
}

// Create issues a new pending invitation with a fresh token.
func (s *InvitationService) Create(ctx context.Context, in CreateInvitationInput) (domainauth.Invitation, error) {
	if in.Email == "" {
		return domainauth.Invitation{}, apperrors.ValidationField("email", "email is required")
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = DefaultInvitationTTL
	}
	if ttl < 0 {
		return domainauth.Invitation{}, apperrors.ValidationField("expires_in", "lifetime must be positive")
	}

	now := s.clock.Now().UTC()
	inv := domainauth.Invitation{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Token:     uuid.NewString(),
		Status:    domainauth.InvitationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.Insert(ctx, inv); err != nil {
		return domainauth.Invitation{}, fmt.Errorf("create invitation: %w", err)
	}

	s.logger.InfoContext(ctx, "invitation created", "invitation_id", inv.ID, "email", inv.Email, "expires_at", inv.ExpiresAt)
	return inv, nil
}

// List returns all invitations, newest first.
func (s *InvitationService) List(ctx context.Context) ([]domainauth.Invitation, error) {
	invs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invs, nil
}

// Cancel transitions pending → cancelled (terminal).
func (s *InvitationService) Cancel(ctx context.Context, id string) error {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		if errors.Is(err, ports.ErrInvitationNotFound) {
			return apperrors.NotFound("invitation not found")
		}
		return fmt.Errorf("look up invitation: %w", err)
	}

	done, err := s.store.Cancel(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}
	if !done {
		return apperrors.Conflict("invitation is no longer pending")
	}

	s.logger.InfoContext(ctx, "invitation cancelled", "invitation_id", id)
	return nil
}

// Resend rotates the token and extends the expiry of a still-pending
// invitation so the admin can send a fresh link.
func (s *InvitationService) Resend(ctx context.Context, id string) (domainauth.Invitation, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		if errors.Is(err, ports.ErrInvitationNotFound) {
			return domainauth.Invitation{}, apperrors.NotFound("invitation not found")
		}
		return domainauth.Invitation{}, fmt.Errorf("look up invitation: %w", err)
	}

	token := uuid.NewString()
	expiresAt := s.clock.Now().UTC().Add(DefaultInvitationTTL)
	done, err := s.store.Refresh(ctx, id, token, expiresAt)
	if err != nil {
		return domainauth.Invitation{}, fmt.Errorf("refresh invitation: %w", err)
	}
	if !done {
		return domainauth.Invitation{}, apperrors.Conflict("invitation is no longer pending")
	}

	inv, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domainauth.Invitation{}, fmt.Errorf("reload invitation: %w", err)
	}

	s.logger.InfoContext(ctx, "invitation resent", "invitation_id", id, "expires_at", inv.ExpiresAt)
	return inv, nil
}
