package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/service"
)

// InvitationHandlers serves the public token validation endpoint and the
// admin invitation management endpoints.
type InvitationHandlers struct {
	Svc    *service.InvitationService
	Logger *slog.Logger
}

// Validate handles GET /api/invitations/validate/{token}. Public: the
// registration page calls it before the visitor has any session.
func (h *InvitationHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	result, err := h.Svc.Validate(r.Context(), token)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	if !result.Valid() {
		WriteJSON(w, http.StatusOK, map[string]any{
			"valid":   false,
			"reason":  result.Reason,
			"message": result.Reason.Message(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"email": result.Invitation.Email,
	})
}

// List handles GET /api/invitations (admin).
func (h *InvitationHandlers) List(w http.ResponseWriter, r *http.Request) {
	invs, err := h.Svc.List(r.Context())
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	if invs == nil {
		invs = []domainauth.Invitation{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

type createInvitationRequest struct {
	Email string `json:"email"`
	// ExpiresInDays defaults to 7 when omitted.
	ExpiresInDays int `json:"expires_in_days"`
}

// Create handles POST /api/invitations (admin).
func (h *InvitationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	inv, err := h.Svc.Create(r.Context(), service.CreateInvitationInput{
		Email: req.Email,
		TTL:   time.Duration(req.ExpiresInDays) * 24 * time.Hour,
	})
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"invitation": inv})
}

// Cancel handles DELETE /api/invitations/{id} (admin).
func (h *InvitationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Cancel(r.Context(), r.PathValue("id")); err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Resend handles POST /api/invitations/{id}/resend (admin).
func (h *InvitationHandlers) Resend(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Svc.Resend(r.Context(), r.PathValue("id"))
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"invitation": inv})
}
