package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/service"
)

// UserHandlers serves the admin user management endpoints.
type UserHandlers struct {
	Svc    *service.RoleService
	Logger *slog.Logger
}

// List handles GET /api/admin/users.
func (h *UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.Svc.ListUsers(r.Context())
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	if users == nil {
		users = []domainauth.UserRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles PUT /api/admin/users/{id}/role.
func (h *UserHandlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	snap, ok := SnapshotFromContext(r.Context())
	if !ok || snap.User == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Message: "Authentication required.",
		})
		return
	}

	var req changeRoleRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role, err := domainauth.ParseRole(req.Role)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Message: err.Error(),
		})
		return
	}

	if err := h.Svc.ChangeRole(r.Context(), *snap.User, r.PathValue("id"), role); err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeWindowRequest struct {
	// AllowedHours carries a "start-end" range such as "9-18"; null or
	// empty clears the restriction.
	AllowedHours *string `json:"allowed_hours"`
}

// ChangeWindow handles PUT /api/admin/users/{id}/window.
func (h *UserHandlers) ChangeWindow(w http.ResponseWriter, r *http.Request) {
	snap, ok := SnapshotFromContext(r.Context())
	if !ok || snap.User == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Message: "Authentication required.",
		})
		return
	}

	var req changeWindowRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	var window *domainauth.TimeWindow
	if req.AllowedHours != nil && *req.AllowedHours != "" {
		parsed, err := domainauth.ParseTimeWindow(*req.AllowedHours)
		if err != nil {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "validation",
				Message: err.Error(),
			})
			return
		}
		window = &parsed
	}

	if err := h.Svc.ChangeAccessWindow(r.Context(), *snap.User, r.PathValue("id"), window); err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
