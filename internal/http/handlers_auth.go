package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/service"
)

// AuthHandlers serves the session endpoints: login, register, logout and
// the current-state probe.
type AuthHandlers struct {
	Sessions   *service.SessionManager
	Authorizer *service.Authorizer
	Logger     *slog.Logger
}

type statePayload struct {
	Phase    domainauth.Phase       `json:"phase"`
	Loading  bool                   `json:"loading"`
	User     *domainauth.UserRecord `json:"user,omitempty"`
	Identity *domainauth.Identity   `json:"identity,omitempty"`
}

func toStatePayload(state domainauth.State) statePayload {
	return statePayload{
		Phase:    state.Phase,
		Loading:  state.Loading(),
		User:     state.User,
		Identity: state.Identity,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Message: "email and password are required",
		})
		return
	}

	state, err := h.Sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, toStatePayload(state))
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	InvitationToken string `json:"invitation_token"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" || req.InvitationToken == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Message: "email, password and invitation_token are required",
		})
		return
	}

	user, err := h.Sessions.Register(r.Context(), req.Email, req.Password, req.InvitationToken)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context()); err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Workspace handles GET /api/workspace, the entry point the dashboard
// loads once the access-window gate lets the user through.
func (h *AuthHandlers) Workspace(w http.ResponseWriter, r *http.Request) {
	snap, ok := SnapshotFromContext(r.Context())
	if !ok || snap.User == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Message: "Authentication required.",
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"user": snap.User})
}

// Me handles GET /api/auth/me. It is deliberately unauthenticated: the
// anonymous and loading answers are part of its contract.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	state := h.Sessions.Current()
	snap := h.Authorizer.Snapshot()

	payload := toStatePayload(state)
	WriteJSON(w, http.StatusOK, map[string]any{
		"phase":          payload.Phase,
		"loading":        payload.Loading,
		"user":           payload.User,
		"identity":       payload.Identity,
		"is_admin":       snap.IsAdmin,
		"can_access_now": snap.CanAccessNow,
	})
}
