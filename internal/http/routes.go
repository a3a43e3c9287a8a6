package httpx

import (
	"log/slog"
	"net/http"

	"github.com/atelierhq/atelier/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions    *service.SessionManager
	Invitations *service.InvitationService
	Roles       *service.RoleService
	Authorizer  *service.Authorizer
	Logger      *slog.Logger
}

// NewRouter creates and configures the HTTP router.
//
// Route groups:
//   - public: health, auth flows, invitation token validation
//   - authenticated + inside access window: /api/auth/me stays public so
//     clients can render loading and anonymous states
//   - admin: invitation and user management
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Sessions:   services.Sessions,
		Authorizer: services.Authorizer,
		Logger:     logger,
	}
	invitationHandlers := &InvitationHandlers{Svc: services.Invitations, Logger: logger}
	userHandlers := &UserHandlers{Svc: services.Roles, Logger: logger}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	mux.HandleFunc("POST /api/auth/login", authHandlers.Login)
	mux.HandleFunc("POST /api/auth/register", authHandlers.Register)
	mux.HandleFunc("POST /api/auth/logout", authHandlers.Logout)
	mux.HandleFunc("GET /api/auth/me", authHandlers.Me)

	mux.HandleFunc("GET /api/invitations/validate/{token}", invitationHandlers.Validate)

	gated := RequireAccessWindow(services.Authorizer)
	mux.Handle("GET /api/workspace", gated(http.HandlerFunc(authHandlers.Workspace)))

	admin := RequireAdmin(services.Authorizer)
	mux.Handle("GET /api/invitations", admin(http.HandlerFunc(invitationHandlers.List)))
	mux.Handle("POST /api/invitations", admin(http.HandlerFunc(invitationHandlers.Create)))
	mux.Handle("DELETE /api/invitations/{id}", admin(http.HandlerFunc(invitationHandlers.Cancel)))
	mux.Handle("POST /api/invitations/{id}/resend", admin(http.HandlerFunc(invitationHandlers.Resend)))

	mux.Handle("GET /api/admin/users", admin(http.HandlerFunc(userHandlers.List)))
	mux.Handle("PUT /api/admin/users/{id}/role", admin(http.HandlerFunc(userHandlers.ChangeRole)))
	mux.Handle("PUT /api/admin/users/{id}/window", admin(http.HandlerFunc(userHandlers.ChangeWindow)))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}
