package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/atelierhq/atelier/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// snapshotKey is an unexported context key for the authorization snapshot.
type snapshotKey struct{}

// SnapshotFromContext returns the authorization snapshot attached by
// RequireAuth, and whether one is present.
func SnapshotFromContext(ctx context.Context) (service.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey{}).(service.Snapshot)
	return snap, ok
}

func withSnapshot(r *http.Request, snap service.Snapshot) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), snapshotKey{}, snap))
}

// RequireAuth returns a middleware that requires an authenticated,
// provisioned user. While the first session read is still outstanding it
// answers 503 so callers retry instead of being bounced to login.
func RequireAuth(authorizer *service.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := authorizer.Snapshot()
			if snap.Loading {
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "initializing",
					Message: "Session state is still loading.",
				})
				return
			}
			if !snap.Authenticated {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Message: "Authentication required.",
				})
				return
			}
			if snap.User == nil {
				// Signed in at the provider but never provisioned: no role
				// exists to authorize with.
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "unprovisioned",
					Message: "This account has not completed registration.",
				})
				return
			}

			next.ServeHTTP(w, withSnapshot(r, snap))
		})
	}
}

// RequireAdmin returns a middleware that requires the admin role. It
// implies RequireAuth.
func RequireAdmin(authorizer *service.Authorizer) func(http.Handler) http.Handler {
	requireAuth := RequireAuth(authorizer)
	return func(next http.Handler) http.Handler {
		return requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, _ := SnapshotFromContext(r.Context())
			if !snap.IsAdmin {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Message: "Admin role required.",
				})
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireAccessWindow returns a middleware that additionally enforces the
// user's access window. Admins always pass; designers only inside their
// allowed hours. It implies RequireAuth.
func RequireAccessWindow(authorizer *service.Authorizer) func(http.Handler) http.Handler {
	requireAuth := RequireAuth(authorizer)
	return func(next http.Handler) http.Handler {
		return requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, _ := SnapshotFromContext(r.Context())
			if !snap.CanAccessNow {
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "outside_access_window",
					Message: "Access is not allowed at this time.",
				})
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
