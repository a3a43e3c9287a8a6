package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/atelierhq/atelier/internal/errors"
	"github.com/atelierhq/atelier/internal/service"
)

// statusForAppCode maps application error codes to HTTP statuses.
func statusForAppCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		// Client closed the connection; nginx's 499 keeps it out of 5xx alerts.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// statusForAuthCode maps authentication flow failures to HTTP statuses.
func statusForAuthCode(code service.AuthErrorCode) int {
	switch code {
	case service.AuthInvalidInvitation:
		return http.StatusBadRequest
	case service.AuthProviderRejected:
		return http.StatusUnauthorized
	case service.AuthInvitationRace:
		return http.StatusConflict
	case service.AuthProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes the JSON error response for a service-layer failure.
// Typed errors keep their code and user-facing message; everything else is
// logged and collapses to an opaque 500.
func RenderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		WriteError(w, ErrorParams{
			Code:    statusForAuthCode(authErr.Code),
			ErrCode: string(authErr.Code),
			Message: authErr.Message,
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := statusForAppCode(appErr.Code)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
		}
		body := map[string]string{"error": string(appErr.Code), "message": appErr.Message}
		if appErr.Field != "" {
			body["field"] = appErr.Field
		}
		WriteJSON(w, status, body)
		return
	}

	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	WriteError(w, ErrorParams{
		Code:    http.StatusInternalServerError,
		ErrCode: "internal",
		Message: "An error occurred. Please try again.",
	})
}
