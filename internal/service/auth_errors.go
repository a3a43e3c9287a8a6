package service

import "fmt"

// AuthErrorCode classifies authentication flow failures. Every code maps
// 1:1 to a distinguishable user-facing message; only ProviderUnavailable is
// deliberately opaque.
type AuthErrorCode string

const (
	// AuthInvalidInvitation covers every invitation rejection (not found,
	// already used, cancelled, expired); the reason travels in the message.
	AuthInvalidInvitation AuthErrorCode = "invalid_invitation"
	// AuthProviderRejected means the provider refused the credentials or
	// signup.
	AuthProviderRejected AuthErrorCode = "provider_rejected"
	// AuthInvitationRace means another registration consumed the invitation
	// first.
	AuthInvitationRace AuthErrorCode = "invitation_race"
	// AuthProviderUnavailable means the provider could not be reached. The
	// core performs no automatic retry: retrying could mask an invitation
	// race as a transient fault.
	AuthProviderUnavailable AuthErrorCode = "provider_unavailable"
)

// AuthError is a typed authentication flow failure.
type AuthError struct {
	Code    AuthErrorCode
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AuthError) Unwrap() error { return e.Cause }

func invalidInvitation(message string) *AuthError {
	return &AuthError{Code: AuthInvalidInvitation, Message: message}
}

func providerRejected(err error) *AuthError {
	return &AuthError{Code: AuthProviderRejected, Message: "The identity provider rejected the request.", Cause: err}
}

func invitationRace() *AuthError {
	return &AuthError{Code: AuthInvitationRace, Message: "This invitation was just used by another registration."}
}

func providerUnavailable(err error) *AuthError {
	return &AuthError{Code: AuthProviderUnavailable, Message: "The identity provider is unavailable. Please try again.", Cause: err}
}
