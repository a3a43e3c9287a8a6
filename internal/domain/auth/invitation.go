package auth

import "time"

// InvitationStatus is the stored lifecycle state of an invitation.
// Expiry is derived from ExpiresAt and never written back to storage.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Invitation is a single-use, time-bounded token gating self-registration.
// Transitions: pending → accepted (exactly once, atomically with user
// creation) or pending → cancelled (admin action, terminal).
type Invitation struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Token     string           `json:"token"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Expired reports whether the invitation is past its expiry at the given
// instant. This is a derived state: the stored status may still read
// pending.
func (i Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// RejectReason explains why a token failed validation. Rejections are
// first-class outcomes driving distinct user-facing messages, never
// collapsed into a generic error.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectNotFound    RejectReason = "not_found"
	RejectAlreadyUsed RejectReason = "already_used"
	RejectCancelled   RejectReason = "cancelled"
	RejectExpired     RejectReason = "expired"
)

// Message returns the user-facing text for the rejection. Each reason maps
// 1:1 to a distinguishable message.
func (r RejectReason) Message() string {
	switch r {
	case RejectNotFound:
		return "No invitation matches this token. Contact the administrator."
	case RejectAlreadyUsed:
		return "This invitation has already been used."
	case RejectCancelled:
		return "This invitation was cancelled by an administrator."
	case RejectExpired:
		return "This invitation has expired. Ask for a new one."
	default:
		return ""
	}
}
