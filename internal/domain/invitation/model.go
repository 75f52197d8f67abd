package invitation

import (
	"time"

	"github.com/grovekit/grove/internal/domain/grant"
)

// Status is an invitation lifecycle state. Every status except pending is
// terminal; a terminal invitation never changes again.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
	StatusRevoked  Status = "revoked"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Invitation is a time-bounded, single-use offer that converts into a grant
// upon acceptance.
type Invitation struct {
	ID        string     `json:"id"`
	TreeID    string     `json:"tree_id"`
	InviterID string     `json:"inviter_id"`
	InviteeID string     `json:"invitee_id"`
	Role      grant.Role `json:"role"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Message   string     `json:"message,omitempty"`
}

// Expired reports whether the invitation's TTL has elapsed at now.
func (inv *Invitation) Expired(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}
