package activity

import "time"

// Action names the operation an audit entry records.
type Action string

const (
	ActionOwnerSeeded          Action = "tree_owner_seeded"
	ActionPermissionGranted    Action = "permission_granted"
	ActionPermissionRevoked    Action = "permission_revoked"
	ActionOwnershipTransferred Action = "ownership_transferred"
	ActionGrantsPurged         Action = "tree_grants_purged"
	ActionInvitationCreated    Action = "invitation_created"
	ActionInvitationAccepted   Action = "invitation_accepted"
	ActionInvitationDeclined   Action = "invitation_declined"
	ActionInvitationRevoked    Action = "invitation_revoked"
	ActionInvitationExpired    Action = "invitation_expired"
)

// Entry is one append-only audit record. Entries are ordered by
// (tree, timestamp, token); the token keeps entries distinct and ordered under
// identical timestamps. Entries are never mutated or deleted.
type Entry struct {
	TreeID    string    `json:"tree_id"`
	ActorID   string    `json:"actor_id"`
	Action    Action    `json:"action"`
	Details   string    `json:"details,omitempty"` // JSON string
	CreatedAt time.Time `json:"created_at"`
	Token     string    `json:"token"`
}
