package grant

import "time"

// Role is a named bundle of default capabilities.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// roleRanks orders roles for escalation checks. A principal may never hand out
// a role ranked above its own.
var roleRanks = map[Role]int{
	RoleViewer: 0,
	RoleEditor: 1,
	RoleAdmin:  2,
	RoleOwner:  3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Exceeds reports whether r outranks other.
func (r Role) Exceeds(other Role) bool {
	return roleRanks[r] > roleRanks[other]
}

// Capability is a single named permission. The set is closed: unknown names
// always fail authorization checks.
type Capability string

const (
	CapAddMembers          Capability = "add_members"
	CapEditMembers         Capability = "edit_members"
	CapManageRelationships Capability = "manage_relationships"
	CapInviteUsers         Capability = "invite_users"
	CapManageMedia         Capability = "manage_media"
	CapManagePermissions   Capability = "manage_permissions"
	CapExportTree          Capability = "export_tree"
)

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapAddMembers,
		CapEditMembers,
		CapManageRelationships,
		CapInviteUsers,
		CapManageMedia,
		CapManagePermissions,
		CapExportTree,
	}
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapAddMembers, CapEditMembers, CapManageRelationships, CapInviteUsers,
		CapManageMedia, CapManagePermissions, CapExportTree:
		return true
	}
	return false
}

// PermissionSet maps capabilities to whether they are held.
type PermissionSet map[Capability]bool

// DefaultPermissions returns the fixed per-role capability table.
func DefaultPermissions(role Role) PermissionSet {
	perms := make(PermissionSet, len(AllCapabilities()))
	for _, cap := range AllCapabilities() {
		perms[cap] = false
	}
	switch role {
	case RoleOwner, RoleAdmin:
		for _, cap := range AllCapabilities() {
			perms[cap] = true
		}
	case RoleEditor:
		perms[CapAddMembers] = true
		perms[CapEditMembers] = true
		perms[CapManageRelationships] = true
		perms[CapManageMedia] = true
	case RoleViewer:
		// read-only
	}
	return perms
}

// Within reports whether every capability held in p is also held in other.
func (p PermissionSet) Within(other PermissionSet) bool {
	for cap, held := range p {
		if held && !other[cap] {
			return false
		}
	}
	return true
}

// Grant is the durable authorization record for one (tree, principal) pair.
type Grant struct {
	TreeID         string        `json:"tree_id"`
	PrincipalID    string        `json:"principal_id"`
	Role           Role          `json:"role"`
	Permissions    PermissionSet `json:"permissions"`
	GrantedBy      string        `json:"granted_by"`
	GrantedAt      time.Time     `json:"granted_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	AccessCount    int64         `json:"access_count"`
}

// Effective returns the permissions the grant actually confers. The owner
// holds every capability regardless of stored flags.
func (g *Grant) Effective() PermissionSet {
	if g.Role == RoleOwner {
		return DefaultPermissions(RoleOwner)
	}
	perms := make(PermissionSet, len(g.Permissions))
	for cap, held := range g.Permissions {
		perms[cap] = held
	}
	return perms
}

// Has reports whether the grant confers the capability. Unknown capabilities
// are always denied.
func (g *Grant) Has(cap Capability) bool {
	if !cap.Valid() {
		return false
	}
	if g.Role == RoleOwner {
		return true
	}
	return g.Permissions[cap]
}
