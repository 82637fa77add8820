package auth

import "strings"

// Role is the closed set of account roles. Authorization decisions read this
// enum and the capability table below; there is no runtime group lookup.
type Role string

const (
	RoleResident  Role = "resident"
	RoleAuthority Role = "authority"
	RoleSuperuser Role = "superuser"
)

// Capability names a protected operation.
type Capability string

const (
	CapViewEvents     Capability = "events.view"
	CapManageEvents   Capability = "events.manage"
	CapManageCategory Capability = "categories.manage"
	CapManageUsers    Capability = "users.manage"
	CapJoinEvents     Capability = "events.join"
)

// capabilities is the static role -> capability table. Residents can browse
// and join events and manage their own account; authority users additionally
// manage the catalog; superusers manage everything including accounts.
var capabilities = map[Role][]Capability{
	RoleResident:  {CapViewEvents, CapJoinEvents},
	RoleAuthority: {CapViewEvents, CapJoinEvents, CapManageEvents, CapManageCategory},
	RoleSuperuser: {CapViewEvents, CapJoinEvents, CapManageEvents, CapManageCategory, CapManageUsers},
}

// GroupName returns the legacy display-group name for a role. The names are
// persisted by the seed command for auditability but never consulted for
// authorization.
func (r Role) GroupName() string {
	switch r {
	case RoleAuthority, RoleSuperuser:
		return "Government Authority"
	default:
		return "Residents"
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleResident, RoleAuthority, RoleSuperuser:
		return true
	}
	return false
}

// NormalizeRole maps arbitrary input onto the closed enum, defaulting to the
// unprivileged resident role.
func NormalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAuthority):
		return RoleAuthority
	case string(RoleSuperuser):
		return RoleSuperuser
	default:
		return RoleResident
	}
}

// Allows reports whether a role grants the capability.
func Allows(role Role, capability Capability) bool {
	for _, granted := range capabilities[NormalizeRole(string(role))] {
		if granted == capability {
			return true
		}
	}
	return false
}
