package domain

import (
	"strings"
	"time"
)

// Role is a closed enumeration of role names that map to a capability set.
type Role uint8

const (
	RoleAdmin Role = iota
	RoleSales
	RoleAssistant
	RoleAccounting
	RoleWarehouse

	roleCount
)

var roleNames = [roleCount]string{
	RoleAdmin:      "admin",
	RoleSales:      "sales",
	RoleAssistant:  "assistant",
	RoleAccounting: "accounting",
	RoleWarehouse:  "warehouse",
}

// String returns the stored role name.
func (r Role) String() string {
	if r >= roleCount {
		return "unknown"
	}
	return roleNames[r]
}

// ParseRole maps a stored role name to a Role. ok is false for names outside the enumeration.
func ParseRole(name string) (Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range roleNames {
		if n == name {
			return Role(i), true
		}
	}
	return 0, false
}

// AllRoles returns every role in declaration order.
func AllRoles() []Role {
	out := make([]Role, roleCount)
	for i := range out {
		out[i] = Role(i)
	}
	return out
}

// RoleSet is a set of roles.
type RoleSet uint8

// NewRoleSet returns a set containing roles.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.Add(r)
	}
	return s
}

// Add returns s with r added.
func (s RoleSet) Add(r Role) RoleSet {
	if r >= roleCount {
		return s
	}
	return s | 1<<r
}

// Has reports whether r is in s.
func (s RoleSet) Has(r Role) bool {
	return r < roleCount && s&(1<<r) != 0
}

// Empty reports whether s holds no roles.
func (s RoleSet) Empty() bool { return s == 0 }

// Roles returns the members of s in declaration order.
func (s RoleSet) Roles() []Role {
	var out []Role
	for r := Role(0); r < roleCount; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// String returns a comma-separated list of role names.
func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ",")
}

// RoleAssignment is a role granted to a user. OrgID is empty for assignments that apply in every organization.
type RoleAssignment struct {
	ID        string
	UserID    string
	OrgID     string
	Role      string
	Active    bool
	CreatedAt time.Time
}
