// Package permission resolves a user's active roles into an effective capability set
// and holds the per-session role data used by the permission guard.
package permission

import "orgscope/internal/permission/domain"

// Resolve merges the capability rows of roles. Admin short-circuits to the admin row;
// otherwise each flag is the OR across the present roles. An empty set resolves to all-false.
func Resolve(roles domain.RoleSet) domain.CapabilitySet {
	if roles.Has(domain.RoleAdmin) {
		return domain.CapabilitiesFor(domain.RoleAdmin)
	}
	var out domain.CapabilitySet
	for _, r := range roles.Roles() {
		out = out.Union(domain.CapabilitiesFor(r))
	}
	return out
}
