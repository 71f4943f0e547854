package orgcontext

import (
	membershipdomain "orgscope/internal/membership/domain"
	orgdomain "orgscope/internal/organization/domain"
)

// Select picks the current organization from the active memberships.
//
// The persisted id wins when it matches a membership. Otherwise the membership
// with the latest JoinedAt is chosen; ties keep the earlier list element. The
// list order is not trusted. Returns nil when there is nothing to select.
func Select(list []*membershipdomain.Membership, persistedID string) *orgdomain.Org {
	if m := membershipdomain.FindByOrg(list, persistedID); selectable(m) {
		return m.Organization
	}
	var best *membershipdomain.Membership
	for _, m := range list {
		if !selectable(m) {
			continue
		}
		if best == nil || m.JoinedAt.After(best.JoinedAt) {
			best = m
		}
	}
	if best == nil {
		return nil
	}
	return best.Organization
}

func selectable(m *membershipdomain.Membership) bool {
	return m != nil && m.Active && m.Organization != nil
}
