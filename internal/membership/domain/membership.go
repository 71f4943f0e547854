package domain

import (
	"time"

	orgdomain "orgscope/internal/organization/domain"
)

// Membership links a user to an organization. Active is independent of the organization's own flag.
type Membership struct {
	ID           string
	UserID       string
	OrgID        string
	Active       bool
	JoinedAt     time.Time
	Organization *orgdomain.Org
}

// FindByOrg returns the membership in list whose organization id is orgID, or nil.
func FindByOrg(list []*Membership, orgID string) *Membership {
	if orgID == "" {
		return nil
	}
	for _, m := range list {
		if m != nil && m.OrgID == orgID {
			return m
		}
	}
	return nil
}
