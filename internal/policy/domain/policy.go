package domain

import "time"

// Policy is an org-level Rego module restricting capabilities. Rules must declare
// package orgscope.capabilities.
type Policy struct {
	ID        string
	OrgID     string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
