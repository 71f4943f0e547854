// Package engine evaluates per-organization Rego policies that narrow the capability set
// granted by a user's roles.
package engine

import (
	"context"

	"orgscope/internal/policy/domain"
)

// PolicySource returns the enabled policies of an organization.
type PolicySource interface {
	GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error)
}

// Decision is the outcome of evaluating the capability policies for one user in one org.
type Decision struct {
	// Denied lists the flag names the policies removed, sorted.
	Denied []string
	// Evaluated is false when the org has no policy and the input set was returned as is.
	Evaluated bool
}
