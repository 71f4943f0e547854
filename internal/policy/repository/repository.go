package repository

import (
	"context"

	"orgscope/internal/policy/domain"
)

// Repository defines persistence for capability policies.
type Repository interface {
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error)
	GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}
