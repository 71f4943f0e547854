package repository

import (
	"context"

	membershipdomain "orgscope/internal/membership/domain"
	"orgscope/internal/organization/domain"
)

// Repository defines persistence for organizations.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	// CreateWithOwner inserts the organization and its owner membership atomically.
	CreateWithOwner(ctx context.Context, o *domain.Org, owner *membershipdomain.Membership) error
}
