package repository

import (
	"context"
	"errors"

	"orgscope/internal/membership/domain"
)

// ErrDanglingOrganization is returned when a membership references an organization that cannot be loaded.
var ErrDanglingOrganization = errors.New("membership references a missing organization")

// Repository defines persistence for memberships.
type Repository interface {
	// ListActiveByUser returns the user's active memberships with their organization loaded,
	// newest joined first.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
}
