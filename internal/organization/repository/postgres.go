package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	membershipdomain "orgscope/internal/membership/domain"
	"orgscope/internal/organization/domain"
)

const getOrganizationQuery = `SELECT id, name, description, settings, owner_id, active, created_at, updated_at
FROM organizations
WHERE id = $1`

const insertOrganizationQuery = `INSERT INTO organizations (id, name, description, settings, owner_id, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const insertMembershipQuery = `INSERT INTO organization_members (id, user_id, organization_id, active, joined_at)
VALUES ($1, $2, $3, $4, $5)`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	var (
		o        domain.Org
		desc     sql.NullString
		settings []byte
	)
	err := r.db.QueryRowContext(ctx, getOrganizationQuery, id).
		Scan(&o.ID, &o.Name, &desc, &settings, &o.OwnerID, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	o.Description = desc.String
	o.Settings = map[string]any{}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &o.Settings); err != nil {
			return nil, fmt.Errorf("organization %s settings: %w", o.ID, err)
		}
	}
	return &o, nil
}

// CreateWithOwner persists the organization and the owner's membership in one transaction.
// Both must have ID set; neither is assigned by this method.
func (r *PostgresRepository) CreateWithOwner(ctx context.Context, o *domain.Org, owner *membershipdomain.Membership) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if owner == nil || owner.UserID != o.OwnerID {
		return errors.New("owner membership must belong to the organization owner")
	}
	settings, err := json.Marshal(o.Settings)
	if err != nil {
		return err
	}
	desc := sql.NullString{String: o.Description, Valid: o.Description != ""}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertOrganizationQuery,
		o.ID, o.Name, desc, settings, o.OwnerID, o.Active, o.CreatedAt, o.UpdatedAt); err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertMembershipQuery,
		owner.ID, owner.UserID, o.ID, owner.Active, owner.JoinedAt); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}
	return tx.Commit()
}
