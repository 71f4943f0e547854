package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"orgscope/internal/membership/domain"
	orgdomain "orgscope/internal/organization/domain"
)

const listActiveByUserQuery = `SELECT m.id, m.user_id, m.organization_id, m.active, m.joined_at,
       o.id, o.name, o.description, o.settings, o.owner_id, o.active, o.created_at, o.updated_at
FROM organization_members m
LEFT JOIN organizations o ON o.id = m.organization_id
WHERE m.user_id = $1 AND m.active = true
ORDER BY m.joined_at DESC`

const getByUserAndOrgQuery = `SELECT id, user_id, organization_id, active, joined_at
FROM organization_members
WHERE user_id = $1 AND organization_id = $2`

const insertMembershipQuery = `INSERT INTO organization_members (id, user_id, organization_id, active, joined_at)
VALUES ($1, $2, $3, $4, $5)`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListActiveByUser returns the active memberships of userID ordered by joined_at descending.
// A membership whose organization row is missing fails the whole load with ErrDanglingOrganization.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, listActiveByUserQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Membership
	for rows.Next() {
		var (
			m        domain.Membership
			orgID    sql.NullString
			name     sql.NullString
			desc     sql.NullString
			settings []byte
			ownerID  sql.NullString
			active   sql.NullBool
			created  sql.NullTime
			updated  sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrgID, &m.Active, &m.JoinedAt,
			&orgID, &name, &desc, &settings, &ownerID, &active, &created, &updated); err != nil {
			return nil, err
		}
		if !orgID.Valid {
			return nil, fmt.Errorf("membership %s: %w", m.ID, ErrDanglingOrganization)
		}
		org := &orgdomain.Org{
			ID:          orgID.String,
			Name:        name.String,
			Description: desc.String,
			OwnerID:     ownerID.String,
			Active:      active.Bool,
			CreatedAt:   created.Time,
			UpdatedAt:   updated.Time,
			Settings:    map[string]any{},
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &org.Settings); err != nil {
				return nil, fmt.Errorf("organization %s settings: %w", org.ID, err)
			}
		}
		m.Organization = org
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
// It returns an error only for database failures, not for missing rows. The organization is not loaded.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	var m domain.Membership
	err := r.db.QueryRowContext(ctx, getByUserAndOrgQuery, userID, orgID).
		Scan(&m.ID, &m.UserID, &m.OrgID, &m.Active, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Create adds userID to an existing organization. The organization is not written.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Membership) error {
	if m.UserID == "" || m.OrgID == "" {
		return errors.New("membership: user and organization are required")
	}
	_, err := r.db.ExecContext(ctx, insertMembershipQuery, m.ID, m.UserID, m.OrgID, m.Active, m.JoinedAt)
	return err
}
