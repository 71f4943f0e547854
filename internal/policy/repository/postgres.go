package repository

import (
	"context"
	"database/sql"
	"fmt"

	"orgscope/internal/policy/domain"
)

const listPoliciesByOrgQuery = `SELECT id, org_id, rules, enabled, created_at
FROM policies
WHERE org_id = $1
ORDER BY created_at`

const listEnabledPoliciesByOrgQuery = `SELECT id, org_id, rules, enabled, created_at
FROM policies
WHERE org_id = $1 AND enabled = true
ORDER BY created_at`

const insertPolicyQuery = `INSERT INTO policies (id, org_id, rules, enabled, created_at)
VALUES ($1, $2, $3, $4, $5)`

const setPolicyEnabledQuery = `UPDATE policies SET enabled = $2 WHERE id = $1`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByOrg returns all policies for the given org. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.list(ctx, listPoliciesByOrgQuery, orgID)
}

// GetEnabledPoliciesByOrg returns the enabled policies for the given org in creation order.
func (r *PostgresRepository) GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.list(ctx, listEnabledPoliciesByOrgQuery, orgID)
}

func (r *PostgresRepository) list(ctx context.Context, query, orgID string) ([]*domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create persists the policy to the database. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx, insertPolicyQuery, p.ID, p.OrgID, p.Rules, p.Enabled, p.CreatedAt)
	return err
}

// SetEnabled toggles a policy. Returns an error if no policy has id.
func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, setPolicyEnabledQuery, id, enabled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("policy %s not found", id)
	}
	return nil
}
