package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"orgscope/internal/permission/domain"
)

const activeRolesGlobalQuery = `SELECT role FROM user_roles
WHERE user_id = $1 AND active = true`

const activeRolesTenantQuery = `SELECT role FROM user_roles
WHERE user_id = $1 AND active = true AND (organization_id IS NULL OR organization_id = $2)`

const insertRoleAssignmentQuery = `INSERT INTO user_roles (id, user_id, organization_id, role, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type PostgresRepository struct {
	db     *sql.DB
	scope  Scope
	logger *zap.Logger
}

// NewPostgresRepository returns a role repository reading user_roles with the given scope.
func NewPostgresRepository(db *sql.DB, scope Scope, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scope == "" {
		scope = ScopeGlobal
	}
	return &PostgresRepository{db: db, scope: scope, logger: logger}
}

// ActiveRoles returns the active roles of userID. Role names outside the enumeration are skipped and logged.
func (r *PostgresRepository) ActiveRoles(ctx context.Context, userID, orgID string) (domain.RoleSet, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if r.scope == ScopeTenant {
		rows, err = r.db.QueryContext(ctx, activeRolesTenantQuery, userID, orgID)
	} else {
		rows, err = r.db.QueryContext(ctx, activeRolesGlobalQuery, userID)
	}
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var set domain.RoleSet
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, err
		}
		role, ok := domain.ParseRole(name)
		if !ok {
			r.logger.Warn("ignoring unknown role assignment",
				zap.String("user_id", userID),
				zap.String("role", name),
			)
			continue
		}
		set = set.Add(role)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return set, nil
}

// Grant inserts a role assignment. An empty OrgID stores a global assignment.
func (r *PostgresRepository) Grant(ctx context.Context, a *domain.RoleAssignment) error {
	if _, ok := domain.ParseRole(a.Role); !ok {
		return fmt.Errorf("unknown role %q", a.Role)
	}
	var orgID sql.NullString
	if a.OrgID != "" {
		orgID = sql.NullString{String: a.OrgID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, insertRoleAssignmentQuery, a.ID, a.UserID, orgID, a.Role, a.Active, a.CreatedAt)
	return err
}
