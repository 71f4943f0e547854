package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgscope/internal/permission/domain"
)

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, s)

	s, err = ParseScope("tenant")
	require.NoError(t, err)
	assert.Equal(t, ScopeTenant, s)

	_, err = ParseScope("per-team")
	assert.Error(t, err)
}

func TestPostgresRepository_ActiveRoles_Global(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db, ScopeGlobal, nil)

	mock.ExpectQuery(activeRolesGlobalQuery).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("sales").AddRow("Warehouse").AddRow("janitor"))

	set, err := repo.ActiveRoles(context.Background(), "user-1", "org-ignored")
	require.NoError(t, err)
	assert.Equal(t, domain.NewRoleSet(domain.RoleSales, domain.RoleWarehouse), set)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ActiveRoles_Tenant(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db, ScopeTenant, nil)

	mock.ExpectQuery(activeRolesTenantQuery).WithArgs("user-1", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

	set, err := repo.ActiveRoles(context.Background(), "user-1", "org-1")
	require.NoError(t, err)
	assert.True(t, set.Has(domain.RoleAdmin))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ActiveRoles_Error(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db, ScopeGlobal, nil)

	mock.ExpectQuery(activeRolesGlobalQuery).WithArgs("user-1").WillReturnError(errors.New("timeout"))

	_, err = repo.ActiveRoles(context.Background(), "user-1", "")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Grant(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db, ScopeGlobal, nil)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(insertRoleAssignmentQuery).
		WithArgs("ra-1", "user-1", sql.NullString{}, "sales", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertRoleAssignmentQuery).
		WithArgs("ra-2", "user-1", sql.NullString{String: "org-1", Valid: true}, "warehouse", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Grant(context.Background(), &domain.RoleAssignment{ID: "ra-1", UserID: "user-1", Role: "sales", Active: true, CreatedAt: now}))
	require.NoError(t, repo.Grant(context.Background(), &domain.RoleAssignment{ID: "ra-2", UserID: "user-1", OrgID: "org-1", Role: "warehouse", Active: true, CreatedAt: now}))
	assert.Error(t, repo.Grant(context.Background(), &domain.RoleAssignment{ID: "ra-3", UserID: "user-1", Role: "janitor"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
