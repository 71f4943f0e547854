package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgscope/internal/policy/domain"
)

func TestPostgresRepository_GetEnabledPoliciesByOrg(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "org_id", "rules", "enabled", "created_at"}).
		AddRow("p1", "org-1", "package orgscope.capabilities", true, now)
	mock.ExpectQuery(listEnabledPoliciesByOrgQuery).WithArgs("org-1").WillReturnRows(rows)

	list, err := NewPostgresRepository(db).GetEnabledPoliciesByOrg(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)
	assert.True(t, list[0].Enabled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()

	mock.ExpectExec(insertPolicyQuery).WithArgs("p1", "org-1", "rules", true, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepository(db).Create(context.Background(), &domain.Policy{
		ID: "p1", OrgID: "org-1", Rules: "rules", Enabled: true, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_SetEnabledNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(setPolicyEnabledQuery).WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresRepository(db).SetEnabled(context.Background(), "missing", false)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
