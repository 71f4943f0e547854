package repository

import (
	"context"
	"database/sql"
	"errors"

	"orgscope/internal/user/domain"
)

const userColumns = `id, email, name, status, created_at, updated_at`

const getUserQuery = `SELECT ` + userColumns + `
FROM users
WHERE id = $1`

const getUserByEmailQuery = `SELECT ` + userColumns + `
FROM users
WHERE email = $1`

const insertUserQuery = `INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.get(ctx, getUserQuery, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.get(ctx, getUserByEmailQuery, email)
}

func (r *PostgresRepository) get(ctx context.Context, query, arg string) (*domain.User, error) {
	var (
		u      domain.User
		name   sql.NullString
		status string
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &name, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	u.Status = domain.UserStatus(status)
	return &u, nil
}

// Create persists the user to the database. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	name := sql.NullString{String: u.Name, Valid: u.Name != ""}
	_, err := r.db.ExecContext(ctx, insertUserQuery, u.ID, u.Email, name, string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}
