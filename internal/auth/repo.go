package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obrador-ops/obrador-ops/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Operator, error)
	FindByID(ctx context.Context, id int64) (*Operator, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const operatorColumns = `id, email, name, password_hash, is_active, created_at, updated_at`

func scanOperator(row pgx.Row) (*Operator, error) {
	var op Operator
	err := row.Scan(&op.ID, &op.Email, &op.Name, &op.PasswordHash, &op.IsActive, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &op, nil
}

// FindByEmail fetches an operator by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE email = $1`
	return scanOperator(r.pool.QueryRow(ctx, query, email))
}

// FindByID fetches an operator by ID.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE id = $1`
	return scanOperator(r.pool.QueryRow(ctx, query, id))
}

var _ Repository = (*PGRepository)(nil)
