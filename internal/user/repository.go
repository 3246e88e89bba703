package user

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("user not found")

// Repository is the read-side contract for user lookups.
type Repository interface {
	Get(ctx context.Context, id string) (User, error)
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// PostgresRepo reads from the users table.
//
// Assumed table:
// - users (id, name, email, role, active, created_at, updated_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, id string) (User, error) {
	const q = `
SELECT id, name, email, role, active, created_at, updated_at
FROM users
WHERE id = $1
`
	var u User
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	q, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "name").
		From("users").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
