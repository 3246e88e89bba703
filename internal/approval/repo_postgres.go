package approval

import (
	"context"
	"database/sql"
	"fmt"

	"response-platform/internal/audit"
	"response-platform/internal/entity"
	"response-platform/pkg/utils"

	sq "github.com/Masterminds/squirrel"
)

// PostgresStore persists configuration against the entities table.
//
// Assumed tables:
// - entities (id, name, type, location, latitude, longitude, active,
//   auto_approve_enabled, metadata jsonb, created_at, updated_at)
// - rapid_assessments (read here only for AUTO_VERIFIED counts)
// - audit_log_entries (written through audit.AppendTx inside Apply)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

var entityColumns = []string{
	"id", "name", "type", "location", "latitude", "longitude",
	"active", "auto_approve_enabled", "metadata", "created_at", "updated_at",
}

func scanEntities(rows *sql.Rows) ([]entity.Entity, error) {
	defer rows.Close()
	out := make([]entity.Entity, 0)
	for rows.Next() {
		var e entity.Entity
		if err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Type,
			&e.Location,
			&e.Latitude,
			&e.Longitude,
			&e.Active,
			&e.AutoApproveEnabled,
			&e.Metadata,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActive(ctx context.Context, f ListFilters) ([]entity.Entity, error) {
	b := psql().Select(entityColumns...).From("entities").Where(sq.Eq{"active": true})
	if f.EntityType != "" {
		b = b.Where(sq.Eq{"type": string(f.EntityType)})
	}
	if f.EnabledOnly {
		b = b.Where(sq.Eq{"auto_approve_enabled": true})
	}
	q, args, err := b.OrderBy("auto_approve_enabled DESC", "name ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *PostgresStore) ActiveByIDs(ctx context.Context, ids []string) ([]entity.Entity, error) {
	if len(ids) == 0 {
		return []entity.Entity{}, nil
	}
	q, args, err := psql().Select(entityColumns...).From("entities").
		Where(sq.Eq{"active": true, "id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanEntities(rows)
}

func (s *PostgresStore) AutoVerifiedCounts(ctx context.Context) (map[string]int, error) {
	const q = `
SELECT entity_id, COUNT(*)
FROM rapid_assessments
WHERE verification_status = 'AUTO_VERIFIED'
GROUP BY entity_id
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) Apply(ctx context.Context, updates []ConfigUpdate, entries []audit.Entry) error {
	const q = `
UPDATE entities
SET auto_approve_enabled = $2, metadata = $3, updated_at = NOW()
WHERE id = $1 AND active
`
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, u := range updates {
			res, err := tx.ExecContext(ctx, q, u.EntityID, u.Enabled, u.Metadata)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n != 1 {
				// Entity deactivated between read and write: abort the batch.
				return fmt.Errorf("%w: entity %s no longer active", ErrNotFound, u.EntityID)
			}
		}
		for _, e := range entries {
			if err := audit.AppendTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}
