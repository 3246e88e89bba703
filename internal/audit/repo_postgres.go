package audit

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
)

// PostgresRepo persists audit entries.
//
// Assumed table (INSERT-only; no update/delete statements exist here):
// - audit_log_entries (id, user_id, action, resource_type, resource_id,
//   old_value jsonb, new_value jsonb, ip_address, user_agent, metadata jsonb,
//   created_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

const insertEntrySQL = `
INSERT INTO audit_log_entries (
  id, user_id, action, resource_type, resource_id,
  old_value, new_value, ip_address, user_agent, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, insertEntrySQL, entryArgs(e)...)
	return err
}

// AppendTx inserts an entry inside a caller-owned transaction. Used by the
// bulk configuration path so config rows and their audit entries commit or
// roll back together.
func AppendTx(ctx context.Context, tx *sql.Tx, e Entry) error {
	_, err := tx.ExecContext(ctx, insertEntrySQL, entryArgs(e)...)
	return err
}

func entryArgs(e Entry) []any {
	// Text columns are NOT NULL DEFAULT '' in the assumed schema; only the
	// jsonb snapshots are nullable.
	return []any{
		e.ID,
		e.UserID,
		string(e.Action),
		e.ResourceType,
		e.ResourceID,
		nullIfEmptyJSON(e.OldValue),
		nullIfEmptyJSON(e.NewValue),
		e.IPAddress,
		e.UserAgent,
		nullIfEmptyJSON(e.Metadata),
		e.CreatedAt,
	}
}

func nullIfEmptyJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var entryColumns = []string{
	"id", "user_id", "action", "resource_type", "resource_id",
	"old_value", "new_value", "ip_address", "user_agent", "metadata", "created_at",
}

func historyWhere(b sq.SelectBuilder, f HistoryFilters) sq.SelectBuilder {
	actions := make([]string, 0, len(f.Actions))
	for _, a := range f.Actions {
		actions = append(actions, string(a))
	}
	b = b.Where(sq.Eq{"action": actions})

	if !f.From.IsZero() {
		b = b.Where(sq.GtOrEq{"created_at": f.From})
	}
	if !f.To.IsZero() {
		b = b.Where(sq.LtOrEq{"created_at": f.To})
	}
	if f.UserID != "" {
		b = b.Where(sq.Eq{"user_id": f.UserID})
	}
	if f.Resource != "" {
		b = b.Where(sq.Eq{"resource_type": f.Resource})
	}
	if f.ResourceID != "" {
		b = b.Where(sq.Eq{"resource_id": f.ResourceID})
	}
	if f.Search != "" {
		needle := "%" + f.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"action": needle},
			sq.ILike{"resource_id": needle},
			sq.Expr("old_value::text ILIKE ?", needle),
			sq.Expr("new_value::text ILIKE ?", needle),
		})
	}
	return b
}

func (r *PostgresRepo) List(ctx context.Context, f HistoryFilters, limit, offset int) ([]Entry, error) {
	q, args, err := historyWhere(
		psql().Select(entryColumns...).From("audit_log_entries"), f,
	).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	if err := sqlscan.Select(ctx, r.db, &entries, q, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *PostgresRepo) Count(ctx context.Context, f HistoryFilters) (int, error) {
	q, args, err := historyWhere(
		psql().Select("COUNT(*)").From("audit_log_entries"), f,
	).ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) Summarize(ctx context.Context, f HistoryFilters) (HistorySummary, error) {
	q, args, err := historyWhere(
		psql().Select(
			"COUNT(*) AS total_entries",
			"COUNT(DISTINCT user_id) FILTER (WHERE user_id <> '') AS unique_users",
			`COUNT(*) FILTER (WHERE COALESCE(metadata->>'bulkUpdate','false') = 'true' OR action = 'BULK_AUTO_APPROVAL_CONFIG_UPDATED') AS bulk_operations`,
		).From("audit_log_entries"), f,
	).ToSql()
	if err != nil {
		return HistorySummary{}, err
	}

	var out HistorySummary
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&out.TotalEntries, &out.UniqueUsers, &out.BulkOperations); err != nil {
		return HistorySummary{}, err
	}
	out.SingleOperations = out.TotalEntries - out.BulkOperations
	return out, nil
}
