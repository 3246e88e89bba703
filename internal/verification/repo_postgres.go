package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"response-platform/internal/assessment"
)

// PostgresRepo persists rapid assessments in the rapid_assessments table.
// GPS capture fields and photo refs live in dedicated columns; the domain
// payload stays a jsonb blob.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

const insertAssessmentSQL = `
INSERT INTO rapid_assessments (
    id, type, date, entity_id, entity_name, assessor_id, assessor_name,
    latitude, longitude, accuracy_meters, captured_at, capture_method,
    photo_refs, payload, verification_status, priority, feedback,
    verified_at, verified_by, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

func (r *PostgresRepo) Insert(ctx context.Context, a assessment.RapidAssessment) error {
	photoRefs, err := json.Marshal(a.PhotoRefs)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	_, err = r.db.ExecContext(ctx, insertAssessmentSQL,
		a.ID, a.Type, a.Date, a.EntityID, a.EntityName, a.AssessorID, a.AssessorName,
		a.Location.Latitude, a.Location.Longitude, a.Location.AccuracyMeters,
		a.Location.CapturedAt, a.Location.Method,
		photoRefs, []byte(a.Payload), a.Status, a.Priority, a.Feedback,
		a.VerifiedAt, a.VerifiedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

var assessmentColumns = []string{
	"a.id", "a.type", "a.date", "a.entity_id", "a.entity_name",
	"a.assessor_id", "a.assessor_name",
	"a.latitude", "a.longitude", "a.accuracy_meters", "a.captured_at", "a.capture_method",
	"a.photo_refs", "a.payload", "a.verification_status", "a.priority", "a.feedback",
	"a.verified_at", "a.verified_by", "a.created_at", "a.updated_at",
}

func scanAssessment(row interface{ Scan(...any) error }) (assessment.RapidAssessment, error) {
	var (
		a          assessment.RapidAssessment
		photoRefs  []byte
		payload    []byte
		verifiedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Type, &a.Date, &a.EntityID, &a.EntityName,
		&a.AssessorID, &a.AssessorName,
		&a.Location.Latitude, &a.Location.Longitude, &a.Location.AccuracyMeters,
		&a.Location.CapturedAt, &a.Location.Method,
		&photoRefs, &payload, &a.Status, &a.Priority, &a.Feedback,
		&verifiedAt, &a.VerifiedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return assessment.RapidAssessment{}, err
	}
	if len(photoRefs) > 0 {
		if err := json.Unmarshal(photoRefs, &a.PhotoRefs); err != nil {
			return assessment.RapidAssessment{}, fmt.Errorf("photo refs: %w", err)
		}
	}
	a.Payload = json.RawMessage(payload)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	return a, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (assessment.RapidAssessment, error) {
	query, args, err := psql().
		Select(assessmentColumns...).
		From("rapid_assessments a").
		Where(sq.Eq{"a.id": id}).
		ToSql()
	if err != nil {
		return assessment.RapidAssessment{}, fmt.Errorf("get assessment: %w", err)
	}
	a, err := scanAssessment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.RapidAssessment{}, fmt.Errorf("%w: assessment %s", ErrNotFound, id)
	}
	if err != nil {
		return assessment.RapidAssessment{}, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// priorityRankSQL orders the text priority column by severity instead of
// alphabetically.
const priorityRankSQL = "CASE a.priority WHEN 'CRITICAL' THEN 3 WHEN 'HIGH' THEN 2 WHEN 'MEDIUM' THEN 1 ELSE 0 END"

// queueWhere translates a normalized request into squirrel predicates.
// includePriority=false drops the priority filter for depth counts.
func queueWhere(req QueueRequest, includePriority bool) []sq.Sqlizer {
	where := []sq.Sqlizer{sq.Eq{"a.verification_status": req.Statuses}}
	if req.EntityID != "" {
		where = append(where, sq.Eq{"a.entity_id": req.EntityID})
	}
	if len(req.Types) > 0 {
		where = append(where, sq.Eq{"a.type": req.Types})
	}
	if includePriority && len(req.Priorities) > 0 {
		where = append(where, sq.Eq{"a.priority": req.Priorities})
	}
	if req.DateFrom != nil {
		where = append(where, sq.GtOrEq{"a.date": *req.DateFrom})
	}
	if req.DateTo != nil {
		where = append(where, sq.LtOrEq{"a.date": *req.DateTo})
	}
	if req.AssessorID != "" {
		where = append(where, sq.Eq{"a.assessor_id": req.AssessorID})
	}
	if req.Search != "" {
		pattern := "%" + req.Search + "%"
		where = append(where, sq.Or{
			sq.ILike{"a.assessor_name": pattern},
			sq.ILike{"a.entity_name": pattern},
			sq.ILike{"e.location": pattern},
		})
	}
	return where
}

func orderClauses(req QueueRequest) []string {
	dir := "ASC"
	if req.SortOrder == "desc" {
		dir = "DESC"
	}

	var primary string
	switch req.SortBy {
	case "priority":
		primary = priorityRankSQL + " " + dir
	case "entity_name":
		primary = "a.entity_name " + dir
	case "type", "status", "date":
		col := map[string]string{"type": "a.type", "status": "a.verification_status", "date": "a.date"}[req.SortBy]
		primary = col + " " + dir
	}

	if req.SortBy == "priority" {
		return []string{primary, "a.date DESC"}
	}
	return []string{primary, priorityRankSQL + " DESC"}
}

func (r *PostgresRepo) List(ctx context.Context, req QueueRequest) ([]assessment.RapidAssessment, int, error) {
	base := psql().
		Select(assessmentColumns...).
		From("rapid_assessments a").
		LeftJoin("entities e ON e.id = a.entity_id")
	for _, w := range queueWhere(req, true) {
		base = base.Where(w)
	}
	query, args, err := base.
		OrderBy(orderClauses(req)...).
		Limit(uint64(req.Limit)).
		Offset(uint64((req.Page - 1) * req.Limit)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("queue list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("queue list: %w", err)
	}
	defer rows.Close()

	var out []assessment.RapidAssessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("queue list: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("queue list: %w", err)
	}

	countQuery := psql().
		Select("COUNT(*)").
		From("rapid_assessments a").
		LeftJoin("entities e ON e.id = a.entity_id")
	for _, w := range queueWhere(req, true) {
		countQuery = countQuery.Where(w)
	}
	query, args, err = countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("queue count: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("queue count: %w", err)
	}
	return out, total, nil
}

func (r *PostgresRepo) CountByPriority(ctx context.Context, req QueueRequest) (map[assessment.Priority]int, error) {
	q := psql().
		Select("a.priority", "COUNT(*)").
		From("rapid_assessments a").
		LeftJoin("entities e ON e.id = a.entity_id")
	for _, w := range queueWhere(req, false) {
		q = q.Where(w)
	}
	query, args, err := q.GroupBy("a.priority").ToSql()
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	counts := map[assessment.Priority]int{}
	for rows.Next() {
		var (
			p assessment.Priority
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("queue depth: %w", err)
		}
		counts[p] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue depth: %w", err)
	}
	return counts, nil
}

const setStatusSQL = `
UPDATE rapid_assessments
SET verification_status = $3,
    verified_at = $4,
    verified_by = $5,
    feedback = $6,
    updated_at = $4
WHERE id = $1 AND verification_status = $2`

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, from, to assessment.VerificationStatus, verifiedBy string, verifiedAt time.Time, feedback string) (bool, error) {
	res, err := r.db.ExecContext(ctx, setStatusSQL, id, from, to, verifiedAt, verifiedBy, feedback)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	return n == 1, nil
}

const avgWaitSQL = `
SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (NOW() - created_at)) / 60), 0)
FROM rapid_assessments
WHERE verification_status IN ('SUBMITTED', 'DRAFT')`

func (r *PostgresRepo) AvgPendingWaitMinutes(ctx context.Context) (float64, error) {
	var avg float64
	if err := r.db.QueryRowContext(ctx, avgWaitSQL).Scan(&avg); err != nil {
		return 0, fmt.Errorf("avg wait: %w", err)
	}
	return avg, nil
}

const verifiedCreatedSQL = `
SELECT
    COUNT(*) FILTER (WHERE verified_at >= $1 AND verification_status IN ('VERIFIED', 'AUTO_VERIFIED')),
    COUNT(*) FILTER (WHERE created_at >= $1)
FROM rapid_assessments`

func (r *PostgresRepo) VerifiedCreatedSince(ctx context.Context, since time.Time) (int, int, error) {
	var verified, created int
	if err := r.db.QueryRowContext(ctx, verifiedCreatedSQL, since).Scan(&verified, &created); err != nil {
		return 0, 0, fmt.Errorf("verification rate: %w", err)
	}
	return verified, created, nil
}

const oldestPendingSQL = `
SELECT MIN(created_at)
FROM rapid_assessments
WHERE verification_status IN ('SUBMITTED', 'DRAFT')`

func (r *PostgresRepo) OldestPendingAt(ctx context.Context) (*time.Time, error) {
	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx, oldestPendingSQL).Scan(&oldest); err != nil {
		return nil, fmt.Errorf("oldest pending: %w", err)
	}
	if !oldest.Valid {
		return nil, nil
	}
	t := oldest.Time
	return &t, nil
}
