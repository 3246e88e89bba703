package verification

import (
	"context"
	"errors"
	"time"

	"response-platform/internal/assessment"
	"response-platform/pkg/validate"
)

var (
	ErrValidation    = errors.New("verification: validation failed")
	ErrNotFound      = errors.New("verification: not found")
	ErrSubmissionCap = errors.New("verification: too many submissions in flight")
)

// QueueRequest carries the coordinator dashboard's filter, sort and
// pagination state. All filters combine with AND semantics.
type QueueRequest struct {
	Statuses   []assessment.VerificationStatus
	EntityID   string
	Types      []assessment.Type
	Priorities []assessment.Priority
	DateFrom   *time.Time
	DateTo     *time.Time
	AssessorID string

	// Search is a case-insensitive substring match over assessor name,
	// entity name and entity location.
	Search string

	SortBy    string // date | priority | type | status | entity_name
	SortOrder string // asc | desc
	Page      int
	Limit     int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Repository is the persistence contract for rapid assessments. List and
// CountByPriority receive a normalized request; CountByPriority applies the
// same filters with the priority dimension removed.
type Repository interface {
	Insert(ctx context.Context, a assessment.RapidAssessment) error
	Get(ctx context.Context, id string) (assessment.RapidAssessment, error)
	List(ctx context.Context, req QueueRequest) ([]assessment.RapidAssessment, int, error)
	CountByPriority(ctx context.Context, req QueueRequest) (map[assessment.Priority]int, error)

	// SetStatus transitions id from one status to another, stamping the
	// verifier and feedback. Returns false when no row matched, which means
	// the assessment was transitioned concurrently or never existed.
	SetStatus(ctx context.Context, id string, from, to assessment.VerificationStatus, verifiedBy string, verifiedAt time.Time, feedback string) (bool, error)

	// Metric sub-queries. Callers treat each failure independently as a
	// degraded zero value, never as a request failure.
	AvgPendingWaitMinutes(ctx context.Context) (float64, error)
	VerifiedCreatedSince(ctx context.Context, since time.Time) (verified int, created int, err error)
	OldestPendingAt(ctx context.Context) (*time.Time, error)
}

var sortColumns = map[string]struct{}{
	"date":        {},
	"priority":    {},
	"type":        {},
	"status":      {},
	"entity_name": {},
}

// normalizeQueueRequest applies defaults and reports every invalid filter
// field at once.
func normalizeQueueRequest(req QueueRequest) (QueueRequest, error) {
	ve := validate.New(ErrValidation)

	if len(req.Statuses) == 0 {
		req.Statuses = []assessment.VerificationStatus{assessment.StatusSubmitted}
	}
	for _, s := range req.Statuses {
		if !assessment.ValidStatus(s) {
			ve.Add("status", "unknown status %q", s)
		}
	}
	for _, t := range req.Types {
		if !assessment.ValidType(t) {
			ve.Add("assessmentType", "unknown assessment type %q", t)
		}
	}
	for _, p := range req.Priorities {
		if !assessment.ValidPriority(p) {
			ve.Add("priority", "unknown priority %q", p)
		}
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
		ve.Add("dateTo", "precedes dateFrom")
	}

	if req.SortBy == "" {
		req.SortBy = "date"
	}
	if _, ok := sortColumns[req.SortBy]; !ok {
		ve.Add("sortBy", "unknown sort column %q", req.SortBy)
	}
	switch req.SortOrder {
	case "":
		req.SortOrder = "desc"
	case "asc", "desc":
	default:
		ve.Add("sortOrder", "must be asc or desc")
	}

	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = DefaultPageSize
	}
	if req.Limit > MaxPageSize {
		req.Limit = MaxPageSize
	}
	if err := ve.Err(); err != nil {
		return req, err
	}
	return req, nil
}
