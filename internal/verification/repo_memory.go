package verification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"response-platform/internal/assessment"
)

// MemoryRepo mirrors the Postgres queue semantics in memory for tests.
// EntityLocations stands in for the entities join used by search.
type MemoryRepo struct {
	mu              sync.RWMutex
	assessments     map[string]assessment.RapidAssessment
	EntityLocations map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		assessments:     map[string]assessment.RapidAssessment{},
		EntityLocations: map[string]string{},
	}
}

func (r *MemoryRepo) Insert(ctx context.Context, a assessment.RapidAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assessments[a.ID]; ok {
		return fmt.Errorf("insert assessment: duplicate id %s", a.ID)
	}
	r.assessments[a.ID] = a
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (assessment.RapidAssessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assessments[id]
	if !ok {
		return assessment.RapidAssessment{}, fmt.Errorf("%w: assessment %s", ErrNotFound, id)
	}
	return a, nil
}

func (r *MemoryRepo) matches(a assessment.RapidAssessment, req QueueRequest, includePriority bool) bool {
	if !containsStatus(req.Statuses, a.Status) {
		return false
	}
	if req.EntityID != "" && a.EntityID != req.EntityID {
		return false
	}
	if len(req.Types) > 0 && !containsType(req.Types, a.Type) {
		return false
	}
	if includePriority && len(req.Priorities) > 0 && !containsPriority(req.Priorities, a.Priority) {
		return false
	}
	if req.DateFrom != nil && a.Date.Before(*req.DateFrom) {
		return false
	}
	if req.DateTo != nil && a.Date.After(*req.DateTo) {
		return false
	}
	if req.AssessorID != "" && a.AssessorID != req.AssessorID {
		return false
	}
	if req.Search != "" {
		needle := strings.ToLower(req.Search)
		loc := strings.ToLower(r.EntityLocations[a.EntityID])
		if !strings.Contains(strings.ToLower(a.AssessorName), needle) &&
			!strings.Contains(strings.ToLower(a.EntityName), needle) &&
			!strings.Contains(loc, needle) {
			return false
		}
	}
	return true
}

func (r *MemoryRepo) List(ctx context.Context, req QueueRequest) ([]assessment.RapidAssessment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []assessment.RapidAssessment
	for _, a := range r.assessments {
		if r.matches(a, req, true) {
			matched = append(matched, a)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool { return queueLess(matched[i], matched[j], req) })

	total := len(matched)
	start := (req.Page - 1) * req.Limit
	if start >= total {
		return nil, total, nil
	}
	end := start + req.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func queueLess(a, b assessment.RapidAssessment, req QueueRequest) bool {
	asc := req.SortOrder != "desc"

	cmp := 0
	switch req.SortBy {
	case "priority":
		cmp = a.Priority.Rank() - b.Priority.Rank()
	case "type":
		cmp = strings.Compare(string(a.Type), string(b.Type))
	case "status":
		cmp = strings.Compare(string(a.Status), string(b.Status))
	case "entity_name":
		cmp = strings.Compare(a.EntityName, b.EntityName)
	default:
		cmp = compareTime(a.Date, b.Date)
	}
	if cmp != 0 {
		if asc {
			return cmp < 0
		}
		return cmp > 0
	}

	// Secondary key: priority descending, or date descending when priority
	// is already the primary sort.
	if req.SortBy == "priority" {
		return compareTime(a.Date, b.Date) > 0
	}
	return a.Priority.Rank() > b.Priority.Rank()
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func (r *MemoryRepo) CountByPriority(ctx context.Context, req QueueRequest) (map[assessment.Priority]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[assessment.Priority]int{}
	for _, a := range r.assessments {
		if r.matches(a, req, false) {
			counts[a.Priority]++
		}
	}
	return counts, nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, from, to assessment.VerificationStatus, verifiedBy string, verifiedAt time.Time, feedback string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assessments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	a.VerifiedAt = &verifiedAt
	a.VerifiedBy = verifiedBy
	a.Feedback = feedback
	a.UpdatedAt = verifiedAt
	r.assessments[id] = a
	return true, nil
}

func (r *MemoryRepo) AvgPendingWaitMinutes(ctx context.Context) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum float64
	var n int
	now := time.Now().UTC()
	for _, a := range r.assessments {
		if a.Status == assessment.StatusSubmitted || a.Status == assessment.StatusDraft {
			sum += now.Sub(a.CreatedAt).Minutes()
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (r *MemoryRepo) VerifiedCreatedSince(ctx context.Context, since time.Time) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var verified, created int
	for _, a := range r.assessments {
		if !a.CreatedAt.Before(since) {
			created++
		}
		if a.VerifiedAt != nil && !a.VerifiedAt.Before(since) &&
			(a.Status == assessment.StatusVerified || a.Status == assessment.StatusAutoVerified) {
			verified++
		}
	}
	return verified, created, nil
}

func (r *MemoryRepo) OldestPendingAt(ctx context.Context) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var oldest *time.Time
	for _, a := range r.assessments {
		if a.Status != assessment.StatusSubmitted && a.Status != assessment.StatusDraft {
			continue
		}
		t := a.CreatedAt
		if oldest == nil || t.Before(*oldest) {
			oldest = &t
		}
	}
	return oldest, nil
}

func containsStatus(set []assessment.VerificationStatus, v assessment.VerificationStatus) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(set []assessment.Type, v assessment.Type) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsPriority(set []assessment.Priority, v assessment.Priority) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
