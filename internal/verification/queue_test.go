package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"response-platform/internal/approval"
	"response-platform/internal/assessment"
	"response-platform/internal/entity"
)

func queueFixture(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	entities := approval.NewMemoryStore()
	entities.Put(entity.Entity{ID: "E1", Name: "Bidibidi Zone 3", Location: "Yumbe District", Active: true})
	entities.Put(entity.Entity{ID: "E2", Name: "Adjumani Clinic", Location: "Adjumani", Active: true})
	repo.EntityLocations["E1"] = "Yumbe District"
	repo.EntityLocations["E2"] = "Adjumani"
	svc := NewService(repo, entities, approval.NewService(entities), Options{})
	return svc, repo
}

func seedQueue(t *testing.T, repo *MemoryRepo) {
	t.Helper()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	rows := []assessment.RapidAssessment{
		{ID: "a1", Type: assessment.TypeFood, Date: base, EntityID: "E1", EntityName: "Bidibidi Zone 3",
			AssessorID: "field-7", AssessorName: "Okello P.", Status: assessment.StatusSubmitted,
			Priority: assessment.PriorityCritical, CreatedAt: base},
		{ID: "a2", Type: assessment.TypeWASH, Date: base.Add(24 * time.Hour), EntityID: "E1", EntityName: "Bidibidi Zone 3",
			AssessorID: "field-8", AssessorName: "Achen M.", Status: assessment.StatusSubmitted,
			Priority: assessment.PriorityLow, CreatedAt: base.Add(24 * time.Hour)},
		{ID: "a3", Type: assessment.TypeHealth, Date: base.Add(48 * time.Hour), EntityID: "E2", EntityName: "Adjumani Clinic",
			AssessorID: "field-7", AssessorName: "Okello P.", Status: assessment.StatusSubmitted,
			Priority: assessment.PriorityHigh, CreatedAt: base.Add(48 * time.Hour)},
		{ID: "a4", Type: assessment.TypeFood, Date: base.Add(72 * time.Hour), EntityID: "E2", EntityName: "Adjumani Clinic",
			AssessorID: "field-8", AssessorName: "Achen M.", Status: assessment.StatusVerified,
			Priority: assessment.PriorityMedium, CreatedAt: base.Add(72 * time.Hour)},
	}
	for _, a := range rows {
		if err := repo.Insert(context.Background(), a); err != nil {
			t.Fatalf("seed %s: %v", a.ID, err)
		}
	}
}

func TestQueue_DefaultsToSubmitted(t *testing.T) {
	svc, repo := queueFixture(t)
	seedQueue(t, repo)

	page, err := svc.Queue(context.Background(), QueueRequest{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 submitted, got %d", page.Total)
	}
	for _, a := range page.Assessments {
		if a.Status != assessment.StatusSubmitted {
			t.Fatalf("unexpected status %s in default queue", a.Status)
		}
	}
	// Default sort is date descending.
	if page.Assessments[0].ID != "a3" {
		t.Fatalf("expected newest first, got %s", page.Assessments[0].ID)
	}
}

func TestQueue_PrioritySortUsesSeverityOrder(t *testing.T) {
	svc, repo := queueFixture(t)
	seedQueue(t, repo)

	page, err := svc.Queue(context.Background(), QueueRequest{SortBy: "priority", SortOrder: "desc"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	got := []string{page.Assessments[0].ID, page.Assessments[1].ID, page.Assessments[2].ID}
	// CRITICAL > HIGH > LOW, not alphabetical.
	want := []string{"a1", "a3", "a2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestQueue_SecondarySortIsPriorityDesc(t *testing.T) {
	svc, repo := queueFixture(t)
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	// Same date, different priorities.
	for _, a := range []assessment.RapidAssessment{
		{ID: "x1", Type: assessment.TypeFood, Date: base, EntityID: "E1", Status: assessment.StatusSubmitted, Priority: assessment.PriorityLow, CreatedAt: base},
		{ID: "x2", Type: assessment.TypeFood, Date: base, EntityID: "E1", Status: assessment.StatusSubmitted, Priority: assessment.PriorityCritical, CreatedAt: base},
	} {
		if err := repo.Insert(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := svc.Queue(context.Background(), QueueRequest{SortBy: "date", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Assessments[0].ID != "x2" {
		t.Fatalf("expected critical first within same date, got %s", page.Assessments[0].ID)
	}
}

func TestQueue_FiltersCombineWithAND(t *testing.T) {
	svc, repo := queueFixture(t)
	seedQueue(t, repo)

	page, err := svc.Queue(context.Background(), QueueRequest{
		AssessorID: "field-7",
		Types:      []assessment.Type{assessment.TypeHealth},
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Total != 1 || page.Assessments[0].ID != "a3" {
		t.Fatalf("expected only a3, got %+v", page.Assessments)
	}
}

func TestQueue_SearchMatchesEntityLocation(t *testing.T) {
	svc, repo := queueFixture(t)
	seedQueue(t, repo)

	page, err := svc.Queue(context.Background(), QueueRequest{Search: "yumbe"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 matches in Yumbe, got %d", page.Total)
	}

	page, err = svc.Queue(context.Background(), QueueRequest{Search: "okello"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 matches for assessor name, got %d", page.Total)
	}
}

func TestQueue_DepthIgnoresPriorityFilter(t *testing.T) {
	svc, repo := queueFixture(t)
	seedQueue(t, repo)

	page, err := svc.Queue(context.Background(), QueueRequest{
		Priorities: []assessment.Priority{assessment.PriorityCritical},
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 critical row, got %d", page.Total)
	}
	// Depth still reflects the full submitted queue.
	if page.QueueDepth.Critical != 1 || page.QueueDepth.High != 1 || page.QueueDepth.Low != 1 {
		t.Fatalf("unexpected depth %+v", page.QueueDepth)
	}
}

func TestQueue_Pagination(t *testing.T) {
	svc, repo := queueFixture(t)
	seedQueue(t, repo)

	page, err := svc.Queue(context.Background(), QueueRequest{Limit: 2, Page: 2})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Total != 3 || len(page.Assessments) != 1 {
		t.Fatalf("expected 1 row on page 2 of 3 total, got %d of %d", len(page.Assessments), page.Total)
	}

	if _, err := svc.Queue(context.Background(), QueueRequest{Limit: 500}); err != nil {
		t.Fatalf("oversized limit should clamp, got %v", err)
	}
}

func TestQueue_RejectsUnknownFilterValues(t *testing.T) {
	svc, _ := queueFixture(t)
	cases := []QueueRequest{
		{Statuses: []assessment.VerificationStatus{"PENDINGISH"}},
		{Types: []assessment.Type{"CASH"}},
		{Priorities: []assessment.Priority{"URGENT"}},
		{SortBy: "assessor_shoe_size"},
		{SortOrder: "sideways"},
	}
	for i, req := range cases {
		if _, err := svc.Queue(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestQueue_MetricsVerificationRate(t *testing.T) {
	svc, repo := queueFixture(t)
	now := time.Now().UTC()
	verifiedAt := now.Add(-time.Hour)
	for _, a := range []assessment.RapidAssessment{
		{ID: "m1", Type: assessment.TypeFood, EntityID: "E1", Status: assessment.StatusSubmitted, Priority: assessment.PriorityLow, CreatedAt: now.Add(-2 * time.Hour), Date: now},
		{ID: "m2", Type: assessment.TypeFood, EntityID: "E1", Status: assessment.StatusVerified, Priority: assessment.PriorityLow, CreatedAt: now.Add(-3 * time.Hour), Date: now, VerifiedAt: &verifiedAt},
	} {
		if err := repo.Insert(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := svc.Queue(context.Background(), QueueRequest{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Metrics.VerificationRate24h != 0.5 {
		t.Fatalf("expected rate 0.5, got %v", page.Metrics.VerificationRate24h)
	}
	if page.Metrics.OldestPendingAt == nil {
		t.Fatalf("expected oldest pending timestamp")
	}
	if page.Metrics.AvgWaitMinutes <= 0 {
		t.Fatalf("expected positive average wait")
	}
}

// flakyMetricsRepo fails every depth and metrics query while leaving the
// queue page queries intact.
type flakyMetricsRepo struct {
	*MemoryRepo
}

var errMetricsDown = errors.New("metrics store unavailable")

func (r *flakyMetricsRepo) CountByPriority(ctx context.Context, req QueueRequest) (map[assessment.Priority]int, error) {
	return nil, errMetricsDown
}

func (r *flakyMetricsRepo) AvgPendingWaitMinutes(ctx context.Context) (float64, error) {
	return 0, errMetricsDown
}

func (r *flakyMetricsRepo) VerifiedCreatedSince(ctx context.Context, since time.Time) (int, int, error) {
	return 0, 0, errMetricsDown
}

func (r *flakyMetricsRepo) OldestPendingAt(ctx context.Context) (*time.Time, error) {
	return nil, errMetricsDown
}

func TestQueue_MetricsAndDepthDegradeOnFailure(t *testing.T) {
	inner := NewMemoryRepo()
	entities := approval.NewMemoryStore()
	entities.Put(entity.Entity{ID: "E1", Name: "Bidibidi Zone 3", Active: true})
	seedQueue(t, inner)
	svc := NewService(&flakyMetricsRepo{MemoryRepo: inner}, entities, approval.NewService(entities), Options{})

	page, err := svc.Queue(context.Background(), QueueRequest{})
	if err != nil {
		t.Fatalf("queue should survive metrics failures: %v", err)
	}
	if page.Total != 3 || len(page.Assessments) != 3 {
		t.Fatalf("expected full page despite metric failures, got %d of %d", len(page.Assessments), page.Total)
	}
	if page.QueueDepth != (Depth{}) {
		t.Fatalf("expected zero depth when the count query fails, got %+v", page.QueueDepth)
	}
	if page.Metrics.AvgWaitMinutes != 0 || page.Metrics.VerificationRate24h != 0 {
		t.Fatalf("expected zero metrics, got %+v", page.Metrics)
	}
	if page.Metrics.OldestPendingAt != nil {
		t.Fatalf("expected nil oldest pending when its query fails")
	}
}

func TestQueue_MetricsEmptyQueue(t *testing.T) {
	svc, _ := queueFixture(t)

	page, err := svc.Queue(context.Background(), QueueRequest{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if page.Metrics.OldestPendingAt != nil {
		t.Fatalf("expected nil oldest pending on empty queue")
	}
	if page.Metrics.VerificationRate24h != 0 || page.Metrics.AvgWaitMinutes != 0 {
		t.Fatalf("expected zero metrics, got %+v", page.Metrics)
	}
}
