package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"response-platform/internal/approval"
	"response-platform/internal/assessment"
	"response-platform/internal/draft"
	"response-platform/internal/entity"
)

var coordinator = Actor{UserID: "coord-1", Name: "Grace O."}
var assessor = Actor{UserID: "field-7", Name: "Okello P."}

func newFixture(t *testing.T) (*Service, *MemoryRepo, *approval.MemoryStore, *draft.MemoryStore) {
	t.Helper()
	repo := NewMemoryRepo()
	entities := approval.NewMemoryStore()
	entities.Put(entity.Entity{
		ID: "E1", Name: "Bidibidi Zone 3", Type: entity.TypeCamp,
		Location: "Yumbe District", Latitude: 3.45, Longitude: 31.38,
		Active: true,
	})
	drafts := draft.NewMemoryStore()
	svc := NewService(repo, entities, approval.NewService(entities), Options{Drafts: drafts})
	repo.EntityLocations["E1"] = "Yumbe District"
	return svc, repo, entities, drafts
}

func validCreate() CreateRequest {
	return CreateRequest{
		Type:     assessment.TypeFood,
		EntityID: "E1",
		Location: assessment.GPSCapture{
			Latitude: 3.4501, Longitude: 31.3799, AccuracyMeters: 8,
			CapturedAt: time.Now().UTC(), Method: assessment.CaptureGPS,
		},
		Payload:  assessment.EncodePayload(assessment.FoodPayload{FoodSource: "distribution", AvailableFoodDurationDays: 10}),
		Priority: assessment.PriorityMedium,
	}
}

func TestCreate_SubmittedByDefault(t *testing.T) {
	svc, _, _, _ := newFixture(t)

	got, err := svc.Create(context.Background(), assessor, validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != assessment.StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", got.Status)
	}
	if got.EntityName != "Bidibidi Zone 3" || got.AssessorName != "Okello P." {
		t.Fatalf("expected name snapshots, got %q / %q", got.EntityName, got.AssessorName)
	}
	if got.VerifiedAt != nil {
		t.Fatalf("expected no verification timestamp")
	}
}

func TestCreate_MissingGPSFallsBackToEntityCoords(t *testing.T) {
	svc, _, _, _ := newFixture(t)

	req := validCreate()
	req.Location = assessment.GPSCapture{}
	got, err := svc.Create(context.Background(), assessor, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Location.Method != assessment.CaptureManual {
		t.Fatalf("expected MANUAL capture, got %s", got.Location.Method)
	}
	if got.Location.Latitude != 3.45 || got.Location.Longitude != 31.38 {
		t.Fatalf("expected entity coordinates, got %v,%v", got.Location.Latitude, got.Location.Longitude)
	}
}

func TestCreate_RejectsMismatchedPayload(t *testing.T) {
	svc, _, _, _ := newFixture(t)

	req := validCreate()
	req.Payload = assessment.EncodePayload(assessment.SecurityPayload{IncidentCount: 2, ArmedPresence: true})
	_, err := svc.Create(context.Background(), assessor, req)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreate_UnknownEntityIsValidationError(t *testing.T) {
	svc, _, _, _ := newFixture(t)

	req := validCreate()
	req.EntityID = "nope"
	_, err := svc.Create(context.Background(), assessor, req)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func enableAutoApproval(t *testing.T, entities *approval.MemoryStore, entityID string, cond approval.Conditions) {
	t.Helper()
	apSvc := approval.NewService(entities)
	_, err := apSvc.Update(context.Background(), approval.Actor{UserID: "admin-1"}, entityID, approval.UpdateRequest{
		Enabled:    true,
		Scope:      entity.ScopeBoth,
		Conditions: &cond,
	})
	if err != nil {
		t.Fatalf("enable auto-approval: %v", err)
	}
}

func TestCreate_AutoVerifiesWhenConfigMatches(t *testing.T) {
	svc, _, entities, _ := newFixture(t)
	enableAutoApproval(t, entities, "E1", approval.Conditions{
		AssessmentTypes: []string{"FOOD"},
		MaxPriority:     assessment.PriorityHigh,
	})

	got, err := svc.Create(context.Background(), assessor, validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != assessment.StatusAutoVerified {
		t.Fatalf("expected AUTO_VERIFIED, got %s", got.Status)
	}
	if got.VerifiedAt == nil {
		t.Fatalf("expected verification timestamp")
	}
}

func TestCreate_NoAutoVerifyAbovePriorityCeiling(t *testing.T) {
	svc, _, entities, _ := newFixture(t)
	enableAutoApproval(t, entities, "E1", approval.Conditions{MaxPriority: assessment.PriorityMedium})

	req := validCreate()
	req.Priority = assessment.PriorityCritical
	got, err := svc.Create(context.Background(), assessor, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != assessment.StatusSubmitted {
		t.Fatalf("expected SUBMITTED above ceiling, got %s", got.Status)
	}
}

func TestCreate_NoAutoVerifyWithoutRequiredDocs(t *testing.T) {
	svc, _, entities, _ := newFixture(t)
	enableAutoApproval(t, entities, "E1", approval.Conditions{RequiresDocumentation: true})

	got, err := svc.Create(context.Background(), assessor, validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != assessment.StatusSubmitted {
		t.Fatalf("expected SUBMITTED without docs, got %s", got.Status)
	}

	req := validCreate()
	req.PhotoRefs = []string{"photos/abc.jpg"}
	got, err = svc.Create(context.Background(), assessor, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != assessment.StatusAutoVerified {
		t.Fatalf("expected AUTO_VERIFIED with docs, got %s", got.Status)
	}
}

func TestCreate_DeletesSubmittedDraft(t *testing.T) {
	svc, _, _, drafts := newFixture(t)
	ctx := context.Background()

	err := drafts.Upsert(ctx, assessment.TypeFood, assessor.UserID, draft.Draft{ID: "d1", AutoSaved: true})
	if err != nil {
		t.Fatalf("seed draft: %v", err)
	}

	req := validCreate()
	req.DraftID = "d1"
	if _, err := svc.Create(ctx, assessor, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	left, _ := drafts.List(ctx, assessment.TypeFood, assessor.UserID)
	if len(left) != 0 {
		t.Fatalf("expected draft removed after submit, found %d", len(left))
	}
}

func TestVerify_TransitionsSubmittedOnly(t *testing.T) {
	svc, _, _, _ := newFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, assessor, validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Verify(ctx, coordinator, created.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Status != assessment.StatusVerified || got.VerifiedBy != coordinator.UserID {
		t.Fatalf("unexpected result: %s by %q", got.Status, got.VerifiedBy)
	}

	// Terminal assessments do not transition again.
	if _, err := svc.Verify(ctx, coordinator, created.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation on double verify, got %v", err)
	}
	if _, err := svc.Reject(ctx, coordinator, created.ID, "stale"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation on reject after verify, got %v", err)
	}
}

func TestReject_RequiresFeedback(t *testing.T) {
	svc, _, _, _ := newFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, assessor, validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Reject(ctx, coordinator, created.ID, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without feedback, got %v", err)
	}

	got, err := svc.Reject(ctx, coordinator, created.ID, "GPS fix is 40km from the site")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != assessment.StatusRejected || got.Feedback == "" {
		t.Fatalf("unexpected result: %s feedback=%q", got.Status, got.Feedback)
	}
}

func TestVerify_UnknownIDIsNotFound(t *testing.T) {
	svc, _, _, _ := newFixture(t)
	if _, err := svc.Verify(context.Background(), coordinator, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
