package approval

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"response-platform/internal/assessment"
	"response-platform/internal/audit"
	"response-platform/internal/entity"
	"response-platform/pkg/validate"
)

func seedStore() *MemoryStore {
	store := NewMemoryStore()
	store.Put(entity.Entity{ID: "E1", Name: "Bidibidi Zone 3", Type: entity.TypeCamp, Active: true})
	store.Put(entity.Entity{ID: "E2", Name: "Adjumani Clinic", Type: entity.TypeFacility, Active: true})
	store.Put(entity.Entity{ID: "E3", Name: "Palorinya West", Type: entity.TypeCamp, Active: true})
	store.Put(entity.Entity{ID: "E9", Name: "Closed Site", Type: entity.TypeCamp, Active: false})
	return store
}

var actor = Actor{UserID: "coord-1", Name: "Grace O.", IPAddress: "10.0.0.9"}

func TestBulkUpdate_EmptyIDsIsValidationError(t *testing.T) {
	store := seedStore()
	svc := NewService(store)

	_, err := svc.BulkUpdate(context.Background(), actor, BulkUpdateRequest{EntityIDs: nil, Enabled: true})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(store.AuditEntries) != 0 {
		t.Fatalf("expected no writes before validation")
	}
}

func TestBulkUpdate_ReportsEveryInvalidField(t *testing.T) {
	store := seedStore()
	svc := NewService(store)

	_, err := svc.BulkUpdate(context.Background(), actor, BulkUpdateRequest{
		EntityIDs:  []string{"E1"},
		Enabled:    true,
		Scope:      "everything",
		Conditions: &Conditions{MaxPriority: "URGENT"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	var ve *validate.Error
	if !errors.As(err, &ve) {
		t.Fatalf("expected field errors, got %v", err)
	}
	if len(ve.Fields) != 2 {
		t.Fatalf("expected scope and maxPriority reported together, got %+v", ve.Fields)
	}
	if ve.Fields[0].Field != "scope" || ve.Fields[1].Field != "conditions.maxPriority" {
		t.Fatalf("unexpected fields: %+v", ve.Fields)
	}
	if len(store.AuditEntries) != 0 {
		t.Fatalf("expected no writes on invalid input")
	}
}

func TestBulkUpdate_NoActiveMatchesIsNotFound(t *testing.T) {
	svc := NewService(seedStore())

	_, err := svc.BulkUpdate(context.Background(), actor, BulkUpdateRequest{EntityIDs: []string{"E9", "nope"}, Enabled: true})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkUpdate_UpdatesAllAndAuditsEach(t *testing.T) {
	store := seedStore()
	svc := NewService(store)

	updated, err := svc.BulkUpdate(context.Background(), actor, BulkUpdateRequest{
		EntityIDs: []string{"E1", "E2", "E3"},
		Enabled:   true,
		Scope:     entity.ScopeBoth,
		Conditions: &Conditions{
			MaxPriority: assessment.PriorityHigh,
		},
	})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if len(updated) != 3 {
		t.Fatalf("expected 3 updated entities, got %d", len(updated))
	}
	for _, e := range updated {
		if !e.AutoApproveEnabled {
			t.Fatalf("expected enabled for %s", e.ID)
		}
		cfg := e.Metadata.AutoApproval
		if cfg == nil || cfg.Scope != entity.ScopeBoth || cfg.MaxPriority != assessment.PriorityHigh {
			t.Fatalf("unexpected config for %s: %+v", e.ID, cfg)
		}
	}

	if len(store.AuditEntries) != 3 {
		t.Fatalf("expected exactly 3 audit entries, got %d", len(store.AuditEntries))
	}
	for _, e := range store.AuditEntries {
		if e.Action != audit.ActionBulkAutoApprovalUpdated {
			t.Fatalf("unexpected action %s", e.Action)
		}
		m := e.Metadata
		if m == nil {
			t.Fatalf("expected bulk metadata")
		}
		var parsed audit.Meta
		if err := json.Unmarshal(m, &parsed); err != nil {
			t.Fatalf("metadata parse: %v", err)
		}
		if !parsed.BulkUpdate || parsed.TotalEntitiesUpdated != 3 {
			t.Fatalf("expected bulkUpdate=true totalEntitiesUpdated=3, got %+v", parsed)
		}
	}
}

func TestBulkUpdate_DefaultsScopeAndPriority(t *testing.T) {
	store := seedStore()
	svc := NewService(store)

	updated, err := svc.BulkUpdate(context.Background(), actor, BulkUpdateRequest{
		EntityIDs:  []string{"E1"},
		Enabled:    true,
		Conditions: &Conditions{},
	})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	cfg := updated[0].Metadata.AutoApproval
	if cfg.Scope != entity.ScopeAssessments {
		t.Fatalf("expected scope default assessments, got %s", cfg.Scope)
	}
	if cfg.MaxPriority != assessment.PriorityMedium {
		t.Fatalf("expected maxPriority default MEDIUM, got %s", cfg.MaxPriority)
	}
}

func TestDisableThenReenableRestoresConditions(t *testing.T) {
	store := seedStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Update(ctx, actor, "E1", UpdateRequest{
		Enabled: true,
		Scope:   entity.ScopeBoth,
		Conditions: &Conditions{
			AssessmentTypes:       []string{"FOOD", "WASH"},
			MaxPriority:           assessment.PriorityHigh,
			RequiresDocumentation: true,
		},
	}); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := svc.Update(ctx, actor, "E1", UpdateRequest{Enabled: false}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	e, _ := store.Get("E1")
	if e.AutoApproveEnabled {
		t.Fatalf("expected disabled")
	}
	if got := e.Metadata.AutoApproval; got == nil || len(got.AssessmentTypes) != 2 || !got.RequiresDocumentation {
		t.Fatalf("disable cleared stored conditions: %+v", got)
	}

	updated, err := svc.Update(ctx, actor, "E1", UpdateRequest{Enabled: true})
	if err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	cfg := updated.Metadata.AutoApproval
	if cfg.Scope != entity.ScopeBoth || cfg.MaxPriority != assessment.PriorityHigh || !cfg.RequiresDocumentation {
		t.Fatalf("re-enable lost conditions: %+v", cfg)
	}
	if len(cfg.AssessmentTypes) != 2 {
		t.Fatalf("re-enable lost assessment types: %+v", cfg.AssessmentTypes)
	}
}

func TestSingleUpdate_AuditActionReflectsTransition(t *testing.T) {
	store := seedStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Update(ctx, actor, "E2", UpdateRequest{Enabled: true}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := svc.Update(ctx, actor, "E2", UpdateRequest{Enabled: true, Conditions: &Conditions{MaxPriority: assessment.PriorityLow}}); err != nil {
		t.Fatalf("config update: %v", err)
	}
	if _, err := svc.Update(ctx, actor, "E2", UpdateRequest{Enabled: false}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	want := []audit.Action{
		audit.ActionAutoApprovalEnabled,
		audit.ActionAutoApprovalConfigUpdated,
		audit.ActionAutoApprovalDisabled,
	}
	if len(store.AuditEntries) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(store.AuditEntries))
	}
	for i, a := range want {
		if store.AuditEntries[i].Action != a {
			t.Fatalf("entry %d: expected %s, got %s", i, a, store.AuditEntries[i].Action)
		}
	}
}

func TestList_SortsEnabledFirstThenName(t *testing.T) {
	store := seedStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Update(ctx, actor, "E3", UpdateRequest{Enabled: true}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	store.SetAutoVerifiedCount("E3", 5)

	views, summary, err := svc.List(ctx, ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 active entities, got %d", len(views))
	}
	if views[0].Entity.ID != "E3" {
		t.Fatalf("expected enabled entity first, got %s", views[0].Entity.ID)
	}
	if views[1].Entity.Name > views[2].Entity.Name {
		t.Fatalf("expected name ordering among disabled entities")
	}
	if summary.Enabled != 1 || summary.Disabled != 2 || summary.TotalAutoVerified != 5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestDecide_RespectsScopeTypePriorityAndDocs(t *testing.T) {
	store := seedStore()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Update(ctx, actor, "E1", UpdateRequest{
		Enabled: true,
		Scope:   entity.ScopeAssessments,
		Conditions: &Conditions{
			AssessmentTypes:       []string{"FOOD"},
			MaxPriority:           assessment.PriorityHigh,
			RequiresDocumentation: true,
		},
	}); err != nil {
		t.Fatalf("enable: %v", err)
	}

	cases := []struct {
		name     string
		subType  string
		priority assessment.Priority
		hasDocs  bool
		want     bool
	}{
		{"matching", "FOOD", assessment.PriorityHigh, true, true},
		{"wrong type", "WASH", assessment.PriorityHigh, true, false},
		{"priority too high", "FOOD", assessment.PriorityCritical, true, false},
		{"missing docs", "FOOD", assessment.PriorityLow, false, false},
	}
	for _, tc := range cases {
		got, err := svc.Decide(ctx, "E1", entity.KindAssessment, tc.subType, tc.priority, tc.hasDocs)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %v", tc.name, tc.want)
		}
	}

	// Unknown entity never auto-verifies.
	if got, _ := svc.Decide(ctx, "nope", entity.KindAssessment, "FOOD", assessment.PriorityLow, true); got {
		t.Fatalf("expected false for unknown entity")
	}
}
