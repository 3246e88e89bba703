package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"response-platform/internal/assessment"
	"response-platform/internal/audit"
	"response-platform/internal/entity"
	"response-platform/pkg/validate"
)

// Service manages per-entity auto-approval configuration.
//
// Invariants:
// - Every write produces exactly one audit entry per affected entity.
// - Bulk writes are atomic: the store commits all entity updates plus all
//   audit entries or none of them.
// - Disabling never clears stored conditions; re-enabling without new
//   conditions restores the prior set.
type Service struct {
	store Store
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
)

// Actor identifies the caller for audit attribution.
type Actor struct {
	UserID    string
	Name      string
	IPAddress string
	UserAgent string
}

type ListFilters struct {
	EntityType  entity.Type
	EnabledOnly bool
}

// Conditions is the caller-supplied condition set. A nil *Conditions on a
// request means "keep whatever is stored".
type Conditions struct {
	AssessmentTypes       []string            `json:"assessmentTypes,omitempty"`
	ResponseTypes         []string            `json:"responseTypes,omitempty"`
	MaxPriority           assessment.Priority `json:"maxPriority,omitempty"`
	RequiresDocumentation bool                `json:"requiresDocumentation,omitempty"`
}

type BulkUpdateRequest struct {
	EntityIDs  []string     `json:"entityIds"`
	Enabled    bool         `json:"enabled"`
	Scope      entity.Scope `json:"scope,omitempty"`
	Conditions *Conditions  `json:"conditions,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

type UpdateRequest struct {
	Enabled    bool         `json:"enabled"`
	Scope      entity.Scope `json:"scope,omitempty"`
	Conditions *Conditions  `json:"conditions,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

// ConfigView is an entity annotated for the dashboard.
type ConfigView struct {
	Entity            entity.Entity             `json:"entity"`
	Config            entity.AutoApprovalConfig `json:"config"`
	AutoVerifiedCount int                       `json:"auto_verified_count"`
}

type ListSummary struct {
	TotalEntities     int `json:"total_entities"`
	Enabled           int `json:"enabled"`
	Disabled          int `json:"disabled"`
	TotalAutoVerified int `json:"total_auto_verified"`
}

// List returns active entities with their current configuration and
// per-entity auto-verified counts, sorted enabled-first then by name.
// No side effects.
func (s *Service) List(ctx context.Context, f ListFilters) ([]ConfigView, ListSummary, error) {
	entities, err := s.store.ListActive(ctx, f)
	if err != nil {
		return nil, ListSummary{}, err
	}

	// Counts are auxiliary; a failure degrades to zeros.
	counts, err := s.store.AutoVerifiedCounts(ctx)
	if err != nil {
		counts = map[string]int{}
	}

	views := make([]ConfigView, 0, len(entities))
	summary := ListSummary{TotalEntities: len(entities)}
	for _, e := range entities {
		cfg := effectiveConfig(e)
		if e.AutoApproveEnabled {
			summary.Enabled++
		} else {
			summary.Disabled++
		}
		n := counts[e.ID]
		summary.TotalAutoVerified += n
		views = append(views, ConfigView{Entity: e, Config: cfg, AutoVerifiedCount: n})
	}

	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Entity.AutoApproveEnabled != views[j].Entity.AutoApproveEnabled {
			return views[i].Entity.AutoApproveEnabled
		}
		return strings.ToLower(views[i].Entity.Name) < strings.ToLower(views[j].Entity.Name)
	})

	return views, summary, nil
}

// BulkUpdate rewrites the configuration of every matched active entity in a
// single transaction and appends one audit entry per entity.
func (s *Service) BulkUpdate(ctx context.Context, actor Actor, req BulkUpdateRequest) ([]entity.Entity, error) {
	if len(req.EntityIDs) == 0 {
		return nil, fmt.Errorf("%w: entityIds must not be empty", ErrValidation)
	}
	if err := validateConfigInput(req.Scope, req.Conditions); err != nil {
		return nil, err
	}

	entities, err := s.store.ActiveByIDs(ctx, req.EntityIDs)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no active entities match the requested ids", ErrNotFound)
	}

	now := s.clock().UTC()
	updates := make([]ConfigUpdate, 0, len(entities))
	auditEntries := make([]audit.Entry, 0, len(entities))

	for i := range entities {
		e := entities[i]
		oldCfg := effectiveConfig(e)

		newCfg := nextConfig(oldCfg, req.Enabled, req.Scope, req.Conditions, actor.UserID, now)
		e.AutoApproveEnabled = newCfg.Enabled
		e.Metadata.AutoApproval = &newCfg
		e.UpdatedAt = now

		updates = append(updates, ConfigUpdate{
			EntityID: e.ID,
			Enabled:  newCfg.Enabled,
			Metadata: e.Metadata,
		})

		entry, err := audit.Prepare(audit.Entry{
			UserID:       actor.UserID,
			Action:       audit.ActionBulkAutoApprovalUpdated,
			ResourceType: audit.ResourceEntity,
			ResourceID:   e.ID,
			OldValue:     configSnapshot(e.Name, oldCfg),
			NewValue:     configSnapshot(e.Name, newCfg),
			IPAddress:    actor.IPAddress,
			UserAgent:    actor.UserAgent,
			Metadata: audit.Meta{
				BulkUpdate:           true,
				TotalEntitiesUpdated: len(entities),
				Scope:                string(newCfg.Scope),
				Reason:               req.Reason,
			}.JSON(),
		}, now)
		if err != nil {
			return nil, err
		}
		auditEntries = append(auditEntries, entry)

		entities[i] = e
	}

	if err := s.store.Apply(ctx, updates, auditEntries); err != nil {
		return nil, err
	}
	return entities, nil
}

// Update is the single-entity variant used by the dashboard's per-entity
// toggle. Same write/audit pattern, no bulk metadata.
func (s *Service) Update(ctx context.Context, actor Actor, entityID string, req UpdateRequest) (entity.Entity, error) {
	if entityID == "" {
		return entity.Entity{}, fmt.Errorf("%w: entity id required", ErrValidation)
	}
	if err := validateConfigInput(req.Scope, req.Conditions); err != nil {
		return entity.Entity{}, err
	}

	matched, err := s.store.ActiveByIDs(ctx, []string{entityID})
	if err != nil {
		return entity.Entity{}, err
	}
	if len(matched) == 0 {
		return entity.Entity{}, fmt.Errorf("%w: entity %s", ErrNotFound, entityID)
	}
	e := matched[0]

	now := s.clock().UTC()
	oldCfg := effectiveConfig(e)
	newCfg := nextConfig(oldCfg, req.Enabled, req.Scope, req.Conditions, actor.UserID, now)

	e.AutoApproveEnabled = newCfg.Enabled
	e.Metadata.AutoApproval = &newCfg
	e.UpdatedAt = now

	entry, err := audit.Prepare(audit.Entry{
		UserID:       actor.UserID,
		Action:       singleUpdateAction(oldCfg.Enabled, newCfg.Enabled),
		ResourceType: audit.ResourceEntity,
		ResourceID:   e.ID,
		OldValue:     configSnapshot(e.Name, oldCfg),
		NewValue:     configSnapshot(e.Name, newCfg),
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
		Metadata: audit.Meta{
			Scope:  string(newCfg.Scope),
			Reason: req.Reason,
		}.JSON(),
	}, now)
	if err != nil {
		return entity.Entity{}, err
	}

	update := ConfigUpdate{EntityID: e.ID, Enabled: newCfg.Enabled, Metadata: e.Metadata}
	if err := s.store.Apply(ctx, []ConfigUpdate{update}, []audit.Entry{entry}); err != nil {
		return entity.Entity{}, err
	}
	return e, nil
}

// Decide evaluates an entity's configuration against a submission. Used by
// the intake path to stamp AUTO_VERIFIED.
func (s *Service) Decide(ctx context.Context, entityID string, kind entity.Kind, subType string, priority assessment.Priority, hasDocs bool) (bool, error) {
	matched, err := s.store.ActiveByIDs(ctx, []string{entityID})
	if err != nil {
		return false, err
	}
	if len(matched) == 0 {
		return false, nil
	}
	e := matched[0]
	if !e.AutoApproveEnabled {
		return false, nil
	}
	return e.Metadata.AutoApproval.Matches(kind, subType, priority, hasDocs), nil
}

// effectiveConfig returns the stored config with defaults applied, or a
// zero-value (disabled) config for entities never configured.
func effectiveConfig(e entity.Entity) entity.AutoApprovalConfig {
	if e.Metadata.AutoApproval == nil {
		return entity.AutoApprovalConfig{Enabled: e.AutoApproveEnabled}
	}
	cfg := *e.Metadata.AutoApproval
	cfg.Enabled = e.AutoApproveEnabled
	cfg.Normalize()
	return cfg
}

// nextConfig computes the replacement config.
// - Conditions supplied: overwrite the stored set, unspecified fields take
//   documented defaults.
// - Conditions omitted: keep the stored set (enables the disable/re-enable
//   round trip).
func nextConfig(old entity.AutoApprovalConfig, enabled bool, scope entity.Scope, cond *Conditions, actorID string, now time.Time) entity.AutoApprovalConfig {
	out := old
	out.Enabled = enabled

	if cond != nil {
		out.AssessmentTypes = cond.AssessmentTypes
		out.ResponseTypes = cond.ResponseTypes
		out.MaxPriority = cond.MaxPriority
		out.RequiresDocumentation = cond.RequiresDocumentation
		out.Scope = scope
	} else if scope != "" {
		out.Scope = scope
	}

	out.Normalize()
	out.LastModifiedBy = actorID
	out.LastModifiedAt = now
	return out
}

func singleUpdateAction(wasEnabled, nowEnabled bool) audit.Action {
	switch {
	case !wasEnabled && nowEnabled:
		return audit.ActionAutoApprovalEnabled
	case wasEnabled && !nowEnabled:
		return audit.ActionAutoApprovalDisabled
	default:
		return audit.ActionAutoApprovalConfigUpdated
	}
}

// validateConfigInput reports every invalid field at once so the client can
// fix a form in one round trip.
func validateConfigInput(scope entity.Scope, cond *Conditions) error {
	ve := validate.New(ErrValidation)
	if scope != "" && !entity.ValidScope(scope) {
		ve.Add("scope", "must be one of assessments, responses, both")
	}
	if cond != nil {
		if cond.MaxPriority != "" && !assessment.ValidPriority(cond.MaxPriority) {
			ve.Add("conditions.maxPriority", "must be one of LOW, MEDIUM, HIGH, CRITICAL")
		}
		for _, t := range cond.AssessmentTypes {
			if !assessment.ValidType(assessment.Type(t)) {
				ve.Add("conditions.assessmentTypes", "unknown assessment type %q", t)
			}
		}
	}
	return ve.Err()
}

type snapshot struct {
	EntityName string                    `json:"entityName"`
	Enabled    bool                      `json:"enabled"`
	Config     entity.AutoApprovalConfig `json:"config"`
}

func configSnapshot(name string, cfg entity.AutoApprovalConfig) json.RawMessage {
	raw, err := json.Marshal(snapshot{EntityName: name, Enabled: cfg.Enabled, Config: cfg})
	if err != nil {
		return nil
	}
	return raw
}
