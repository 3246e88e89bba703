package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"response-platform/internal/assessment"
)

// Entity is a physical or organizational location assessments are filed
// against: a camp, community, facility, school or shelter site.
type Entity struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Type      Type    `json:"type" db:"type"`
	Location  string  `json:"location" db:"location"`
	Latitude  float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude float64 `json:"longitude,omitempty" db:"longitude"`

	Active bool `json:"active" db:"active"`

	// AutoApproveEnabled mirrors Metadata.AutoApproval.Enabled for cheap
	// filtering; the metadata blob stays the source of truth for conditions.
	AutoApproveEnabled bool `json:"auto_approve_enabled" db:"auto_approve_enabled"`

	// Metadata is the free-form JSONB column. Only the autoApproval sub-object
	// is interpreted by this service; everything else passes through untouched.
	Metadata Metadata `json:"metadata" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Type string

const (
	TypeCamp        Type = "CAMP"
	TypeCommunity   Type = "COMMUNITY"
	TypeFacility    Type = "FACILITY"
	TypeSchool      Type = "SCHOOL"
	TypeShelterSite Type = "SHELTER_SITE"
	TypeOther       Type = "OTHER"
)

// Metadata models the entity metadata blob. Extra keys survive a
// marshal/unmarshal round trip via Extra so configuration writes cannot
// clobber unrelated metadata.
type Metadata struct {
	AutoApproval *AutoApprovalConfig
	Extra        map[string]json.RawMessage
}

const autoApprovalKey = "autoApproval"

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.AutoApproval != nil {
		out[autoApprovalKey] = m.AutoApproval
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	if v, ok := raw[autoApprovalKey]; ok {
		cfg := &AutoApprovalConfig{}
		if err := json.Unmarshal(v, cfg); err != nil {
			return err
		}
		m.AutoApproval = cfg
		delete(raw, autoApprovalKey)
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}

// Scan implements sql.Scanner so the jsonb column maps onto Metadata.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("entity: cannot scan %T into Metadata", src)
	}
}

// Value implements driver.Valuer for jsonb writes.
func (m Metadata) Value() (driver.Value, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Scope declares which submission kinds a configuration covers.
type Scope string

const (
	ScopeAssessments Scope = "assessments"
	ScopeResponses   Scope = "responses"
	ScopeBoth        Scope = "both"
)

func ValidScope(s Scope) bool {
	switch s {
	case ScopeAssessments, ScopeResponses, ScopeBoth:
		return true
	default:
		return false
	}
}

// Kind is the submission kind evaluated against a configuration scope.
type Kind string

const (
	KindAssessment Kind = "assessment"
	KindResponse   Kind = "response"
)

// AutoApprovalConfig is the per-entity rule set stored under
// metadata.autoApproval. Created on the first configuration write, then only
// overwritten; disabling keeps the conditions intact so a later re-enable
// restores them.
type AutoApprovalConfig struct {
	Enabled bool  `json:"enabled"`
	Scope   Scope `json:"scope"`

	// Empty type sets mean "all types allowed".
	AssessmentTypes []string `json:"assessmentTypes,omitempty"`
	ResponseTypes   []string `json:"responseTypes,omitempty"`

	MaxPriority           assessment.Priority `json:"maxPriority"`
	RequiresDocumentation bool                `json:"requiresDocumentation"`

	LastModifiedBy string    `json:"lastModifiedBy,omitempty"`
	LastModifiedAt time.Time `json:"lastModifiedAt,omitempty"`
}

// Normalize applies the documented defaults for omitted fields.
// Pre-migration rows that predate the scope field behave as scope
// "assessments" forever; see DESIGN.md for the open-question decision.
func (c *AutoApprovalConfig) Normalize() {
	if c.Scope == "" {
		c.Scope = ScopeAssessments
	}
	if c.MaxPriority == "" {
		c.MaxPriority = assessment.PriorityMedium
	}
}

// Matches decides whether a submission qualifies for auto-verification.
// All conditions are conjunctive.
func (c *AutoApprovalConfig) Matches(kind Kind, subType string, priority assessment.Priority, hasDocs bool) bool {
	if c == nil || !c.Enabled {
		return false
	}
	cfg := *c
	cfg.Normalize()

	switch kind {
	case KindAssessment:
		if cfg.Scope != ScopeAssessments && cfg.Scope != ScopeBoth {
			return false
		}
		if len(cfg.AssessmentTypes) > 0 && !containsString(cfg.AssessmentTypes, subType) {
			return false
		}
	case KindResponse:
		if cfg.Scope != ScopeResponses && cfg.Scope != ScopeBoth {
			return false
		}
		if len(cfg.ResponseTypes) > 0 && !containsString(cfg.ResponseTypes, subType) {
			return false
		}
	default:
		return false
	}

	if priority.Rank() < 0 || priority.Rank() > cfg.MaxPriority.Rank() {
		return false
	}
	if cfg.RequiresDocumentation && !hasDocs {
		return false
	}
	return true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
