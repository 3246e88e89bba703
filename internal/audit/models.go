package audit

import (
	"encoding/json"
	"time"
)

// Entry is an immutable, append-only audit log record.
//
// Invariants:
// - Entries are never updated or deleted.
// - One entry per state-changing operation, per affected resource.
// - Actor, ip and user-agent capture are best-effort; do not block critical
//   flows on audit enrichment.
//
// Storage (Postgres):
// - Table audit_log_entries with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.
type Entry struct {
	ID string `json:"id" db:"id"`

	// UserID is the acting user. Empty for rule-engine writes; views render
	// those with the "System User" fallback.
	UserID string `json:"user_id,omitempty" db:"user_id"`

	Action Action `json:"action" db:"action"`

	ResourceType string `json:"resource_type" db:"resource_type"`
	ResourceID   string `json:"resource_id" db:"resource_id"`

	// OldValue/NewValue are JSON snapshots of the resource state around the
	// change. Shapes vary across schema revisions; readers must extract
	// defensively.
	OldValue json.RawMessage `json:"old_value,omitempty" db:"old_value"`
	NewValue json.RawMessage `json:"new_value,omitempty" db:"new_value"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`

	// Metadata carries operation context (bulk flag, batch size, scope, reason).
	Metadata json.RawMessage `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Action string

const (
	ActionAutoApprovalEnabled       Action = "AUTO_APPROVAL_ENABLED"
	ActionAutoApprovalDisabled      Action = "AUTO_APPROVAL_DISABLED"
	ActionAutoApprovalConfigUpdated Action = "AUTO_APPROVAL_CONFIG_UPDATED"
	ActionBulkAutoApprovalUpdated   Action = "BULK_AUTO_APPROVAL_CONFIG_UPDATED"
	ActionAutoApprovalSettings      Action = "AUTO_APPROVAL_SETTINGS_UPDATED"
)

// AutoApprovalActions is the history allow-list. Callers may narrow it but
// can never query outside it.
var AutoApprovalActions = []Action{
	ActionAutoApprovalEnabled,
	ActionAutoApprovalDisabled,
	ActionAutoApprovalConfigUpdated,
	ActionBulkAutoApprovalUpdated,
	ActionAutoApprovalSettings,
}

func AllowedAction(a Action) bool {
	for _, allowed := range AutoApprovalActions {
		if a == allowed {
			return true
		}
	}
	return false
}

// Resource type names used in entries.
const (
	ResourceEntity          = "entity"
	ResourceRapidAssessment = "rapid_assessment"
	ResourceGlobalSettings  = "global_settings"
)

// Meta is the typed shape this service writes into Entry.Metadata. Reads
// must not assume it: historical rows carry divergent shapes.
type Meta struct {
	BulkUpdate           bool   `json:"bulkUpdate,omitempty"`
	TotalEntitiesUpdated int    `json:"totalEntitiesUpdated,omitempty"`
	Scope                string `json:"scope,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

func (m Meta) JSON() json.RawMessage {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return raw
}
