package approval

import (
	"context"

	"response-platform/internal/audit"
	"response-platform/internal/entity"
)

// ConfigUpdate is one entity's pending configuration write.
type ConfigUpdate struct {
	EntityID string
	Enabled  bool
	Metadata entity.Metadata
}

// Store is the persistence contract for configuration reads and writes.
//
// Apply MUST be atomic: all updates and all audit entries commit together or
// none do. The no-partial-bulk-update guarantee lives here, not in the
// service.
type Store interface {
	ListActive(ctx context.Context, f ListFilters) ([]entity.Entity, error)
	ActiveByIDs(ctx context.Context, ids []string) ([]entity.Entity, error)
	AutoVerifiedCounts(ctx context.Context) (map[string]int, error)
	Apply(ctx context.Context, updates []ConfigUpdate, entries []audit.Entry) error
}
