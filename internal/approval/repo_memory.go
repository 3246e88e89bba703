package approval

import (
	"context"
	"fmt"
	"sync"

	"response-platform/internal/audit"
	"response-platform/internal/entity"
)

// MemoryStore is an in-memory Store for tests. Apply mirrors the
// transactional contract: it validates every update before mutating state so
// a failing batch leaves nothing behind.
type MemoryStore struct {
	mu       sync.Mutex
	entities map[string]entity.Entity
	counts   map[string]int

	AuditEntries []audit.Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: map[string]entity.Entity{}, counts: map[string]int{}}
}

func (s *MemoryStore) Put(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = e
}

func (s *MemoryStore) SetAutoVerifiedCount(entityID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[entityID] = n
}

func (s *MemoryStore) Get(id string) (entity.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	return e, ok
}

func (s *MemoryStore) ListActive(ctx context.Context, f ListFilters) ([]entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Entity, 0)
	for _, e := range s.entities {
		if !e.Active {
			continue
		}
		if f.EntityType != "" && e.Type != f.EntityType {
			continue
		}
		if f.EnabledOnly && !e.AutoApproveEnabled {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) ActiveByIDs(ctx context.Context, ids []string) ([]entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok && e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) AutoVerifiedCounts(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Apply(ctx context.Context, updates []ConfigUpdate, entries []audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		e, ok := s.entities[u.EntityID]
		if !ok || !e.Active {
			return fmt.Errorf("%w: entity %s no longer active", ErrNotFound, u.EntityID)
		}
	}

	for _, u := range updates {
		e := s.entities[u.EntityID]
		e.AutoApproveEnabled = u.Enabled
		e.Metadata = u.Metadata
		s.entities[u.EntityID] = e
	}
	s.AuditEntries = append(s.AuditEntries, entries...)
	return nil
}
