package draft

import (
	"context"
	"sort"
	"sync"

	"response-platform/internal/assessment"
)

// MemoryStore is the in-memory Store used by tests and local development
// without Redis.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]map[string]Draft // hash key -> draft id -> draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]map[string]Draft{}}
}

func (s *MemoryStore) List(ctx context.Context, t assessment.Type, userID string) ([]Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.drafts[Key(t, userID)]
	out := make([]Draft, 0, len(bucket))
	for _, d := range bucket {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, t assessment.Type, userID string, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(t, userID)
	if s.drafts[key] == nil {
		s.drafts[key] = map[string]Draft{}
	}
	s.drafts[key][d.ID] = d
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, t assessment.Type, userID string, draftID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.drafts[Key(t, userID)]
	if _, ok := bucket[draftID]; !ok {
		return ErrNotFound
	}
	delete(bucket, draftID)
	return nil
}
