package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests. It implements
// both the write contract and HistoryRepository.
type MemoryRepo struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepo) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *MemoryRepo) List(ctx context.Context, f HistoryFilters, limit, offset int) ([]Entry, error) {
	matched := r.matching(f)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return []Entry{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryRepo) Count(ctx context.Context, f HistoryFilters) (int, error) {
	return len(r.matching(f)), nil
}

func (r *MemoryRepo) Summarize(ctx context.Context, f HistoryFilters) (HistorySummary, error) {
	matched := r.matching(f)
	out := HistorySummary{TotalEntries: len(matched)}
	users := map[string]struct{}{}
	for _, e := range matched {
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
		if extractMeta(e.Metadata).BulkUpdate || e.Action == ActionBulkAutoApprovalUpdated {
			out.BulkOperations++
		} else {
			out.SingleOperations++
		}
	}
	out.UniqueUsers = len(users)
	return out, nil
}

func (r *MemoryRepo) matching(f HistoryFilters) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	actionSet := map[Action]struct{}{}
	for _, a := range f.Actions {
		actionSet[a] = struct{}{}
	}

	out := make([]Entry, 0)
	for _, e := range r.entries {
		if _, ok := actionSet[e.Action]; !ok {
			continue
		}
		if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.CreatedAt.After(f.To) {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Resource != "" && e.ResourceType != f.Resource {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			hay := strings.ToLower(string(e.Action) + " " + e.ResourceID + " " + string(e.OldValue) + " " + string(e.NewValue))
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}
