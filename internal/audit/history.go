package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"response-platform/internal/user"
	"response-platform/pkg/logger"
)

// HistoryService answers coordinator queries over the auto-approval slice of
// the audit log. Every query is restricted a priori to AutoApprovalActions;
// caller-supplied action filters intersect the allow-list, never expand it.

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidHistoryRequest = errors.New("audit: invalid history request")

// ErrRollbackNotImplemented: rollback is surfaced in the API contract but not
// yet supported; entries stay append-only.
var ErrRollbackNotImplemented = errors.New("audit: rollback not implemented")

type HistoryRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	Action     Action `json:"action,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	Search     string `json:"search,omitempty"`

	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// HistoryFilters is the normalized filter set handed to repositories.
// Actions is always a subset of AutoApprovalActions.
type HistoryFilters struct {
	Actions    []Action
	From       time.Time
	To         time.Time
	UserID     string
	Resource   string
	ResourceID string
	Search     string
}

type HistoryRepository interface {
	List(ctx context.Context, f HistoryFilters, limit, offset int) ([]Entry, error)
	Count(ctx context.Context, f HistoryFilters) (int, error)
	Summarize(ctx context.Context, f HistoryFilters) (HistorySummary, error)
}

type HistorySummary struct {
	TotalEntries     int `json:"total_entries"`
	UniqueUsers      int `json:"unique_users"`
	BulkOperations   int `json:"bulk_operations"`
	SingleOperations int `json:"single_operations"`
}

// EntryView is an Entry enriched for display.
type EntryView struct {
	Entry
	UserName     string `json:"user_name"`
	ResourceName string `json:"resource_name"`
	Derived      Meta   `json:"derived_metadata"`
}

type HistoryPage struct {
	Entries  []EntryView    `json:"entries"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Summary  HistorySummary `json:"summary"`
}

type HistoryService struct {
	repo  HistoryRepository
	users user.Repository
}

func NewHistoryService(repo HistoryRepository, users user.Repository) *HistoryService {
	return &HistoryService{repo: repo, users: users}
}

func (s *HistoryService) History(ctx context.Context, req HistoryRequest) (HistoryPage, error) {
	f, page, pageSize, err := normalizeHistoryRequest(req)
	if err != nil {
		return HistoryPage{}, err
	}

	out := HistoryPage{Entries: []EntryView{}, Page: page, PageSize: pageSize}
	if len(f.Actions) == 0 {
		// Requested action is outside the allow-list: empty result, never an
		// expanded query.
		return out, nil
	}

	entries, err := s.repo.List(ctx, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return HistoryPage{}, err
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return HistoryPage{}, err
	}
	out.Total = total

	// Summary counts are auxiliary; degrade to zeros on failure.
	if summary, err := s.repo.Summarize(ctx, f); err != nil {
		logger.From(ctx).Warn("audit summary degraded", "err", err)
	} else {
		out.Summary = summary
	}

	out.Entries = s.enrich(ctx, entries)
	return out, nil
}

// ExportCSV streams the matching entries (no pagination) as CSV.
func (s *HistoryService) ExportCSV(ctx context.Context, req HistoryRequest, w io.Writer) error {
	f, _, _, err := normalizeHistoryRequest(req)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"id", "created_at", "user", "action", "resource_type", "resource_id", "bulk", "entities_affected", "scope", "reason"}
	if err := cw.Write(header); err != nil {
		return err
	}

	if len(f.Actions) > 0 {
		const exportBatch = 500
		for offset := 0; ; offset += exportBatch {
			entries, err := s.repo.List(ctx, f, exportBatch, offset)
			if err != nil {
				return err
			}
			for _, v := range s.enrich(ctx, entries) {
				rec := []string{
					v.ID,
					v.CreatedAt.UTC().Format(time.RFC3339),
					v.UserName,
					string(v.Action),
					v.ResourceType,
					v.ResourceID,
					strconv.FormatBool(v.Derived.BulkUpdate),
					strconv.Itoa(v.Derived.TotalEntitiesUpdated),
					v.Derived.Scope,
					v.Derived.Reason,
				}
				if err := cw.Write(rec); err != nil {
					return err
				}
			}
			if len(entries) < exportBatch {
				break
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// Rollback is a stub kept for API-contract parity with the dashboard.
func (s *HistoryService) Rollback(ctx context.Context, entryID string) error {
	if entryID == "" {
		return ErrInvalidHistoryRequest
	}
	return ErrRollbackNotImplemented
}

func (s *HistoryService) enrich(ctx context.Context, entries []Entry) []EntryView {
	ids := make([]string, 0, len(entries))
	seen := map[string]struct{}{}
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		if _, ok := seen[e.UserID]; ok {
			continue
		}
		seen[e.UserID] = struct{}{}
		ids = append(ids, e.UserID)
	}

	names := map[string]string{}
	if s.users != nil && len(ids) > 0 {
		// Name resolution is best-effort; unresolved actors fall back below.
		if resolved, err := s.users.NamesByIDs(ctx, ids); err == nil {
			names = resolved
		} else {
			logger.From(ctx).Warn("audit user resolution degraded", "err", err)
		}
	}

	out := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		v := EntryView{Entry: e}
		v.UserName = names[e.UserID]
		if v.UserName == "" {
			v.UserName = user.FallbackName
		}
		v.ResourceName = resourceName(e)
		v.Derived = extractMeta(e.Metadata)
		out = append(out, v)
	}
	return out
}

func normalizeHistoryRequest(req HistoryRequest) (HistoryFilters, int, int, error) {
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		return HistoryFilters{}, 0, 0, fmt.Errorf("%w: end date before start date", ErrInvalidHistoryRequest)
	}

	page := req.Page
	if page <= 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	f := HistoryFilters{
		From:       req.StartDate,
		To:         req.EndDate,
		UserID:     req.UserID,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Search:     req.Search,
	}
	if req.Action == "" {
		f.Actions = AutoApprovalActions
	} else if AllowedAction(req.Action) {
		f.Actions = []Action{req.Action}
	}
	// else: Actions stays empty and the query short-circuits to no rows.

	return f, page, pageSize, nil
}

// resourceName derives a display name from the value snapshots, best-effort.
func resourceName(e Entry) string {
	for _, raw := range []json.RawMessage{e.NewValue, e.OldValue} {
		if len(raw) == 0 {
			continue
		}
		var snapshot map[string]json.RawMessage
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			continue
		}
		for _, key := range []string{"entityName", "name"} {
			if v, ok := snapshot[key]; ok {
				var s string
				if err := json.Unmarshal(v, &s); err == nil && s != "" {
					return s
				}
			}
		}
	}
	return e.ResourceID
}

// extractMeta tolerates the heterogeneous metadata shapes of historical rows:
// absent fields yield zero values, numbers may arrive as strings, and
// non-object payloads yield an empty Meta rather than an error.
func extractMeta(raw json.RawMessage) Meta {
	var out Meta
	if len(raw) == 0 {
		return out
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}

	if v, ok := m["bulkUpdate"]; ok {
		_ = json.Unmarshal(v, &out.BulkUpdate)
	}
	if v, ok := m["totalEntitiesUpdated"]; ok {
		if err := json.Unmarshal(v, &out.TotalEntitiesUpdated); err != nil {
			var s string
			if json.Unmarshal(v, &s) == nil {
				if n, err := strconv.Atoi(s); err == nil {
					out.TotalEntitiesUpdated = n
				}
			}
		}
	}
	if v, ok := m["scope"]; ok {
		_ = json.Unmarshal(v, &out.Scope)
	}
	if v, ok := m["reason"]; ok {
		_ = json.Unmarshal(v, &out.Reason)
	}
	return out
}
