package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit entries.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) error
}

// Service writes audit entries.
//
// Callers that need the entry inside a wider transaction (bulk configuration
// updates) do not go through this service; they build entries with Prepare
// and persist them through their own transactional store.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	e, err := Prepare(e, s.clock().UTC())
	if err != nil {
		return err
	}
	return s.repo.Append(ctx, e)
}

// Prepare validates an entry and stamps id/timestamp. Exposed so
// transactional writers can build entries without a Service.
func Prepare(e Entry, now time.Time) (Entry, error) {
	if e.Action == "" {
		return Entry{}, ErrInvalidEntry
	}
	if e.ResourceType == "" || e.ResourceID == "" {
		return Entry{}, ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return e, nil
}
