package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"response-platform/internal/assessment"
	"response-platform/internal/draft"
	"response-platform/internal/entity"
	"response-platform/pkg/logger"
	"response-platform/pkg/utils"
)

// EntityDirectory resolves entities referenced by submissions. Satisfied by
// the approval stores.
type EntityDirectory interface {
	ActiveByIDs(ctx context.Context, ids []string) ([]entity.Entity, error)
}

// Approver decides whether a submission qualifies for auto-verification.
// Satisfied by the approval service.
type Approver interface {
	Decide(ctx context.Context, entityID string, kind entity.Kind, subType string, priority assessment.Priority, hasDocs bool) (bool, error)
}

type Actor struct {
	UserID string
	Name   string
}

// Options carries the optional Redis-backed pieces. A nil Redis client
// disables the metrics cache and the submission cap; a nil draft store
// disables delete-on-submit.
type Options struct {
	Drafts           draft.Store
	Redis            *redis.Client
	MetricsTTL       time.Duration
	SubmissionCap    int
	SubmissionCapTTL time.Duration
}

type Service struct {
	repo     Repository
	entities EntityDirectory
	approver Approver
	opts     Options
	clock    func() time.Time
	newID    func() string
}

func NewService(repo Repository, entities EntityDirectory, approver Approver, opts Options) *Service {
	if opts.MetricsTTL <= 0 {
		opts.MetricsTTL = 30 * time.Second
	}
	if opts.SubmissionCap <= 0 {
		opts.SubmissionCap = 3
	}
	if opts.SubmissionCapTTL <= 0 {
		opts.SubmissionCapTTL = 30 * time.Second
	}
	return &Service{
		repo:     repo,
		entities: entities,
		approver: approver,
		opts:     opts,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

func errorsf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Depth is the per-priority count of queue items under the active filters,
// priority dimension excluded.
type Depth struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

type Metrics struct {
	AvgWaitMinutes      float64    `json:"avgWaitMinutes"`
	VerificationRate24h float64    `json:"verificationRate24h"`
	OldestPendingAt     *time.Time `json:"oldestPendingAt"`
}

type QueuePage struct {
	Assessments []assessment.WithGaps `json:"assessments"`
	Total       int                   `json:"total"`
	Page        int                   `json:"page"`
	Limit       int                   `json:"limit"`
	QueueDepth  Depth                 `json:"queueDepth"`
	Metrics     Metrics               `json:"metrics"`
}

const metricsCacheKey = "verification:queue-metrics"

// Queue returns one page of the coordinator verification queue plus queue
// depth and dashboard metrics. Depth and metrics degrade to zero values when
// their queries fail; the page itself does not.
func (s *Service) Queue(ctx context.Context, req QueueRequest) (QueuePage, error) {
	req, err := normalizeQueueRequest(req)
	if err != nil {
		return QueuePage{}, err
	}

	rows, total, err := s.repo.List(ctx, req)
	if err != nil {
		return QueuePage{}, err
	}

	page := QueuePage{
		Assessments: make([]assessment.WithGaps, 0, len(rows)),
		Total:       total,
		Page:        req.Page,
		Limit:       req.Limit,
	}
	for _, a := range rows {
		page.Assessments = append(page.Assessments, assessment.Decorate(a))
	}

	if counts, err := s.repo.CountByPriority(ctx, req); err != nil {
		logger.From(ctx).Warn("queue depth query failed", "error", err)
	} else {
		page.QueueDepth = Depth{
			Critical: counts[assessment.PriorityCritical],
			High:     counts[assessment.PriorityHigh],
			Medium:   counts[assessment.PriorityMedium],
			Low:      counts[assessment.PriorityLow],
		}
	}

	page.Metrics = s.metrics(ctx)
	return page, nil
}

// metrics computes the dashboard metrics, serving from the Redis cache when
// fresh. Each sub-query degrades independently.
func (s *Service) metrics(ctx context.Context) Metrics {
	log := logger.From(ctx)

	if s.opts.Redis != nil {
		var cached Metrics
		err := utils.CacheGetJSON(ctx, s.opts.Redis, metricsCacheKey, &cached)
		if err == nil {
			return cached
		}
		if !errors.Is(err, utils.ErrCacheMiss) {
			log.Warn("queue metrics cache read failed", "error", err)
		}
	}

	var m Metrics
	if avg, err := s.repo.AvgPendingWaitMinutes(ctx); err != nil {
		log.Warn("avg wait query failed", "error", err)
	} else {
		m.AvgWaitMinutes = avg
	}

	since := s.clock().UTC().Add(-24 * time.Hour)
	if verified, created, err := s.repo.VerifiedCreatedSince(ctx, since); err != nil {
		log.Warn("verification rate query failed", "error", err)
	} else if created > 0 {
		m.VerificationRate24h = float64(verified) / float64(created)
	}

	if oldest, err := s.repo.OldestPendingAt(ctx); err != nil {
		log.Warn("oldest pending query failed", "error", err)
	} else {
		m.OldestPendingAt = oldest
	}

	if s.opts.Redis != nil {
		if err := utils.CacheSetJSON(ctx, s.opts.Redis, metricsCacheKey, m, s.opts.MetricsTTL); err != nil {
			log.Warn("queue metrics cache write failed", "error", err)
		}
	}
	return m
}

// Get returns one assessment decorated with gap indicators.
func (s *Service) Get(ctx context.Context, id string) (assessment.WithGaps, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return assessment.WithGaps{}, err
	}
	return assessment.Decorate(a), nil
}

type CreateRequest struct {
	Type      assessment.Type       `json:"type"`
	Date      time.Time             `json:"date"`
	EntityID  string                `json:"entity_id"`
	Location  assessment.GPSCapture `json:"location"`
	PhotoRefs []string              `json:"photo_refs"`
	Payload   json.RawMessage       `json:"payload"`
	Priority  assessment.Priority   `json:"priority"`

	// DraftID, when set, removes the server-side draft the submission came
	// from once the write succeeds.
	DraftID string `json:"draft_id,omitempty"`
}

// Create validates and stores a submitted assessment. A submission matching
// the entity's auto-approval configuration lands as AUTO_VERIFIED instead of
// SUBMITTED, with the verification timestamp set; no audit entry is written
// for the status stamp.
func (s *Service) Create(ctx context.Context, actor Actor, req CreateRequest) (assessment.WithGaps, error) {
	log := logger.From(ctx)

	if s.opts.Redis != nil {
		capKey := "submission-cap:" + actor.UserID
		ok, err := utils.AcquireSubmissionCap(ctx, s.opts.Redis, capKey, s.opts.SubmissionCap, s.opts.SubmissionCapTTL)
		switch {
		case err != nil:
			// Redis being down must not block field submissions.
			log.Warn("submission cap check failed, waiving", "error", err)
		case !ok:
			return assessment.WithGaps{}, ErrSubmissionCap
		default:
			defer func() {
				if err := utils.ReleaseSubmissionCap(context.WithoutCancel(ctx), s.opts.Redis, capKey); err != nil {
					log.Warn("submission cap release failed", "error", err)
				}
			}()
		}
	}

	if !assessment.ValidType(req.Type) {
		return assessment.WithGaps{}, errorsf("unknown assessment type %q", req.Type)
	}
	if !assessment.ValidPriority(req.Priority) {
		return assessment.WithGaps{}, errorsf("priority must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}
	if req.EntityID == "" {
		return assessment.WithGaps{}, errorsf("entity_id required")
	}
	if _, err := assessment.DecodePayload(req.Type, req.Payload); err != nil {
		return assessment.WithGaps{}, fmt.Errorf("%w: payload does not match type %s: %v", ErrValidation, req.Type, err)
	}

	matched, err := s.entities.ActiveByIDs(ctx, []string{req.EntityID})
	if err != nil {
		return assessment.WithGaps{}, err
	}
	if len(matched) == 0 {
		return assessment.WithGaps{}, errorsf("unknown or inactive entity %q", req.EntityID)
	}
	ent := matched[0]

	now := s.clock().UTC()

	loc := req.Location
	if loc.Zero() {
		// Indoor or denied GPS fixes fall back to the entity's registered
		// coordinates rather than rejecting the submission.
		loc = assessment.GPSCapture{
			Latitude:   ent.Latitude,
			Longitude:  ent.Longitude,
			CapturedAt: now,
			Method:     assessment.CaptureManual,
		}
	}

	date := req.Date
	if date.IsZero() {
		date = now
	}

	a := assessment.RapidAssessment{
		ID:           s.newID(),
		Type:         req.Type,
		Date:         date,
		EntityID:     ent.ID,
		EntityName:   ent.Name,
		AssessorID:   actor.UserID,
		AssessorName: actor.Name,
		Location:     loc,
		PhotoRefs:    req.PhotoRefs,
		Payload:      req.Payload,
		Status:       assessment.StatusSubmitted,
		Priority:     req.Priority,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	hasDocs := len(req.PhotoRefs) > 0
	auto, err := s.approver.Decide(ctx, ent.ID, entity.KindAssessment, string(req.Type), req.Priority, hasDocs)
	if err != nil {
		// An undecidable rule never auto-verifies; the coordinator queue
		// picks the submission up as usual.
		log.Warn("auto-approval decision failed", "entity_id", ent.ID, "error", err)
		auto = false
	}
	if auto {
		a.Status = assessment.StatusAutoVerified
		a.VerifiedAt = &now
	}

	if err := s.repo.Insert(ctx, a); err != nil {
		return assessment.WithGaps{}, err
	}

	if req.DraftID != "" && s.opts.Drafts != nil {
		err := s.opts.Drafts.Delete(ctx, req.Type, actor.UserID, req.DraftID)
		if err != nil && !errors.Is(err, draft.ErrNotFound) {
			log.Warn("draft cleanup failed", "draft_id", req.DraftID, "error", err)
		}
	}

	return assessment.Decorate(a), nil
}

// Verify marks a SUBMITTED assessment as VERIFIED by the acting coordinator.
func (s *Service) Verify(ctx context.Context, actor Actor, id string) (assessment.WithGaps, error) {
	return s.transition(ctx, actor, id, assessment.StatusVerified, "")
}

// Reject marks a SUBMITTED assessment as REJECTED. Feedback is mandatory so
// the assessor knows what to fix.
func (s *Service) Reject(ctx context.Context, actor Actor, id, feedback string) (assessment.WithGaps, error) {
	if feedback == "" {
		return assessment.WithGaps{}, errorsf("feedback required to reject")
	}
	return s.transition(ctx, actor, id, assessment.StatusRejected, feedback)
}

func (s *Service) transition(ctx context.Context, actor Actor, id string, to assessment.VerificationStatus, feedback string) (assessment.WithGaps, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return assessment.WithGaps{}, err
	}
	if a.Status != assessment.StatusSubmitted {
		return assessment.WithGaps{}, errorsf("assessment is %s, only SUBMITTED assessments can transition", a.Status)
	}

	now := s.clock().UTC()
	ok, err := s.repo.SetStatus(ctx, id, assessment.StatusSubmitted, to, actor.UserID, now, feedback)
	if err != nil {
		return assessment.WithGaps{}, err
	}
	if !ok {
		// Lost the race with another coordinator.
		return assessment.WithGaps{}, errorsf("assessment was transitioned concurrently")
	}

	a.Status = to
	a.VerifiedAt = &now
	a.VerifiedBy = actor.UserID
	a.Feedback = feedback
	a.UpdatedAt = now
	return assessment.Decorate(a), nil
}
