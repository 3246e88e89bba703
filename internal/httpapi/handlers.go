package httpapi

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"response-platform/internal/approval"
	"response-platform/internal/assessment"
	"response-platform/internal/audit"
	"response-platform/internal/auth"
	"response-platform/internal/draft"
	"response-platform/internal/entity"
	"response-platform/internal/rbac"
	"response-platform/internal/verification"
	"response-platform/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Approval *approval.Service
	Intake   *verification.Service
	History  *audit.HistoryService
	Drafts   draft.Store

	// DB, when set, backs the health check with a live ping.
	DB *sql.DB
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" || req.Role == "" {
		abortError(c, http.StatusBadRequest, "user_id, role required")
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		abortError(c, http.StatusBadRequest, "unknown role")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Name, req.Role)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "token issuance failed")
		return
	}
	respond(c, http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

func approvalActor(c *gin.Context) approval.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	return approval.Actor{
		UserID:    uid,
		Name:      auth.UserName(c.Request.Context()),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func intakeActor(c *gin.Context) verification.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	return verification.Actor{UserID: uid, Name: auth.UserName(c.Request.Context())}
}

// --- Auto-approval configuration ---

func (h Handlers) ListAutoApproval(c *gin.Context) {
	filters := approval.ListFilters{
		EntityType:  entityTypeParam(c.Query("entityType")),
		EnabledOnly: c.Query("enabledOnly") == "true",
	}
	views, summary, err := h.Approval.List(c.Request.Context(), filters)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, views, NewPagination(1, len(views), len(views)), summary)
}

func (h Handlers) BulkUpdateAutoApproval(c *gin.Context) {
	var req approval.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	updated, err := h.Approval.BulkUpdate(c.Request.Context(), approvalActor(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"entities": updated, "updated": len(updated)})
}

func (h Handlers) UpdateEntityAutoApproval(c *gin.Context) {
	var req approval.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	updated, err := h.Approval.Update(c.Request.Context(), approvalActor(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, updated)
}

// --- Audit history ---

func historyRequest(c *gin.Context) audit.HistoryRequest {
	return audit.HistoryRequest{
		StartDate:  parseTimeParam(c.Query("startDate")),
		EndDate:    parseTimeParam(c.Query("endDate")),
		Action:     audit.Action(c.Query("action")),
		UserID:     c.Query("userId"),
		Resource:   c.Query("resource"),
		ResourceID: c.Query("resourceId"),
		Search:     c.Query("search"),
		Page:       intParam(c.Query("page")),
		PageSize:   intParam(c.Query("pageSize")),
	}
}

func (h Handlers) AuditHistory(c *gin.Context) {
	page, err := h.History.History(c.Request.Context(), historyRequest(c))
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, page.Entries, NewPagination(page.Page, page.PageSize, page.Total), page.Summary)
}

func (h Handlers) AuditExport(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="audit-export.csv"`)
	if err := h.History.ExportCSV(c.Request.Context(), historyRequest(c), c.Writer); err != nil {
		if !c.Writer.Written() {
			c.Header("Content-Type", "")
			c.Header("Content-Disposition", "")
			fail(c, err)
			return
		}
		// Mid-stream failure: the CSV is already going out, log and cut off.
		logger.FromGin(c).Error("audit export aborted mid-stream", "error", err)
	}
}

// --- Verification queue ---

func queueRequest(c *gin.Context) verification.QueueRequest {
	req := verification.QueueRequest{
		EntityID:   c.Query("entityId"),
		AssessorID: c.Query("assessorId"),
		Search:     c.Query("search"),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
		Page:       intParam(c.Query("page")),
		Limit:      intParam(c.Query("limit")),
	}
	for _, v := range multiParam(c, "status") {
		req.Statuses = append(req.Statuses, assessment.VerificationStatus(v))
	}
	for _, v := range multiParam(c, "assessmentType") {
		req.Types = append(req.Types, assessment.Type(v))
	}
	for _, v := range multiParam(c, "priority") {
		req.Priorities = append(req.Priorities, assessment.Priority(v))
	}
	if t := parseTimeParam(c.Query("dateFrom")); !t.IsZero() {
		req.DateFrom = &t
	}
	if t := parseTimeParam(c.Query("dateTo")); !t.IsZero() {
		req.DateTo = &t
	}
	return req
}

func (h Handlers) Queue(c *gin.Context) {
	page, err := h.Intake.Queue(c.Request.Context(), queueRequest(c))
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, gin.H{
		"assessments": page.Assessments,
		"queueDepth":  page.QueueDepth,
		"metrics":     page.Metrics,
	}, NewPagination(page.Page, page.Limit, page.Total), nil)
}

func (h Handlers) VerifyAssessment(c *gin.Context) {
	got, err := h.Intake.Verify(c.Request.Context(), intakeActor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, got)
}

type rejectRequest struct {
	Feedback string `json:"feedback"`
}

func (h Handlers) RejectAssessment(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	got, err := h.Intake.Reject(c.Request.Context(), intakeActor(c), c.Param("id"), req.Feedback)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, got)
}

// --- Assessment intake ---

func (h Handlers) CreateAssessment(c *gin.Context) {
	var req verification.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	got, err := h.Intake.Create(c.Request.Context(), intakeActor(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, got)
}

func (h Handlers) GetAssessment(c *gin.Context) {
	got, err := h.Intake.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, got)
}

// --- Drafts ---

func draftType(c *gin.Context) (assessment.Type, bool) {
	t := assessment.Type(strings.ToUpper(c.Param("type")))
	if !assessment.ValidType(t) {
		abortError(c, http.StatusBadRequest, "unknown assessment type")
		return "", false
	}
	return t, true
}

func (h Handlers) ListDrafts(c *gin.Context) {
	t, ok := draftType(c)
	if !ok {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	drafts, err := h.Drafts.List(c.Request.Context(), t, uid)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, drafts)
}

func (h Handlers) PutDraft(c *gin.Context) {
	t, ok := draftType(c)
	if !ok {
		return
	}
	var d draft.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		abortError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	uid, _ := auth.UserID(c.Request.Context())
	if err := h.Drafts.Upsert(c.Request.Context(), t, uid, d); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, d)
}

func (h Handlers) DeleteDraft(c *gin.Context) {
	t, ok := draftType(c)
	if !ok {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	if err := h.Drafts.Delete(c.Request.Context(), t, uid, c.Param("draftId")); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": c.Param("draftId")})
}

// --- Param helpers ---

func entityTypeParam(v string) entity.Type {
	return entity.Type(strings.ToUpper(v))
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates.
func parseTimeParam(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t
	}
	return time.Time{}
}

// multiParam reads repeated query keys and splits comma-joined values, so
// both ?status=A&status=B and ?status=A,B work.
func multiParam(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
