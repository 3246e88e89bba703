package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"response-platform/internal/approval"
	"response-platform/internal/audit"
	"response-platform/internal/draft"
	"response-platform/internal/user"
	"response-platform/internal/verification"
	"response-platform/pkg/logger"
	"response-platform/pkg/validate"
)

const apiVersion = "1.0"

// Every success response carries the same envelope:
// {success, data, pagination?, summary?, meta:{timestamp, version, requestId}}.

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func meta(c *gin.Context) gin.H {
	return gin.H{
		"timestamp": time.Now().UTC(),
		"version":   apiVersion,
		"requestId": logger.RequestID(c),
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data, "meta": meta(c)})
}

func respondList(c *gin.Context, data any, p Pagination, summary any) {
	body := gin.H{"success": true, "data": data, "pagination": p, "meta": meta(c)}
	if summary != nil {
		body["summary"] = summary
	}
	c.JSON(http.StatusOK, body)
}

// fail maps service errors onto the error envelope. Unexpected errors are
// logged and returned as an opaque 500 so internals never leak to clients.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, approval.ErrValidation),
		errors.Is(err, verification.ErrValidation),
		errors.Is(err, audit.ErrInvalidHistoryRequest):
		body := gin.H{"success": false, "error": err.Error()}
		var ve *validate.Error
		if errors.As(err, &ve) {
			body["errors"] = ve.Fields
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	case errors.Is(err, approval.ErrNotFound),
		errors.Is(err, verification.ErrNotFound),
		errors.Is(err, draft.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		abortError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, verification.ErrSubmissionCap):
		abortError(c, http.StatusTooManyRequests, "too many submissions in flight, retry shortly")
	case errors.Is(err, audit.ErrRollbackNotImplemented):
		abortError(c, http.StatusNotImplemented, "rollback is not implemented")
	default:
		logger.FromGin(c).Error("request failed", "error", err)
		abortError(c, http.StatusInternalServerError, "internal error")
	}
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}
