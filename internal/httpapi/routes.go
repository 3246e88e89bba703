package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"response-platform/internal/rbac"
	"response-platform/pkg/utils"
)

// Register wires HTTP routes to handlers. Keep this free of business logic.
// authMW is the bearer-token middleware; the coordinator check sits on every
// verification route so the 403 happens before any query runs.
func Register(r *gin.Engine, h Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if h.DB != nil {
			if err := utils.HealthCheck(c.Request.Context(), h.DB, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	v1.POST("/auth/login", h.Login)

	protected := v1.Group("")
	protected.Use(authMW)
	{
		// Coordinator surface: queue, auto-approval config, audit trail.
		ver := protected.Group("/verification")
		ver.Use(rbac.RequireCoordinator())
		{
			ver.GET("/auto-approval", h.ListAutoApproval)
			ver.PUT("/auto-approval", h.BulkUpdateAutoApproval)

			ver.GET("/audit", h.AuditHistory)
			ver.GET("/audit/export", h.AuditExport)

			ver.GET("/rapid-assessments", h.Queue)
			ver.POST("/rapid-assessments/:id/verify", h.VerifyAssessment)
			ver.POST("/rapid-assessments/:id/reject", h.RejectAssessment)
		}

		entities := protected.Group("/entities")
		entities.Use(rbac.RequireCoordinator())
		{
			entities.PUT("/:id/auto-approval", h.UpdateEntityAutoApproval)
		}

		// Assessor surface: any authenticated role.
		protected.POST("/rapid-assessments", h.CreateAssessment)
		protected.GET("/rapid-assessments/:id", h.GetAssessment)

		drafts := protected.Group("/drafts")
		{
			drafts.GET("/:type", h.ListDrafts)
			drafts.PUT("/:type", h.PutDraft)
			drafts.DELETE("/:type/:draftId", h.DeleteDraft)
		}
	}
}
