package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/pkg/response"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// Summary returns per-column task counts for each of the caller's projects
// GET /api/analytics
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	summary, err := h.analyticsService.Summary(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}
