package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

type ActivityHandler struct {
	logService *services.SystemLogService
}

func NewActivityHandler(db *gorm.DB) *ActivityHandler {
	return &ActivityHandler{logService: services.NewSystemLogService(db)}
}

// List pages through a project's activity, newest first
// GET /api/projects/:id/activity
func (h *ActivityHandler) List(c *gin.Context) {
	var req services.ActivityListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.logService.ListForProject(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}
