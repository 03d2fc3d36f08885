package handlers

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

// maxPatchBody bounds PATCH bodies read before decoding.
const maxPatchBody = 64 << 10

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(db *gorm.DB, publisher services.TaskEventPublisher) *TaskHandler {
	return &TaskHandler{
		taskService: services.NewTaskService(db, publisher),
	}
}

// List returns the project's tasks in board order
// GET /api/projects/:id/tasks
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.taskService.ListByProject(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tasks)
}

// Create appends a task to its column
// POST /api/projects/:id/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task)
}

// Update repositions a task or edits its content, never both
// PATCH /api/projects/:id/tasks/:taskId
func (h *TaskHandler) Update(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPatchBody+1))
	if err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if len(raw) > maxPatchBody {
		response.BadRequest(c, "request body too large")
		return
	}

	patch, err := services.DecodeTaskPatch(raw)
	if err != nil {
		response.Error(c, err)
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("taskId"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, task)
}

// Delete removes a task and closes the gap in its column
// DELETE /api/projects/:id/tasks/:taskId
func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.taskService.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Param("taskId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Board returns the project's tasks grouped into columns
// GET /api/projects/:id/board
func (h *TaskHandler) Board(c *gin.Context) {
	b, err := h.taskService.Board(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, b)
}
