package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/services"
	"gorm.io/gorm"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the state of the database, the event queue and the
// analytics cache.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	cache Pinger
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, cache: cache}
}

// CheckHealth returns 503 when the database does not answer.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	cacheStatus := "disabled"
	if h.cache != nil {
		cacheStatus = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "error: " + err.Error()
		}
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "taskboard",
		"components": gin.H{
			"database":   dbStatus,
			"queue_mode": queueMode,
			"cache":      cacheStatus,
		},
	})
}
