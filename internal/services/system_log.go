package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/pkg/logger"
	"gorm.io/gorm"
)

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

// LogEntry carries the optional fields of an activity record.
type LogEntry struct {
	ProjectID *string
	UserID    *string
	IP        string
	UserAgent string
	Extra     interface{}
}

func LogInfo(module, action, message string, entry LogEntry) {
	writeLog("info", module, action, message, entry)
}

func LogWarning(module, action, message string, entry LogEntry) {
	writeLog("warning", module, action, message, entry)
}

func LogError(module, action, message string, entry LogEntry) {
	writeLog("error", module, action, message, entry)
}

func writeLog(level, module, action, message string, entry LogEntry) {
	if globalDB == nil {
		return
	}
	if err := globalDB.Create(newSystemLog(level, module, action, message, entry)).Error; err != nil {
		logger.Warnf("[SystemLog] failed to write %s/%s: %v", module, action, err)
	}
}

func newSystemLog(level, module, action, message string, entry LogEntry) *models.SystemLog {
	var extra string
	if entry.Extra != nil {
		if b, err := json.Marshal(entry.Extra); err == nil {
			extra = string(b)
		}
	}
	return &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		ProjectID: entry.ProjectID,
		UserID:    entry.UserID,
		IP:        entry.IP,
		UserAgent: truncate(entry.UserAgent, 500),
		Extra:     extra,
		CreatedAt: time.Now().UTC(),
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type ActivityListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Module   string `form:"module"`
	Action   string `form:"action"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

// ListForProject pages through a project's activity, newest first. Members only.
func (s *SystemLogService) ListForProject(ctx context.Context, userID, projectID string, req *ActivityListRequest) (*SystemLogListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	db := s.db.WithContext(ctx)
	if _, _, err := authorizeMember(db, projectID, userID, false); err != nil {
		return nil, err
	}

	query := db.Model(&models.SystemLog{}).Where("project_id = ?", projectID)
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, storageFailure("count activity", err)
	}

	var logs []models.SystemLog
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, storageFailure("list activity", err)
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

func (s *SystemLogService) Create(ctx context.Context, log *models.SystemLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// CleanupOldLogs deletes logs older than the specified number of days
// Returns the number of deleted records
func (s *SystemLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
