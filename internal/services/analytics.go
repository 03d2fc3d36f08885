package services

import (
	"context"

	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/ordering"
	"gorm.io/gorm"
)

// TaskCounts is the number of tasks per column. Every column is present.
type TaskCounts map[ordering.Status]int64

func newTaskCounts() TaskCounts {
	counts := make(TaskCounts, len(ordering.Statuses))
	for _, s := range ordering.Statuses {
		counts[s] = 0
	}
	return counts
}

// TaskCounter returns a project's column counts.
type TaskCounter interface {
	CountTasks(ctx context.Context, projectID string) (TaskCounts, error)
}

// TaskCountStore counts tasks straight from the database.
type TaskCountStore struct {
	db *gorm.DB
}

func NewTaskCountStore(db *gorm.DB) *TaskCountStore {
	return &TaskCountStore{db: db}
}

type statusCount struct {
	Status ordering.Status
	N      int64
}

func (s *TaskCountStore) CountTasks(ctx context.Context, projectID string) (TaskCounts, error) {
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, COUNT(*) AS n").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, storageFailure("count tasks", err)
	}

	counts := newTaskCounts()
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

type ProjectAnalytics struct {
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	TaskCounts  TaskCounts `json:"task_counts"`
}

// AnalyticsService reports task counts for the caller's projects.
type AnalyticsService struct {
	db      *gorm.DB
	counter TaskCounter
}

// NewAnalyticsService uses counter for per-project counts, or the database
// directly when counter is nil.
func NewAnalyticsService(db *gorm.DB, counter TaskCounter) *AnalyticsService {
	if counter == nil {
		counter = NewTaskCountStore(db)
	}
	return &AnalyticsService{db: db, counter: counter}
}

func (s *AnalyticsService) Summary(ctx context.Context, userID string) ([]ProjectAnalytics, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.project_id = projects.id AND memberships.user_id = ?", userID).
		Order("projects.name ASC").
		Find(&projects).Error; err != nil {
		return nil, storageFailure("list projects", err)
	}

	out := make([]ProjectAnalytics, 0, len(projects))
	for _, p := range projects {
		counts, err := s.counter.CountTasks(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ProjectAnalytics{ProjectID: p.ID, ProjectName: p.Name, TaskCounts: counts})
	}
	return out, nil
}
