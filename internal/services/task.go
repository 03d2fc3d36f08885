package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taskboard/backend/internal/board"
	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/ordering"
	"github.com/taskboard/backend/pkg/logger"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

const maxTitleLength = 500

// TaskEventPublisher receives an event after each committed mutation.
// TaskQueue satisfies it.
type TaskEventPublisher interface {
	Enqueue(event *TaskEvent) error
}

// TaskService owns every write to the tasks table. Each ordering-affecting
// operation runs in one transaction that starts by locking the project row.
type TaskService struct {
	db        *gorm.DB
	publisher TaskEventPublisher
}

func NewTaskService(db *gorm.DB, publisher TaskEventPublisher) *TaskService {
	return &TaskService{db: db, publisher: publisher}
}

type CreateTaskRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description *string         `json:"description"`
	Status      ordering.Status `json:"status" binding:"omitempty,oneof=BACKLOG TODO IN_PROGRESS DONE"`
	AssigneeID  *string         `json:"assigneeId"`
}

func (r *CreateTaskRequest) normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return response.NewBadRequest("title is required")
	}
	if utf8.RuneCountInString(r.Title) > maxTitleLength {
		return response.NewBadRequest("title is too long")
	}
	if r.Status == "" {
		r.Status = ordering.Todo
	}
	status, err := ordering.ParseStatus(string(r.Status))
	if err != nil {
		return response.NewBadRequest(err.Error())
	}
	r.Status = status
	if r.Description != nil && *r.Description == "" {
		r.Description = nil
	}
	if r.AssigneeID != nil && *r.AssigneeID == "" {
		r.AssigneeID = nil
	}
	return nil
}

// Create appends a task at the end of its column.
func (s *TaskService) Create(ctx context.Context, actorID, projectID string, req CreateTaskRequest) (*models.Task, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var task models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := authorizeMember(tx, projectID, actorID, true); err != nil {
			return err
		}
		if err := checkAssignee(tx, projectID, req.AssigneeID); err != nil {
			return err
		}

		size, err := columnSize(tx, projectID, req.Status)
		if err != nil {
			return err
		}

		task = models.Task{
			ProjectID:   projectID,
			Title:       req.Title,
			Description: req.Description,
			AssigneeID:  req.AssigneeID,
			Status:      req.Status,
			Order:       ordering.Insert(size),
		}
		if err := tx.Create(&task).Error; err != nil {
			return storageFailure("insert task", err)
		}
		return touchProject(tx, projectID)
	})
	if err != nil {
		return nil, err
	}

	to := task.Position()
	s.publish(&TaskEvent{Type: EventTaskCreated, ProjectID: projectID, TaskID: task.ID, ActorID: actorID, Title: task.Title, To: &to})
	return s.reload(ctx, task.ID)
}

// Update applies a Reposition or an Edit.
func (s *TaskService) Update(ctx context.Context, actorID, projectID, taskID string, patch TaskPatch) (*models.Task, error) {
	switch p := patch.(type) {
	case Reposition:
		return s.reposition(ctx, actorID, projectID, taskID, p)
	case Edit:
		return s.edit(ctx, actorID, projectID, taskID, p)
	default:
		return nil, response.NewBadRequest("unsupported patch")
	}
}

func (s *TaskService) reposition(ctx context.Context, actorID, projectID, taskID string, p Reposition) (*models.Task, error) {
	if !p.Status.Valid() {
		return nil, response.NewBadRequest("invalid status")
	}

	var (
		from  ordering.Position
		to    = ordering.Position{Status: p.Status, Order: p.Order}
		noop  bool
		title string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := authorizeMember(tx, projectID, actorID, true); err != nil {
			return err
		}
		task, err := loadTask(tx, projectID, taskID)
		if err != nil {
			return err
		}
		from, title = task.Position(), task.Title

		size, err := columnSize(tx, projectID, to.Status)
		if err != nil {
			return err
		}
		if err := ordering.CheckTarget(from, to, size); err != nil {
			return response.NewBadRequest(err.Error())
		}

		plan := ordering.Move(from, to)
		if plan.Noop {
			noop = true
			return nil
		}
		if err := applyShifts(tx, projectID, task.ID, plan.Shifts); err != nil {
			return err
		}
		if err := tx.Model(task).Updates(map[string]interface{}{
			"status":   plan.Target.Status,
			"position": plan.Target.Order,
		}).Error; err != nil {
			return storageFailure("move task", err)
		}
		return touchProject(tx, projectID)
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		s.publish(&TaskEvent{Type: EventTaskMoved, ProjectID: projectID, TaskID: taskID, ActorID: actorID, Title: title, From: &from, To: &to})
	}
	return s.reload(ctx, taskID)
}

func (s *TaskService) edit(ctx context.Context, actorID, projectID, taskID string, e Edit) (*models.Task, error) {
	updates := make(map[string]interface{})
	if e.Title != nil {
		title := strings.TrimSpace(*e.Title)
		if title == "" {
			return nil, response.NewBadRequest("title is required")
		}
		if utf8.RuneCountInString(title) > maxTitleLength {
			return nil, response.NewBadRequest("title is too long")
		}
		updates["title"] = title
	}
	if e.Description.Set {
		updates["description"] = emptyToNil(e.Description.Value)
	}
	var assignee *string
	if e.AssigneeID.Set {
		assignee = emptyToNil(e.AssigneeID.Value)
		updates["assignee_id"] = assignee
	}

	var title string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := authorizeMember(tx, projectID, actorID, e.assigns()); err != nil {
			return err
		}
		task, err := loadTask(tx, projectID, taskID)
		if err != nil {
			return err
		}
		title = task.Title
		if len(updates) == 0 {
			return nil
		}
		if e.AssigneeID.Set {
			if err := checkAssignee(tx, projectID, assignee); err != nil {
				return err
			}
		}
		if err := tx.Model(task).Updates(updates).Error; err != nil {
			return storageFailure("edit task", err)
		}
		return touchProject(tx, projectID)
	})
	if err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		if t, ok := updates["title"].(string); ok {
			title = t
		}
		s.publish(&TaskEvent{Type: EventTaskEdited, ProjectID: projectID, TaskID: taskID, ActorID: actorID, Title: title})
	}
	return s.reload(ctx, taskID)
}

// Delete removes the task and closes the gap it leaves in its column.
func (s *TaskService) Delete(ctx context.Context, actorID, projectID, taskID string) error {
	var removed models.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := authorizeMember(tx, projectID, actorID, true); err != nil {
			return err
		}
		task, err := loadTask(tx, projectID, taskID)
		if err != nil {
			return err
		}
		removed = *task

		if err := tx.Delete(task).Error; err != nil {
			return storageFailure("delete task", err)
		}
		shift := ordering.Remove(task.Status, task.Order)
		if err := applyShifts(tx, projectID, task.ID, []ordering.Shift{shift}); err != nil {
			return err
		}
		return touchProject(tx, projectID)
	})
	if err != nil {
		return err
	}

	from := removed.Position()
	s.publish(&TaskEvent{Type: EventTaskDeleted, ProjectID: projectID, TaskID: taskID, ActorID: actorID, Title: removed.Title, From: &from})
	return nil
}

// ListByProject returns the project's tasks in board order.
func (s *TaskService) ListByProject(ctx context.Context, actorID, projectID string) ([]models.Task, error) {
	db := s.db.WithContext(ctx)
	if _, _, err := authorizeMember(db, projectID, actorID, false); err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := db.Preload("Assignee.User").
		Where("project_id = ?", projectID).
		Order("position ASC").Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, storageFailure("list tasks", err)
	}
	SortTasks(tasks)
	return tasks, nil
}

// Board returns the project's tasks grouped into columns.
func (s *TaskService) Board(ctx context.Context, actorID, projectID string) (*board.Board, error) {
	tasks, err := s.ListByProject(ctx, actorID, projectID)
	if err != nil {
		return nil, err
	}
	cards := make([]board.Card, len(tasks))
	for i := range tasks {
		cards[i] = tasks[i].Card()
	}
	b := board.Build(cards)
	return &b, nil
}

// SortTasks orders tasks by column, then by order, then by id.
func SortTasks(tasks []models.Task) {
	rank := make(map[ordering.Status]int, len(ordering.Statuses))
	for i, s := range ordering.Statuses {
		rank[s] = i
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Status != b.Status {
			return rank[a.Status] < rank[b.Status]
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
}

func (s *TaskService) reload(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).Preload("Assignee.User").Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, storageFailure("reload task", err)
	}
	return &task, nil
}

func (s *TaskService) publish(event *TaskEvent) {
	if s.publisher == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := s.publisher.Enqueue(event); err != nil {
		logger.Warn().Err(err).Str("type", event.Type).Str("project_id", event.ProjectID).Msg("[TaskService] failed to publish task event")
	}
}

func loadTask(tx *gorm.DB, projectID, taskID string) (*models.Task, error) {
	var task models.Task
	if err := tx.Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("task not found")
		}
		return nil, storageFailure("load task", err)
	}
	return &task, nil
}

func columnSize(tx *gorm.DB, projectID string, status ordering.Status) (int, error) {
	var n int64
	if err := tx.Model(&models.Task{}).
		Where("project_id = ? AND status = ?", projectID, status).
		Count(&n).Error; err != nil {
		return 0, storageFailure("count column", err)
	}
	return int(n), nil
}

// applyShifts moves every task covered by a shift by its delta. The moved
// task itself is excluded; its row is written separately.
func applyShifts(tx *gorm.DB, projectID, movedID string, shifts []ordering.Shift) error {
	for _, shift := range shifts {
		q := tx.Model(&models.Task{}).
			Where("project_id = ? AND status = ? AND position >= ? AND id <> ?", projectID, shift.Status, shift.From, movedID)
		if shift.To != ordering.Open {
			q = q.Where("position <= ?", shift.To)
		}
		if err := q.UpdateColumn("position", gorm.Expr("position + ?", shift.Delta)).Error; err != nil {
			return storageFailure("shift column", err)
		}
	}
	return nil
}

// checkAssignee requires a non-nil assignee to be a membership of the project.
func checkAssignee(tx *gorm.DB, projectID string, assigneeID *string) error {
	if assigneeID == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Membership{}).
		Where("id = ? AND project_id = ?", *assigneeID, projectID).
		Count(&n).Error; err != nil {
		return storageFailure("check assignee", err)
	}
	if n == 0 {
		return response.NewBadRequest("assignee is not a member of this project")
	}
	return nil
}

func touchProject(tx *gorm.DB, projectID string) error {
	if err := tx.Model(&models.Project{}).Where("id = ?", projectID).
		UpdateColumn("updated_at", time.Now().UTC()).Error; err != nil {
		return storageFailure("touch project", err)
	}
	return nil
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
