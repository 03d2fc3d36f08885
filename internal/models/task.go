package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/backend/internal/board"
	"github.com/taskboard/backend/internal/ordering"
	"gorm.io/gorm"
)

// Task is a card on a project board. Order is its zero-based rank inside the
// (project, status) column and is stored as "position".
type Task struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	ProjectID   string          `gorm:"size:36;not null;index:idx_task_column,priority:1" json:"project_id"`
	Title       string          `gorm:"size:500;not null" json:"title"`
	Description *string         `gorm:"type:text" json:"description"`
	AssigneeID  *string         `gorm:"size:36;index" json:"assignee_id"`
	Assignee    *Membership     `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Status      ordering.Status `gorm:"size:20;not null;index:idx_task_column,priority:2" json:"status"`
	Order       int             `gorm:"column:position;not null;index:idx_task_column,priority:3" json:"order"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *Task) Position() ordering.Position {
	return ordering.Position{Status: t.Status, Order: t.Order}
}

func (t *Task) Entry() ordering.Entry {
	return ordering.Entry{ID: t.ID, Status: t.Status, Order: t.Order}
}

func (t *Task) Card() board.Card {
	return board.Card{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		AssigneeID:  t.AssigneeID,
		Status:      t.Status,
		Order:       t.Order,
	}
}
