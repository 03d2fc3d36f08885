package services

import (
	"context"

	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/internal/ordering"
	"gorm.io/gorm"
)

// ColumnReport is one column found out of order.
type ColumnReport struct {
	ProjectID string             `json:"project_id"`
	Violation ordering.Violation `json:"violation"`
	Repaired  bool               `json:"repaired"`
}

type AuditReport struct {
	ProjectsChecked int            `json:"projects_checked"`
	Columns         []ColumnReport `json:"columns"`
	Changes         int            `json:"changes"`
}

// Remaining counts the broken columns left after the run.
func (r *AuditReport) Remaining() int {
	n := 0
	for _, c := range r.Columns {
		if !c.Repaired {
			n++
		}
	}
	return n
}

// OrderAuditor checks that every column of every project is numbered
// 0..n-1 and can renumber the ones that are not.
type OrderAuditor struct {
	db *gorm.DB
}

func NewOrderAuditor(db *gorm.DB) *OrderAuditor {
	return &OrderAuditor{db: db}
}

// Audit checks projectID, or every project when it is empty. With repair set,
// broken projects are re-indexed under the project lock.
func (a *OrderAuditor) Audit(ctx context.Context, projectID string, repair bool) (*AuditReport, error) {
	db := a.db.WithContext(ctx)

	var ids []string
	q := db.Model(&models.Project{}).Order("id")
	if projectID != "" {
		q = q.Where("id = ?", projectID)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, storageFailure("list projects", err)
	}

	report := &AuditReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.ProjectsChecked++

		entries, err := loadEntries(db, id)
		if err != nil {
			return report, err
		}
		violations := ordering.Verify(entries)
		if len(violations) == 0 {
			continue
		}

		repaired := false
		if repair {
			n, err := a.repair(ctx, id)
			if err != nil {
				return report, err
			}
			report.Changes += n
			repaired = true
		}
		for _, v := range violations {
			report.Columns = append(report.Columns, ColumnReport{ProjectID: id, Violation: v, Repaired: repaired})
		}
	}
	return report, nil
}

func (a *OrderAuditor) repair(ctx context.Context, projectID string) (int, error) {
	var changed int
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadProject(tx, projectID, true); err != nil {
			return err
		}
		entries, err := loadEntries(tx, projectID)
		if err != nil {
			return err
		}
		changes := ordering.Reindex(entries)
		for _, c := range changes {
			if err := tx.Model(&models.Task{}).
				Where("id = ?", c.ID).
				UpdateColumn("position", c.NewOrder).Error; err != nil {
				return storageFailure("reindex task", err)
			}
		}
		changed = len(changes)
		return nil
	})
	return changed, err
}

func loadEntries(tx *gorm.DB, projectID string) ([]ordering.Entry, error) {
	var tasks []models.Task
	if err := tx.Select("id", "status", "position").
		Where("project_id = ?", projectID).
		Find(&tasks).Error; err != nil {
		return nil, storageFailure("load column state", err)
	}
	entries := make([]ordering.Entry, len(tasks))
	for i := range tasks {
		entries[i] = tasks[i].Entry()
	}
	return entries, nil
}
