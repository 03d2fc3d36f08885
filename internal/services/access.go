package services

import (
	"errors"
	"fmt"

	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func storageFailure(op string, err error) error {
	return response.NewStorageFailure(fmt.Errorf("%s: %w", op, err))
}

// loadProject fetches the project row. With lock set the row is read FOR
// UPDATE, which serializes every ordering writer of the project until the
// surrounding transaction ends. SQLite already serializes writers.
func loadProject(tx *gorm.DB, projectID string, lock bool) (*models.Project, error) {
	q := tx
	if lock && tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var project models.Project
	if err := q.Where("id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("project not found")
		}
		return nil, storageFailure("load project", err)
	}
	return &project, nil
}

func membershipOf(tx *gorm.DB, projectID, userID string) (*models.Membership, error) {
	var m models.Membership
	err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageFailure("load membership", err)
	}
	return &m, nil
}

// authorizeMember resolves the project (NotFound) and the actor's membership
// in it (Forbidden).
func authorizeMember(tx *gorm.DB, projectID, userID string, lock bool) (*models.Project, *models.Membership, error) {
	project, err := loadProject(tx, projectID, lock)
	if err != nil {
		return nil, nil, err
	}
	m, err := membershipOf(tx, projectID, userID)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, nil, response.NewForbidden("not a member of this project")
	}
	return project, m, nil
}

// authorizeOwner is authorizeMember restricted to the project owner.
func authorizeOwner(tx *gorm.DB, projectID, userID string, lock bool) (*models.Project, *models.Membership, error) {
	project, m, err := authorizeMember(tx, projectID, userID, lock)
	if err != nil {
		return nil, nil, err
	}
	if project.OwnerID != userID {
		return nil, nil, response.NewForbidden("only the project owner can do this")
	}
	return project, m, nil
}
