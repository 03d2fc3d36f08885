package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/pkg/logger"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

const maxProjectNameLength = 200

type ProjectService struct {
	db        *gorm.DB
	publisher TaskEventPublisher
}

func NewProjectService(db *gorm.DB, publisher TaskEventPublisher) *ProjectService {
	return &ProjectService{db: db, publisher: publisher}
}

type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

type UpdateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// ProjectSummary is one entry of the caller's project list.
type ProjectSummary struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	OwnerID     string              `json:"owner_id"`
	Owner       *models.UserSummary `json:"owner"`
	MemberCount int64               `json:"member_count"`
	TaskCount   int64               `json:"task_count"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ProjectDetail is a project with its members and its tasks in board order.
type ProjectDetail struct {
	*models.Project
	Owner   *models.UserSummary `json:"owner"`
	Members []models.Membership `json:"members"`
	Tasks   []models.Task       `json:"tasks"`
}

func validateProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", response.NewBadRequest("project name is required")
	}
	if utf8.RuneCountInString(name) > maxProjectNameLength {
		return "", response.NewBadRequest("project name is too long")
	}
	return name, nil
}

// List returns the projects userID is a member of, most recently updated first.
func (s *ProjectService) List(ctx context.Context, userID string) ([]ProjectSummary, error) {
	db := s.db.WithContext(ctx)

	var projects []models.Project
	if err := db.Preload("Owner").
		Joins("JOIN memberships ON memberships.project_id = projects.id AND memberships.user_id = ?", userID).
		Order("projects.updated_at DESC").
		Find(&projects).Error; err != nil {
		return nil, storageFailure("list projects", err)
	}
	if len(projects) == 0 {
		return []ProjectSummary{}, nil
	}

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	memberCounts, err := countByProject(db.Model(&models.Membership{}), ids)
	if err != nil {
		return nil, err
	}
	taskCounts, err := countByProject(db.Model(&models.Task{}), ids)
	if err != nil {
		return nil, err
	}

	items := make([]ProjectSummary, len(projects))
	for i, p := range projects {
		items[i] = ProjectSummary{
			ID:          p.ID,
			Name:        p.Name,
			OwnerID:     p.OwnerID,
			Owner:       p.Owner.Summary(),
			MemberCount: memberCounts[p.ID],
			TaskCount:   taskCounts[p.ID],
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
	}
	return items, nil
}

type projectCount struct {
	ProjectID string
	N         int64
}

func countByProject(q *gorm.DB, ids []string) (map[string]int64, error) {
	var rows []projectCount
	if err := q.Select("project_id, COUNT(*) AS n").
		Where("project_id IN ?", ids).
		Group("project_id").
		Scan(&rows).Error; err != nil {
		return nil, storageFailure("count by project", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.ProjectID] = r.N
	}
	return out, nil
}

// Create makes a project owned by userID together with its OWNER membership.
func (s *ProjectService) Create(ctx context.Context, userID string, req *CreateProjectRequest) (*models.Project, error) {
	name, err := validateProjectName(req.Name)
	if err != nil {
		return nil, err
	}

	project := models.Project{Name: name, OwnerID: userID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return storageFailure("create project", err)
		}
		owner := models.Membership{ProjectID: project.ID, UserID: userID, Role: models.RoleOwner}
		if err := tx.Create(&owner).Error; err != nil {
			return storageFailure("create owner membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// Get returns the project with members and tasks. Members only.
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*ProjectDetail, error) {
	db := s.db.WithContext(ctx)
	project, _, err := authorizeMember(db, projectID, userID, false)
	if err != nil {
		return nil, err
	}

	var owner models.User
	if err := db.Where("id = ?", project.OwnerID).First(&owner).Error; err != nil {
		return nil, storageFailure("load owner", err)
	}

	var members []models.Membership
	if err := db.Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, storageFailure("load members", err)
	}

	var tasks []models.Task
	if err := db.Preload("Assignee.User").
		Where("project_id = ?", projectID).
		Order("position ASC").
		Find(&tasks).Error; err != nil {
		return nil, storageFailure("load tasks", err)
	}
	SortTasks(tasks)

	return &ProjectDetail{
		Project: project,
		Owner:   owner.Summary(),
		Members: members,
		Tasks:   tasks,
	}, nil
}

// Rename changes the project name. Owner only.
func (s *ProjectService) Rename(ctx context.Context, userID, projectID string, req *UpdateProjectRequest) (*models.Project, error) {
	name, err := validateProjectName(req.Name)
	if err != nil {
		return nil, err
	}

	var project *models.Project
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, _, err := authorizeOwner(tx, projectID, userID, true)
		if err != nil {
			return err
		}
		if err := tx.Model(p).Update("name", name).Error; err != nil {
			return storageFailure("rename project", err)
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Delete removes the project with all of its tasks and memberships. Owner only.
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := authorizeOwner(tx, projectID, userID, true); err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Task{}).Error; err != nil {
			return storageFailure("delete tasks", err)
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Membership{}).Error; err != nil {
			return storageFailure("delete memberships", err)
		}
		if err := tx.Where("id = ?", projectID).Delete(&models.Project{}).Error; err != nil {
			return storageFailure("delete project", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.publisher != nil {
		event := &TaskEvent{Type: EventProjectDeleted, ProjectID: projectID, ActorID: userID, At: time.Now().UTC()}
		if err := s.publisher.Enqueue(event); err != nil {
			logger.Warn().Err(err).Str("project_id", projectID).Msg("[ProjectService] failed to publish project event")
		}
	}
	return nil
}
