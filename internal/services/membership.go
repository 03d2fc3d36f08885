package services

import (
	"context"
	"errors"

	"github.com/taskboard/backend/internal/models"
	"github.com/taskboard/backend/pkg/response"
	"gorm.io/gorm"
)

type MembershipService struct {
	db *gorm.DB
}

func NewMembershipService(db *gorm.DB) *MembershipService {
	return &MembershipService{db: db}
}

type InviteMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// List returns the project's memberships, owner first. Members only.
func (s *MembershipService) List(ctx context.Context, userID, projectID string) ([]models.Membership, error) {
	db := s.db.WithContext(ctx)
	if _, _, err := authorizeMember(db, projectID, userID, false); err != nil {
		return nil, err
	}

	var members []models.Membership
	if err := db.Preload("User").
		Where("project_id = ?", projectID).
		Order("CASE WHEN role = 'OWNER' THEN 0 ELSE 1 END").
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, storageFailure("list members", err)
	}
	return members, nil
}

// Invite adds the user registered under email as a MEMBER. Owner only.
func (s *MembershipService) Invite(ctx context.Context, userID, projectID string, req *InviteMemberRequest) (*models.Membership, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, response.NewBadRequest("email is required")
	}

	var membership models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := authorizeOwner(tx, projectID, userID, false); err != nil {
			return err
		}

		var invitee models.User
		if err := tx.Where("email = ?", email).First(&invitee).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.NewNotFound("no user registered with this email")
			}
			return storageFailure("load invitee", err)
		}
		if invitee.ID == userID {
			return response.NewBadRequest("you cannot invite yourself")
		}

		existing, err := membershipOf(tx, projectID, invitee.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return response.NewConflict("user is already a member of this project")
		}

		membership = models.Membership{ProjectID: projectID, UserID: invitee.ID, Role: models.RoleMember}
		if err := tx.Create(&membership).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return response.NewConflict("user is already a member of this project")
			}
			return storageFailure("create membership", err)
		}
		membership.User = &invitee
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// Remove deletes a membership. The owner may remove anyone but themselves;
// a member may only remove their own membership. Tasks assigned to the
// removed membership become unassigned in the same transaction.
func (s *MembershipService) Remove(ctx context.Context, userID, projectID, membershipID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, actor, err := authorizeMember(tx, projectID, userID, true)
		if err != nil {
			return err
		}

		var target models.Membership
		if err := tx.Where("id = ? AND project_id = ?", membershipID, projectID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.NewNotFound("membership not found")
			}
			return storageFailure("load membership", err)
		}

		actorIsOwner := project.OwnerID == userID
		if target.UserID == project.OwnerID {
			if actorIsOwner {
				return response.NewBadRequest("the owner cannot leave their own project")
			}
			return response.NewForbidden("the owner cannot be removed")
		}
		if !actorIsOwner && target.ID != actor.ID {
			return response.NewForbidden("only the project owner can remove other members")
		}

		if err := tx.Model(&models.Task{}).
			Where("project_id = ? AND assignee_id = ?", projectID, target.ID).
			UpdateColumn("assignee_id", nil).Error; err != nil {
			return storageFailure("unassign tasks", err)
		}
		if err := tx.Delete(&target).Error; err != nil {
			return storageFailure("delete membership", err)
		}
		return nil
	})
}
