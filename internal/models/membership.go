package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"
)

// Membership grants a user access to a project. There is at most one per
// (project, user) pair.
type Membership struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ProjectID string    `gorm:"size:36;uniqueIndex:idx_project_user;not null" json:"project_id"`
	Project   *Project  `gorm:"foreignKey:ProjectID" json:"-"`
	UserID    string    `gorm:"size:36;uniqueIndex:idx_project_user;index;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      string    `gorm:"size:20;default:MEMBER;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Membership) TableName() string { return "memberships" }

func (m *Membership) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m *Membership) IsOwner() bool {
	return m.Role == RoleOwner
}
