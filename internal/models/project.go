package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project owns its memberships and tasks; deleting it removes both.
type Project struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Name        string       `gorm:"size:200;not null" json:"name"`
	OwnerID     string       `gorm:"size:36;index;not null" json:"owner_id"`
	Owner       *User        `gorm:"foreignKey:OwnerID" json:"-"`
	Memberships []Membership `gorm:"foreignKey:ProjectID" json:"-"`
	Tasks       []Task       `gorm:"foreignKey:ProjectID" json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `gorm:"index" json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
