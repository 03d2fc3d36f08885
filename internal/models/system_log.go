package models

import "time"

// SystemLog is one activity or audit record.
type SystemLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;index" json:"level"` // info, warning, error
	Module    string    `gorm:"size:100;index" json:"module"`
	Action    string    `gorm:"size:200;index" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	ProjectID *string   `gorm:"size:36;index" json:"project_id,omitempty"`
	UserID    *string   `gorm:"size:36" json:"user_id,omitempty"`
	IP        string    `gorm:"size:50" json:"ip,omitempty"`
	UserAgent string    `gorm:"size:500" json:"user_agent,omitempty"`
	Extra     string    `gorm:"type:text" json:"extra,omitempty"` // JSON extra data
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
