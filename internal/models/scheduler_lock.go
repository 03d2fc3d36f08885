package models

import "time"

// SchedulerLock is a lease on a scheduled job. A job run identified by
// (Job, Slot) is executed by whichever instance inserts the row first.
type SchedulerLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Job       string    `gorm:"uniqueIndex:idx_job_slot;size:100;not null" json:"job"`
	Slot      string    `gorm:"uniqueIndex:idx_job_slot;size:100;not null" json:"slot"`
	Holder    string    `gorm:"size:36;not null" json:"holder"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }

// Expired reports whether the lease can be taken over at now.
func (l *SchedulerLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
