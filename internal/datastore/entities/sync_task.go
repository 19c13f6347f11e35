package entities

import "time"

// SyncTask is a payload queued while offline, replayed to the sync endpoint
// when a sync event for its tag fires. ID order is enqueue order.
type SyncTask struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"size:36;not null;uniqueIndex" json:"uuid"`
	Tag       string    `gorm:"size:100;not null;index" json:"tag"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	LastError string    `gorm:"size:1000;default:''" json:"last_error"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (SyncTask) TableName() string {
	return "sync_tasks"
}
