package models

import "time"

// SyncCursor records how far a worker has consumed an upstream change feed.
type SyncCursor struct {
	Name        string    `gorm:"primaryKey;size:64" json:"name"`
	SyncedUntil time.Time `gorm:"not null" json:"synced_until"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (SyncCursor) TableName() string { return "sync_cursors" }
