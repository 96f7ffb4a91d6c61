package models

import "time"

type LevelStatus string

const (
	LevelNotStarted LevelStatus = "not_started"
	LevelInProgress LevelStatus = "in_progress"
	LevelCompleted  LevelStatus = "completed"
)

// Rank orders statuses so progress never moves backwards.
func (s LevelStatus) Rank() int {
	switch s {
	case LevelInProgress:
		return 1
	case LevelCompleted:
		return 2
	}
	return 0
}

func (s LevelStatus) Valid() bool {
	return s == LevelNotStarted || s == LevelInProgress || s == LevelCompleted
}

// UserLevelProgress is written by the lesson/quiz flow and read by the
// reward checks.
type UserLevelProgress struct {
	ID        int64       `gorm:"primaryKey" json:"id"`
	UserID    int64       `gorm:"not null;uniqueIndex:idx_user_level,priority:1" json:"user_id"`
	LevelID   int         `gorm:"not null;uniqueIndex:idx_user_level,priority:2" json:"level_id"`
	Status    LevelStatus `gorm:"type:varchar(16);not null;default:'not_started'" json:"status"`
	Score     int         `gorm:"not null;default:0" json:"score"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (UserLevelProgress) TableName() string { return "user_level_progress" }
