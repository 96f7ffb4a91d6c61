package models

import (
	"time"
)

// RewardType partitions the catalog by unlock cadence
type RewardType string

const (
	RewardTypeDaily  RewardType = "daily"
	RewardTypeGlobal RewardType = "global"
)

// RewardStatus is forward-only: AVAILABLE -> COMPLETE -> CLAIMED
type RewardStatus string

const (
	RewardStatusAvailable RewardStatus = "AVAILABLE"
	RewardStatusComplete  RewardStatus = "COMPLETE"
	RewardStatusClaimed   RewardStatus = "CLAIMED"
)

// RewardDimension selects which ledger value a qualifying event counts toward
type RewardDimension string

const (
	DimensionPoints RewardDimension = "points"
	DimensionHealth RewardDimension = "health"
)

// RewardDefinition is an immutable catalog entry.
// Requirements depends on Type: a progress-count threshold for daily rewards,
// a level id (or the perfect-score marker) for global rewards. NULL never completes.
type RewardDefinition struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description"`
	Type         RewardType `gorm:"type:varchar(16);not null;index" json:"type"`
	Points       int        `gorm:"not null;default:0" json:"points"`
	Health       int        `gorm:"not null;default:0" json:"health"`
	Badge        *string    `gorm:"type:text" json:"badge"`
	Requirements *int       `json:"requirements"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (RewardDefinition) TableName() string { return "rewards" }

// Value returns the definition's reward in the given dimension.
func (r *RewardDefinition) Value(d RewardDimension) int {
	switch d {
	case DimensionPoints:
		return r.Points
	case DimensionHealth:
		return r.Health
	}
	return 0
}

// UserReward is the per-user progress row against one definition.
type UserReward struct {
	ID        int64             `gorm:"primaryKey" json:"id"`
	UserID    int64             `gorm:"not null;uniqueIndex:idx_user_reward,priority:1" json:"user_id"`
	RewardID  int64             `gorm:"not null;uniqueIndex:idx_user_reward,priority:2;index" json:"reward_id"`
	Progress  int               `gorm:"not null;default:0" json:"progress"`
	Status    RewardStatus      `gorm:"type:varchar(16);not null;default:'AVAILABLE';index" json:"status"`
	Reward    *RewardDefinition `gorm:"foreignKey:RewardID" json:"reward,omitempty"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserReward) TableName() string { return "user_rewards" }

// MergedReward is the flattened view returned to callers: definition fields
// plus the user's status and progress.
type MergedReward struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Type         RewardType   `json:"type"`
	Points       int          `json:"points"`
	Health       int          `json:"health"`
	Badge        *string      `json:"badge"`
	Requirements *int         `json:"requirements"`
	Status       RewardStatus `json:"status"`
	Progress     int          `json:"progress"`
	UserID       int64        `json:"user_id"`
	RewardID     int64        `json:"reward_id"`
}
