package models

import (
	"time"
)

// User is the learner account and its points/health ledger.
// Profile fields are mirrored from the profile service by the sync worker;
// XP and Health are only ever credited by reward claims.
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"index" json:"email"`
	Username  string    `gorm:"index" json:"username"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	XP        int64     `gorm:"column:xp;not null;default:0" json:"xp"`
	Health    int64     `gorm:"not null;default:0" json:"health"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
