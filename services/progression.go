package services

import (
	"context"
	"fmt"
	"log"

	"finquest-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProgressionService records lesson/quiz outcomes and triggers the global
// reward checks that depend on them.
type ProgressionService struct {
	DB      *gorm.DB
	Rewards *RewardService
}

func NewProgressionService(db *gorm.DB, rewards *RewardService) *ProgressionService {
	return &ProgressionService{DB: db, Rewards: rewards}
}

// RecordLevelResult upserts the user's progress for a level. Status only moves
// forward and the best score is kept. Completing a level runs CheckLevel and
// CheckPerfect for the user.
func (s *ProgressionService) RecordLevelResult(ctx context.Context, userID int64, levelID, score int, status models.LevelStatus) (*models.UserLevelProgress, error) {
	if levelID < 1 || score < 0 || !status.Valid() {
		return nil, fmt.Errorf("%w: level=%d score=%d status=%q", ErrInvalidLevelResult, levelID, score, status)
	}

	var prog models.UserLevelProgress
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.UserLevelProgress{UserID: userID, LevelID: levelID, Status: models.LevelNotStarted}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "level_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND level_id = ?", userID, levelID).
			Take(&prog).Error; err != nil {
			return err
		}

		if status.Rank() > prog.Status.Rank() {
			prog.Status = status
		}
		if score > prog.Score {
			prog.Score = score
		}
		return tx.Save(&prog).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record level %d result for %d: %w", levelID, userID, err)
	}

	log.Printf("[PROGRESS] 🎮 user %d level %d → status=%s score=%d", userID, levelID, prog.Status, prog.Score)

	if prog.Status == models.LevelCompleted && s.Rewards != nil {
		if err := s.Rewards.CheckLevel(ctx, levelID, userID); err != nil {
			return &prog, err
		}
		if err := s.Rewards.CheckPerfect(ctx, userID); err != nil {
			return &prog, err
		}
	}
	return &prog, nil
}

// GetLevelProgress lists the user's level rows ordered by level.
func (s *ProgressionService) GetLevelProgress(ctx context.Context, userID int64) ([]models.UserLevelProgress, error) {
	levels := make([]models.UserLevelProgress, 0)
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("level_id ASC").Find(&levels).Error
	return levels, err
}
