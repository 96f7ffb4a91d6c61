// services/reward_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"finquest-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRules carries the constants that couple reconciliation to the seeded catalog.
type RewardRules struct {
	// MilestoneLevels are checked by SyncUserGlobalRewards via CheckLevel.
	MilestoneLevels []int
	// PerfectScoreTotal is the completed-level score sum that unlocks the
	// global reward whose requirements equal PerfectRequirement.
	PerfectScoreTotal  int
	PerfectRequirement int
	// IncrementTypes limits which catalog partitions UpdateCompletedRewards scans.
	IncrementTypes []models.RewardType
	MaxCASAttempts int
}

func DefaultRewardRules() RewardRules {
	return RewardRules{
		MilestoneLevels:    []int{1, 3, 10},
		PerfectScoreTotal:  1000,
		PerfectRequirement: 100,
		IncrementTypes:     []models.RewardType{models.RewardTypeDaily, models.RewardTypeGlobal},
		MaxCASAttempts:     5,
	}
}

// UpdateResult reports one qualifying event: rows advanced and the summed
// dimension value of rows that just became COMPLETE.
type UpdateResult struct {
	UpdatedCount int `json:"updatedCount"`
	Total        int `json:"total"`
}

type RewardService struct {
	DB          *gorm.DB
	Rules       RewardRules
	Events      *RewardEventBus
	Leaderboard *LeaderboardService
}

func NewRewardService(db *gorm.DB, rules RewardRules, events *RewardEventBus) *RewardService {
	if rules.MaxCASAttempts < 1 {
		rules.MaxCASAttempts = 1
	}
	return &RewardService{DB: db, Rules: rules, Events: events}
}

// SyncUserRewards ensures the user has a row for every daily reward and
// returns the merged daily view in insertion order.
func (s *RewardService) SyncUserRewards(ctx context.Context, userID int64) ([]models.MergedReward, error) {
	inserted, err := s.ensureUserRewards(ctx, userID, models.RewardTypeDaily)
	if err != nil {
		return nil, err
	}
	if inserted > 0 {
		log.Printf("[REWARDS] user %d: created %d daily reward row(s)", userID, inserted)
	}
	return s.mergedRewards(ctx, userID, models.RewardTypeDaily, "user_rewards.id ASC")
}

// SyncUserGlobalRewards ensures global rows exist, runs the milestone and
// perfect-score checks, then returns the merged global view by reward id.
func (s *RewardService) SyncUserGlobalRewards(ctx context.Context, userID int64) ([]models.MergedReward, error) {
	inserted, err := s.ensureUserRewards(ctx, userID, models.RewardTypeGlobal)
	if err != nil {
		return nil, err
	}
	if inserted > 0 {
		log.Printf("[REWARDS] user %d: created %d global reward row(s)", userID, inserted)
	}

	for _, levelID := range s.Rules.MilestoneLevels {
		if err := s.CheckLevel(ctx, levelID, userID); err != nil {
			return nil, err
		}
	}
	if err := s.CheckPerfect(ctx, userID); err != nil {
		return nil, err
	}

	return s.mergedRewards(ctx, userID, models.RewardTypeGlobal, "user_rewards.reward_id ASC")
}

// ensureUserRewards inserts AVAILABLE/0 rows for definitions of type t the
// user has no row for. Concurrent callers are absorbed by the unique index.
func (s *RewardService) ensureUserRewards(ctx context.Context, userID int64, t models.RewardType) (int, error) {
	db := s.DB.WithContext(ctx)

	var defs []models.RewardDefinition
	if err := db.Where("type = ?", t).Order("id ASC").Find(&defs).Error; err != nil {
		return 0, fmt.Errorf("fetch %s reward definitions: %w", t, err)
	}

	var existing []int64
	if err := db.Model(&models.UserReward{}).Where("user_id = ?", userID).Pluck("reward_id", &existing).Error; err != nil {
		return 0, fmt.Errorf("fetch user rewards for %d: %w", userID, err)
	}
	have := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		have[id] = struct{}{}
	}

	var missing []models.UserReward
	for _, def := range defs {
		if _, ok := have[def.ID]; ok {
			continue
		}
		missing = append(missing, models.UserReward{
			UserID:   userID,
			RewardID: def.ID,
			Progress: 0,
			Status:   models.RewardStatusAvailable,
		})
	}
	if len(missing) == 0 {
		return 0, nil
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "reward_id"}},
		DoNothing: true,
	}).Create(&missing)
	if res.Error != nil {
		return 0, fmt.Errorf("insert %d user reward(s) for %d: %w", len(missing), userID, res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *RewardService) mergedRewards(ctx context.Context, userID int64, t models.RewardType, order string) ([]models.MergedReward, error) {
	out := make([]models.MergedReward, 0)
	err := s.DB.WithContext(ctx).
		Table("user_rewards").
		Select("rewards.id, rewards.title, rewards.description, rewards.type, rewards.points, rewards.health, "+
			"rewards.badge, rewards.requirements, user_rewards.status, user_rewards.progress, "+
			"user_rewards.user_id, user_rewards.reward_id").
		Joins("JOIN rewards ON rewards.id = user_rewards.reward_id").
		Where("user_rewards.user_id = ? AND rewards.type = ?", userID, t).
		Order(order).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("fetch merged %s rewards for %d: %w", t, userID, err)
	}
	return out, nil
}

// UpdateCompletedRewards records one qualifying event in dimension d.
// Every AVAILABLE row whose definition pays out in d advances by one and
// becomes COMPLETE once progress reaches requirements (NULL never completes).
func (s *RewardService) UpdateCompletedRewards(ctx context.Context, userID int64, d models.RewardDimension) (UpdateResult, error) {
	var result UpdateResult
	if d != models.DimensionPoints && d != models.DimensionHealth {
		return result, fmt.Errorf("%w: %q", ErrInvalidDimension, d)
	}

	db := s.DB.WithContext(ctx)
	q := db.Preload("Reward").Where("user_id = ? AND status = ?", userID, models.RewardStatusAvailable)
	if len(s.Rules.IncrementTypes) > 0 {
		q = q.Where("reward_id IN (?)", db.Model(&models.RewardDefinition{}).Select("id").Where("type IN ?", s.Rules.IncrementTypes))
	}
	var rows []models.UserReward
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return result, fmt.Errorf("fetch available rewards for %d: %w", userID, err)
	}

	for _, row := range rows {
		if row.Reward == nil || row.Reward.Value(d) <= 0 {
			continue
		}
		touched, completed, err := s.advance(ctx, row)
		if err != nil {
			return result, err
		}
		if !touched {
			continue
		}
		result.UpdatedCount++
		if completed {
			result.Total += row.Reward.Value(d)
			s.Events.Publish(RewardEvent{
				Kind:     EventRewardCompleted,
				UserID:   userID,
				RewardID: row.RewardID,
				Title:    row.Reward.Title,
				Points:   row.Reward.Points,
				Health:   row.Reward.Health,
			})
		}
	}
	return result, nil
}

// advance bumps progress by one with a compare-and-swap on (status, progress),
// re-reading and retrying when another writer got there first.
func (s *RewardService) advance(ctx context.Context, row models.UserReward) (touched, completed bool, err error) {
	def := row.Reward
	current := row
	for attempt := 0; attempt < s.Rules.MaxCASAttempts; attempt++ {
		next := current.Progress + 1
		status := models.RewardStatusAvailable
		if thresholdReached(def.Requirements, next) {
			status = models.RewardStatusComplete
		}

		res := s.DB.WithContext(ctx).Model(&models.UserReward{}).
			Where("id = ? AND status = ? AND progress = ?", current.ID, models.RewardStatusAvailable, current.Progress).
			Updates(map[string]any{"progress": next, "status": status})
		if res.Error != nil {
			return false, false, fmt.Errorf("update user reward %d: %w", current.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			return true, status == models.RewardStatusComplete, nil
		}

		var fresh models.UserReward
		if err := s.DB.WithContext(ctx).Where("id = ?", current.ID).Take(&fresh).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, false, nil
			}
			return false, false, fmt.Errorf("reload user reward %d: %w", current.ID, err)
		}
		if fresh.Status != models.RewardStatusAvailable {
			return false, false, nil
		}
		current = fresh
	}
	return false, false, fmt.Errorf("%w: user reward %d", ErrContention, row.ID)
}

func thresholdReached(requirements *int, progress int) bool {
	return requirements != nil && progress >= *requirements
}

// CheckLevel completes the user's AVAILABLE global reward tied to levelID
// once that level is completed. Anything missing is a no-op.
func (s *RewardService) CheckLevel(ctx context.Context, levelID int, userID int64) error {
	var lp models.UserLevelProgress
	err := s.DB.WithContext(ctx).Where("user_id = ? AND level_id = ?", userID, levelID).Take(&lp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch level %d progress for %d: %w", levelID, userID, err)
	}
	if lp.Status != models.LevelCompleted {
		return nil
	}
	return s.completeGlobalByRequirement(ctx, userID, levelID)
}

// CheckPerfect completes the perfect-score global reward once the user's
// completed levels add up to PerfectScoreTotal.
func (s *RewardService) CheckPerfect(ctx context.Context, userID int64) error {
	var total int64
	err := s.DB.WithContext(ctx).Model(&models.UserLevelProgress{}).
		Select("COALESCE(SUM(score), 0)").
		Where("user_id = ? AND status = ?", userID, models.LevelCompleted).
		Scan(&total).Error
	if err != nil {
		return fmt.Errorf("sum completed scores for %d: %w", userID, err)
	}
	if total < int64(s.Rules.PerfectScoreTotal) {
		return nil
	}
	return s.completeGlobalByRequirement(ctx, userID, s.Rules.PerfectRequirement)
}

func (s *RewardService) completeGlobalByRequirement(ctx context.Context, userID int64, requirement int) error {
	db := s.DB.WithContext(ctx)

	var ur models.UserReward
	err := db.Preload("Reward").
		Joins("JOIN rewards ON rewards.id = user_rewards.reward_id").
		Where("user_rewards.user_id = ? AND user_rewards.status = ?", userID, models.RewardStatusAvailable).
		Where("rewards.type = ? AND rewards.requirements = ?", models.RewardTypeGlobal, requirement).
		Order("user_rewards.reward_id ASC").
		Take(&ur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch global reward (requirements=%d) for %d: %w", requirement, userID, err)
	}

	res := db.Model(&models.UserReward{}).
		Where("id = ? AND status = ?", ur.ID, models.RewardStatusAvailable).
		Update("status", models.RewardStatusComplete)
	if res.Error != nil {
		return fmt.Errorf("complete user reward %d: %w", ur.ID, res.Error)
	}
	if res.RowsAffected == 1 && ur.Reward != nil {
		log.Printf("[REWARDS] 🏆 user %d completed global reward %d (%s)", userID, ur.RewardID, ur.Reward.Title)
		s.Events.Publish(RewardEvent{
			Kind:     EventRewardCompleted,
			UserID:   userID,
			RewardID: ur.RewardID,
			Title:    ur.Reward.Title,
			Points:   ur.Reward.Points,
			Health:   ur.Reward.Health,
		})
	}
	return nil
}
