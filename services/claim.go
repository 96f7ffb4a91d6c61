package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"finquest-api/models"

	"gorm.io/gorm"
)

// ClaimResult is returned after a successful claim with the user's new ledger.
type ClaimResult struct {
	RewardID int64  `json:"reward_id"`
	Title    string `json:"title"`
	Points   int    `json:"points"`
	Health   int    `json:"health"`
	XP       int64  `json:"xp"`
	Balance  int64  `json:"health_balance"`
	Message  string `json:"message"`
}

// ClaimReward moves a COMPLETE reward to CLAIMED and credits the definition's
// points and health onto the user, all in one transaction.
func (s *RewardService) ClaimReward(ctx context.Context, userID, rewardID int64) (*ClaimResult, error) {
	var result ClaimResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserReward{}).
			Where("user_id = ? AND reward_id = ? AND status = ?", userID, rewardID, models.RewardStatusComplete).
			Update("status", models.RewardStatusClaimed)
		if res.Error != nil {
			return fmt.Errorf("claim reward %d for %d: %w", rewardID, userID, res.Error)
		}
		if res.RowsAffected == 0 {
			var ur models.UserReward
			if err := tx.Where("user_id = ? AND reward_id = ?", userID, rewardID).Take(&ur).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrRewardNotFound
				}
				return fmt.Errorf("fetch user reward %d for %d: %w", rewardID, userID, err)
			}
			return fmt.Errorf("%w: status is %s", ErrRewardNotClaimable, ur.Status)
		}

		var def models.RewardDefinition
		if err := tx.Where("id = ?", rewardID).Take(&def).Error; err != nil {
			return fmt.Errorf("fetch reward definition %d: %w", rewardID, err)
		}

		// UpdateColumns leaves updated_at alone; it tracks profile changes only.
		upd := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(map[string]any{
			"xp":     gorm.Expr("xp + ?", def.Points),
			"health": gorm.Expr("health + ?", def.Health),
		})
		if upd.Error != nil {
			return fmt.Errorf("credit ledger for %d: %w", userID, upd.Error)
		}
		if upd.RowsAffected == 0 {
			return ErrUserNotFound
		}

		var user models.User
		if err := tx.Where("id = ?", userID).Take(&user).Error; err != nil {
			return fmt.Errorf("reload user %d: %w", userID, err)
		}

		result = ClaimResult{
			RewardID: def.ID,
			Title:    def.Title,
			Points:   def.Points,
			Health:   def.Health,
			XP:       user.XP,
			Balance:  user.Health,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[REWARDS] 🎁 user %d claimed reward %d (+%d xp, +%d health) → xp=%d",
		userID, rewardID, result.Points, result.Health, result.XP)

	if s.Leaderboard != nil {
		if err := s.Leaderboard.Record(ctx, userID, result.XP); err != nil {
			log.Printf("[LEADERBOARD] ⚠️ failed to record xp for user %d: %v", userID, err)
		}
	}

	ev := RewardEvent{
		Kind:     EventRewardClaimed,
		UserID:   userID,
		RewardID: rewardID,
		Title:    result.Title,
		Points:   result.Points,
		Health:   result.Health,
	}
	ev.Message = s.Events.ToastMessage(ev.Kind, ev.Points, ev.Health)
	result.Message = ev.Message
	s.Events.Publish(ev)

	return &result, nil
}
