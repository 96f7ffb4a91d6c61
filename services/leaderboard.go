package services

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"finquest-api/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const LeaderboardKey = "leaderboard:xp"

type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	XP       int64  `json:"xp"`
}

// LeaderboardService ranks users by xp. With a Redis client the ranking is
// served from a sorted set; without one it is read straight from users.
type LeaderboardService struct {
	DB    *gorm.DB
	Redis *redis.Client
	Key   string
}

func NewLeaderboardService(db *gorm.DB, rdb *redis.Client) *LeaderboardService {
	return &LeaderboardService{DB: db, Redis: rdb, Key: LeaderboardKey}
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// Record stores the user's absolute xp.
func (s *LeaderboardService) Record(ctx context.Context, userID, xp int64) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.ZAdd(ctx, s.Key, redis.Z{Score: float64(xp), Member: strconv.FormatInt(userID, 10)}).Err()
}

// Prime rebuilds the sorted set from the users table.
func (s *LeaderboardService) Prime(ctx context.Context) error {
	if s.Redis == nil {
		return nil
	}
	var users []models.User
	var primed int
	res := s.DB.WithContext(ctx).Select("id", "xp").Where("xp > 0").
		FindInBatches(&users, 500, func(tx *gorm.DB, batch int) error {
			members := make([]redis.Z, 0, len(users))
			for _, u := range users {
				members = append(members, redis.Z{Score: float64(u.XP), Member: strconv.FormatInt(u.ID, 10)})
			}
			if err := s.Redis.ZAdd(ctx, s.Key, members...).Err(); err != nil {
				return err
			}
			primed += len(members)
			return nil
		})
	if res.Error != nil {
		return fmt.Errorf("prime leaderboard: %w", res.Error)
	}
	log.Printf("[LEADERBOARD] ✅ primed %d user(s) into %s", primed, s.Key)
	return nil
}

// Top returns the first limit users by xp, highest first.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	limit = clampLimit(limit)
	if s.Redis == nil {
		return s.topFromDB(ctx, limit)
	}

	zs, err := s.Redis.ZRevRangeWithScores(ctx, s.Key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	ids := make([]int64, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	names := make(map[int64]string, len(ids))
	if len(ids) > 0 {
		var users []models.User
		if err := s.DB.WithContext(ctx).Select("id", "username").Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, fmt.Errorf("load leaderboard users: %w", err)
		}
		for _, u := range users {
			names[u.ID] = u.Username
		}
	}

	entries := make([]LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Rank:     len(entries) + 1,
			UserID:   id,
			Username: names[id],
			XP:       int64(z.Score),
		})
	}
	return entries, nil
}

func (s *LeaderboardService) topFromDB(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Order("xp DESC").Order("id ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{Rank: i + 1, UserID: u.ID, Username: u.Username, XP: u.XP})
	}
	return entries, nil
}
