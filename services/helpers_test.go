package services

import (
	"strings"
	"testing"

	"finquest-api/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func intPtr(v int) *int { return &v }

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{},
		&models.RewardDefinition{},
		&models.UserReward{},
		&models.UserLevelProgress{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedDefinitions(t *testing.T, db *gorm.DB, defs ...models.RewardDefinition) {
	t.Helper()
	for i := range defs {
		if err := db.Create(&defs[i]).Error; err != nil {
			t.Fatalf("seed reward %q: %v", defs[i].Title, err)
		}
	}
}

func seedUser(t *testing.T, db *gorm.DB, id int64, username string) {
	t.Helper()
	if err := db.Create(&models.User{ID: id, Username: username, Email: username + "@example.com"}).Error; err != nil {
		t.Fatalf("seed user %d: %v", id, err)
	}
}

func seedLevel(t *testing.T, db *gorm.DB, userID int64, levelID, score int, status models.LevelStatus) {
	t.Helper()
	lp := models.UserLevelProgress{UserID: userID, LevelID: levelID, Score: score, Status: status}
	if err := db.Create(&lp).Error; err != nil {
		t.Fatalf("seed level %d for %d: %v", levelID, userID, err)
	}
}

func userReward(t *testing.T, db *gorm.DB, userID, rewardID int64) models.UserReward {
	t.Helper()
	var ur models.UserReward
	if err := db.Where("user_id = ? AND reward_id = ?", userID, rewardID).Take(&ur).Error; err != nil {
		t.Fatalf("load user reward %d/%d: %v", userID, rewardID, err)
	}
	return ur
}

func countUserRewards(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.UserReward{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count user rewards: %v", err)
	}
	return n
}

// globalCatalog mirrors the seeded milestone and perfect-score rewards.
func globalCatalog() []models.RewardDefinition {
	return []models.RewardDefinition{
		{ID: 10, Title: "First Steps", Type: models.RewardTypeGlobal, Points: 100, Requirements: intPtr(1)},
		{ID: 11, Title: "Budget Builder", Type: models.RewardTypeGlobal, Points: 300, Requirements: intPtr(3)},
		{ID: 12, Title: "Money Master", Type: models.RewardTypeGlobal, Points: 1000, Requirements: intPtr(10)},
		{ID: 13, Title: "Perfectionist", Type: models.RewardTypeGlobal, Health: 10, Requirements: intPtr(100)},
	}
}
