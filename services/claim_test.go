package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"finquest-api/models"
)

func TestRewardService_ClaimReward(t *testing.T) {
	tests := []struct {
		name       string
		withUser   bool
		rowStatus  models.RewardStatus // empty: no row
		rewardID   int64
		wantErr    error
		wantXP     int64
		wantHealth int64
		wantStatus models.RewardStatus
	}{
		{
			name:       "complete reward credits the ledger",
			withUser:   true,
			rowStatus:  models.RewardStatusComplete,
			rewardID:   1,
			wantXP:     1000,
			wantHealth: 5,
			wantStatus: models.RewardStatusClaimed,
		},
		{
			name:       "available reward is not claimable",
			withUser:   true,
			rowStatus:  models.RewardStatusAvailable,
			rewardID:   1,
			wantErr:    ErrRewardNotClaimable,
			wantStatus: models.RewardStatusAvailable,
		},
		{
			name:       "claimed reward is not claimable twice",
			withUser:   true,
			rowStatus:  models.RewardStatusClaimed,
			rewardID:   1,
			wantErr:    ErrRewardNotClaimable,
			wantStatus: models.RewardStatusClaimed,
		},
		{
			name:     "unknown reward",
			withUser: true,
			rewardID: 99,
			wantErr:  ErrRewardNotFound,
		},
		{
			name:       "missing user rolls the claim back",
			rowStatus:  models.RewardStatusComplete,
			rewardID:   1,
			wantErr:    ErrUserNotFound,
			wantStatus: models.RewardStatusComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedDefinitions(t, db,
				models.RewardDefinition{ID: 1, Title: "Big saver", Type: models.RewardTypeDaily, Points: 1000, Health: 5, Requirements: intPtr(1)},
			)
			if tt.withUser {
				seedUser(t, db, 6, "ada")
			}
			if tt.rowStatus != "" {
				if err := db.Create(&models.UserReward{UserID: 6, RewardID: 1, Progress: 1, Status: tt.rowStatus}).Error; err != nil {
					t.Fatalf("seed row: %v", err)
				}
			}
			s := NewRewardService(db, DefaultRewardRules(), NewRewardEventBus(4))

			got, err := s.ClaimReward(context.Background(), 6, tt.rewardID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("s.ClaimReward() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if got.XP != tt.wantXP || got.Balance != tt.wantHealth {
					t.Errorf("s.ClaimReward() got = xp %d health %d, want xp %d health %d", got.XP, got.Balance, tt.wantXP, tt.wantHealth)
				}
				if want := "+1,000 points and +5 health claimed"; got.Message != want {
					t.Errorf("s.ClaimReward() message = %q, want %q", got.Message, want)
				}
			}
			if tt.rowStatus != "" {
				if status := userReward(t, db, 6, 1).Status; status != tt.wantStatus {
					t.Errorf("status got = %s, want %s", status, tt.wantStatus)
				}
			}
			if tt.withUser {
				var u models.User
				if err := db.Where("id = ?", 6).Take(&u).Error; err != nil {
					t.Fatalf("load user: %v", err)
				}
				if u.XP != tt.wantXP || u.Health != tt.wantHealth {
					t.Errorf("ledger got = xp %d health %d, want xp %d health %d", u.XP, u.Health, tt.wantXP, tt.wantHealth)
				}
			}
		})
	}
}

func TestRewardService_ClaimReward_EndToEnd(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "Two lessons", Type: models.RewardTypeDaily, Points: 40, Requirements: intPtr(2)},
	)
	seedUser(t, db, 2, "grace")
	bus := NewRewardEventBus(8)
	s := NewRewardService(db, DefaultRewardRules(), bus)
	s.Leaderboard = NewLeaderboardService(db, nil)
	ctx := context.Background()

	events, cancel := bus.Subscribe(2)
	defer cancel()

	if _, err := s.SyncUserRewards(ctx, 2); err != nil {
		t.Fatalf("s.SyncUserRewards() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.UpdateCompletedRewards(ctx, 2, models.DimensionPoints); err != nil {
			t.Fatalf("s.UpdateCompletedRewards() error = %v", err)
		}
	}
	if _, err := s.ClaimReward(ctx, 2, 1); err != nil {
		t.Fatalf("s.ClaimReward() error = %v", err)
	}
	if _, err := s.ClaimReward(ctx, 2, 1); !errors.Is(err, ErrRewardNotClaimable) {
		t.Errorf("second s.ClaimReward() error = %v, want %v", err, ErrRewardNotClaimable)
	}

	var kinds []RewardEventKind
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		default:
			t.Fatalf("got %d event(s), want 2", len(kinds))
		}
	}
	if kinds[0] != EventRewardCompleted || kinds[1] != EventRewardClaimed {
		t.Errorf("event kinds got = %v, want [completed claimed]", kinds)
	}

	top, err := s.Leaderboard.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard.Top() error = %v", err)
	}
	if len(top) != 1 || top[0].UserID != 2 || top[0].XP != 40 {
		t.Errorf("Leaderboard.Top() got = %+v, want user 2 with 40 xp", top)
	}
}

func TestRewardService_ClaimReward_KeepsProfileTimestamp(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "Big saver", Type: models.RewardTypeDaily, Points: 1000, Requirements: intPtr(1)},
	)
	synced := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Create(&models.User{ID: 6, Username: "ada", UpdatedAt: synced}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := db.Create(&models.UserReward{UserID: 6, RewardID: 1, Progress: 1, Status: models.RewardStatusComplete}).Error; err != nil {
		t.Fatalf("seed row: %v", err)
	}

	s := NewRewardService(db, DefaultRewardRules(), nil)
	if _, err := s.ClaimReward(context.Background(), 6, 1); err != nil {
		t.Fatalf("s.ClaimReward() error = %v", err)
	}

	var user models.User
	if err := db.Where("id = ?", 6).Take(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.XP != 1000 {
		t.Errorf("user.XP got = %d, want 1000", user.XP)
	}
	if !user.UpdatedAt.Equal(synced) {
		t.Errorf("user.UpdatedAt got = %s, want %s (profile sync timestamp)", user.UpdatedAt, synced)
	}
}
