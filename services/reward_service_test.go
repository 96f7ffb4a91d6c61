package services

import (
	"context"
	"errors"
	"testing"

	"finquest-api/models"
)

func TestRewardService_SyncUserRewards(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "Read a lesson", Type: models.RewardTypeDaily, Points: 10, Requirements: intPtr(1)},
		models.RewardDefinition{ID: 2, Title: "Stay healthy", Type: models.RewardTypeDaily, Health: 2, Requirements: intPtr(2)},
		models.RewardDefinition{ID: 10, Title: "First Steps", Type: models.RewardTypeGlobal, Points: 100, Requirements: intPtr(1)},
	)
	s := NewRewardService(db, DefaultRewardRules(), nil)
	ctx := context.Background()

	got, err := s.SyncUserRewards(ctx, 42)
	if err != nil {
		t.Fatalf("s.SyncUserRewards() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("s.SyncUserRewards() got %d rewards, want 2", len(got))
	}
	for i, wantID := range []int64{1, 2} {
		r := got[i]
		if r.RewardID != wantID || r.ID != wantID {
			t.Errorf("s.SyncUserRewards()[%d] reward = %d, want %d", i, r.RewardID, wantID)
		}
		if r.Status != models.RewardStatusAvailable || r.Progress != 0 {
			t.Errorf("s.SyncUserRewards()[%d] got = %s/%d, want AVAILABLE/0", i, r.Status, r.Progress)
		}
		if r.UserID != 42 || r.Type != models.RewardTypeDaily {
			t.Errorf("s.SyncUserRewards()[%d] got user=%d type=%s", i, r.UserID, r.Type)
		}
	}
	if n := countUserRewards(t, db, 42); n != 2 {
		t.Errorf("user_rewards rows = %d, want 2", n)
	}

	again, err := s.SyncUserRewards(ctx, 42)
	if err != nil {
		t.Fatalf("second s.SyncUserRewards() error = %v", err)
	}
	if len(again) != len(got) {
		t.Errorf("second s.SyncUserRewards() got %d rewards, want %d", len(again), len(got))
	}
	if n := countUserRewards(t, db, 42); n != 2 {
		t.Errorf("user_rewards rows after resync = %d, want 2", n)
	}
}

func TestRewardService_SyncUserRewards_PicksUpNewDefinitions(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "Read a lesson", Type: models.RewardTypeDaily, Points: 10, Requirements: intPtr(1)},
	)
	s := NewRewardService(db, DefaultRewardRules(), nil)
	ctx := context.Background()

	if _, err := s.SyncUserRewards(ctx, 7); err != nil {
		t.Fatalf("s.SyncUserRewards() error = %v", err)
	}
	if _, err := s.UpdateCompletedRewards(ctx, 7, models.DimensionPoints); err != nil {
		t.Fatalf("s.UpdateCompletedRewards() error = %v", err)
	}

	seedDefinitions(t, db,
		models.RewardDefinition{ID: 2, Title: "Track a budget", Type: models.RewardTypeDaily, Points: 20, Requirements: intPtr(2)},
	)
	got, err := s.SyncUserRewards(ctx, 7)
	if err != nil {
		t.Fatalf("s.SyncUserRewards() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("s.SyncUserRewards() got %d rewards, want 2", len(got))
	}
	if got[0].Status != models.RewardStatusComplete || got[0].Progress != 1 {
		t.Errorf("existing row got = %s/%d, want COMPLETE/1", got[0].Status, got[0].Progress)
	}
	if got[1].RewardID != 2 || got[1].Status != models.RewardStatusAvailable {
		t.Errorf("new row got = %d/%s, want 2/AVAILABLE", got[1].RewardID, got[1].Status)
	}
}

func TestRewardService_UpdateCompletedRewards(t *testing.T) {
	points := models.DimensionPoints
	health := models.DimensionHealth

	tests := []struct {
		name         string
		def          models.RewardDefinition
		calls        []models.RewardDimension
		wantProgress int
		wantStatus   models.RewardStatus
		wantLast     UpdateResult
	}{
		{
			name:         "completes on the third points call",
			def:          models.RewardDefinition{ID: 1, Title: "Three lessons", Type: models.RewardTypeDaily, Points: 5, Requirements: intPtr(3)},
			calls:        []models.RewardDimension{points, points, points},
			wantProgress: 3,
			wantStatus:   models.RewardStatusComplete,
			wantLast:     UpdateResult{UpdatedCount: 1, Total: 5},
		},
		{
			name:         "not complete after two points calls",
			def:          models.RewardDefinition{ID: 1, Title: "Three lessons", Type: models.RewardTypeDaily, Points: 5, Requirements: intPtr(3)},
			calls:        []models.RewardDimension{points, points},
			wantProgress: 2,
			wantStatus:   models.RewardStatusAvailable,
			wantLast:     UpdateResult{UpdatedCount: 1, Total: 0},
		},
		{
			name:         "complete rows stop advancing",
			def:          models.RewardDefinition{ID: 1, Title: "One lesson", Type: models.RewardTypeDaily, Points: 5, Requirements: intPtr(1)},
			calls:        []models.RewardDimension{points, points, points},
			wantProgress: 1,
			wantStatus:   models.RewardStatusComplete,
			wantLast:     UpdateResult{},
		},
		{
			name:         "health calls never touch a points-only reward",
			def:          models.RewardDefinition{ID: 1, Title: "Three lessons", Type: models.RewardTypeDaily, Points: 5, Requirements: intPtr(3)},
			calls:        []models.RewardDimension{health, health, health, health},
			wantProgress: 0,
			wantStatus:   models.RewardStatusAvailable,
			wantLast:     UpdateResult{},
		},
		{
			name:         "health reward completes on health calls",
			def:          models.RewardDefinition{ID: 1, Title: "Stay healthy", Type: models.RewardTypeDaily, Health: 4, Requirements: intPtr(2)},
			calls:        []models.RewardDimension{health, points, health},
			wantProgress: 2,
			wantStatus:   models.RewardStatusComplete,
			wantLast:     UpdateResult{UpdatedCount: 1, Total: 4},
		},
		{
			name:         "null requirements never complete",
			def:          models.RewardDefinition{ID: 1, Title: "Open ended", Type: models.RewardTypeDaily, Points: 5},
			calls:        []models.RewardDimension{points, points, points},
			wantProgress: 3,
			wantStatus:   models.RewardStatusAvailable,
			wantLast:     UpdateResult{UpdatedCount: 1, Total: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedDefinitions(t, db, tt.def)
			s := NewRewardService(db, DefaultRewardRules(), nil)
			ctx := context.Background()

			if _, err := s.SyncUserRewards(ctx, 1); err != nil {
				t.Fatalf("s.SyncUserRewards() error = %v", err)
			}

			var last UpdateResult
			for _, d := range tt.calls {
				got, err := s.UpdateCompletedRewards(ctx, 1, d)
				if err != nil {
					t.Fatalf("s.UpdateCompletedRewards(%s) error = %v", d, err)
				}
				last = got
			}

			if last != tt.wantLast {
				t.Errorf("s.UpdateCompletedRewards() got = %+v, want %+v", last, tt.wantLast)
			}
			ur := userReward(t, db, 1, tt.def.ID)
			if ur.Progress != tt.wantProgress {
				t.Errorf("progress got = %d, want %d", ur.Progress, tt.wantProgress)
			}
			if ur.Status != tt.wantStatus {
				t.Errorf("status got = %s, want %s", ur.Status, tt.wantStatus)
			}
		})
	}
}

func TestRewardService_UpdateCompletedRewards_InvalidDimension(t *testing.T) {
	db := newTestDB(t)
	s := NewRewardService(db, DefaultRewardRules(), nil)

	_, err := s.UpdateCompletedRewards(context.Background(), 1, models.RewardDimension("xp"))
	if !errors.Is(err, ErrInvalidDimension) {
		t.Errorf("s.UpdateCompletedRewards() error = %v, want %v", err, ErrInvalidDimension)
	}
}

func TestRewardService_UpdateCompletedRewards_IncrementTypes(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "One lesson", Type: models.RewardTypeDaily, Points: 5, Requirements: intPtr(1)},
		models.RewardDefinition{ID: 10, Title: "First Steps", Type: models.RewardTypeGlobal, Points: 100, Requirements: intPtr(1)},
	)
	rules := DefaultRewardRules()
	rules.IncrementTypes = []models.RewardType{models.RewardTypeDaily}
	s := NewRewardService(db, rules, nil)
	ctx := context.Background()

	if _, err := s.SyncUserRewards(ctx, 3); err != nil {
		t.Fatalf("s.SyncUserRewards() error = %v", err)
	}
	if err := db.Create(&models.UserReward{UserID: 3, RewardID: 10, Status: models.RewardStatusAvailable}).Error; err != nil {
		t.Fatalf("seed global row: %v", err)
	}

	got, err := s.UpdateCompletedRewards(ctx, 3, models.DimensionPoints)
	if err != nil {
		t.Fatalf("s.UpdateCompletedRewards() error = %v", err)
	}
	if want := (UpdateResult{UpdatedCount: 1, Total: 5}); got != want {
		t.Errorf("s.UpdateCompletedRewards() got = %+v, want %+v", got, want)
	}
	if ur := userReward(t, db, 3, 10); ur.Progress != 0 || ur.Status != models.RewardStatusAvailable {
		t.Errorf("global row got = %s/%d, want AVAILABLE/0", ur.Status, ur.Progress)
	}
}

func TestRewardService_UpdateCompletedRewards_PublishesCompletion(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "Big saver", Type: models.RewardTypeDaily, Points: 1000, Requirements: intPtr(1)},
	)
	bus := NewRewardEventBus(4)
	s := NewRewardService(db, DefaultRewardRules(), bus)
	ctx := context.Background()

	events, cancel := bus.Subscribe(5)
	defer cancel()

	if _, err := s.SyncUserRewards(ctx, 5); err != nil {
		t.Fatalf("s.SyncUserRewards() error = %v", err)
	}
	if _, err := s.UpdateCompletedRewards(ctx, 5, models.DimensionPoints); err != nil {
		t.Fatalf("s.UpdateCompletedRewards() error = %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != EventRewardCompleted || ev.RewardID != 1 {
			t.Errorf("event got = %s/%d, want completed/1", ev.Kind, ev.RewardID)
		}
		if want := "+1,000 points unlocked"; ev.Message != want {
			t.Errorf("event message got = %q, want %q", ev.Message, want)
		}
	default:
		t.Fatal("no completion event published")
	}
}

func TestRewardService_Advance(t *testing.T) {
	def := models.RewardDefinition{ID: 1, Title: "Three lessons", Type: models.RewardTypeDaily, Points: 5, Requirements: intPtr(3)}

	tests := []struct {
		name         string
		maxAttempts  int
		concurrent   map[string]any
		wantTouched  bool
		wantErr      error
		wantProgress int
		wantStatus   models.RewardStatus
	}{
		{
			name:         "fresh row advances",
			maxAttempts:  5,
			wantTouched:  true,
			wantProgress: 1,
			wantStatus:   models.RewardStatusAvailable,
		},
		{
			name:         "stale row retries on the current progress",
			maxAttempts:  5,
			concurrent:   map[string]any{"progress": 1},
			wantTouched:  true,
			wantProgress: 2,
			wantStatus:   models.RewardStatusAvailable,
		},
		{
			name:         "row completed meanwhile is skipped",
			maxAttempts:  5,
			concurrent:   map[string]any{"progress": 3, "status": models.RewardStatusComplete},
			wantTouched:  false,
			wantProgress: 3,
			wantStatus:   models.RewardStatusComplete,
		},
		{
			name:         "attempts exhausted",
			maxAttempts:  1,
			concurrent:   map[string]any{"progress": 1},
			wantErr:      ErrContention,
			wantProgress: 1,
			wantStatus:   models.RewardStatusAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedDefinitions(t, db, def)
			rules := DefaultRewardRules()
			rules.MaxCASAttempts = tt.maxAttempts
			s := NewRewardService(db, rules, nil)
			ctx := context.Background()

			if _, err := s.SyncUserRewards(ctx, 1); err != nil {
				t.Fatalf("s.SyncUserRewards() error = %v", err)
			}
			var row models.UserReward
			if err := db.Preload("Reward").Where("user_id = ?", 1).Take(&row).Error; err != nil {
				t.Fatalf("load row: %v", err)
			}
			if tt.concurrent != nil {
				if err := db.Model(&models.UserReward{}).Where("id = ?", row.ID).Updates(tt.concurrent).Error; err != nil {
					t.Fatalf("concurrent update: %v", err)
				}
			}

			touched, _, err := s.advance(ctx, row)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("s.advance() error = %v, want %v", err, tt.wantErr)
			}
			if touched != tt.wantTouched {
				t.Errorf("s.advance() touched = %v, want %v", touched, tt.wantTouched)
			}
			ur := userReward(t, db, 1, def.ID)
			if ur.Progress != tt.wantProgress || ur.Status != tt.wantStatus {
				t.Errorf("row got = %s/%d, want %s/%d", ur.Status, ur.Progress, tt.wantStatus, tt.wantProgress)
			}
		})
	}
}

func TestRewardService_CheckLevel(t *testing.T) {
	tests := []struct {
		name        string
		levelStatus models.LevelStatus // empty: no level row
		rowStatus   models.RewardStatus
		want        models.RewardStatus
	}{
		{name: "level in progress is a no-op", levelStatus: models.LevelInProgress, rowStatus: models.RewardStatusAvailable, want: models.RewardStatusAvailable},
		{name: "missing level is a no-op", rowStatus: models.RewardStatusAvailable, want: models.RewardStatusAvailable},
		{name: "completed level completes the reward", levelStatus: models.LevelCompleted, rowStatus: models.RewardStatusAvailable, want: models.RewardStatusComplete},
		{name: "claimed reward never regresses", levelStatus: models.LevelCompleted, rowStatus: models.RewardStatusClaimed, want: models.RewardStatusClaimed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedDefinitions(t, db,
				models.RewardDefinition{ID: 20, Title: "Level five", Type: models.RewardTypeGlobal, Points: 50, Requirements: intPtr(5)},
			)
			if err := db.Create(&models.UserReward{UserID: 9, RewardID: 20, Status: tt.rowStatus}).Error; err != nil {
				t.Fatalf("seed row: %v", err)
			}
			if tt.levelStatus != "" {
				seedLevel(t, db, 9, 5, 80, tt.levelStatus)
			}
			s := NewRewardService(db, DefaultRewardRules(), nil)

			if err := s.CheckLevel(context.Background(), 5, 9); err != nil {
				t.Fatalf("s.CheckLevel() error = %v", err)
			}
			if got := userReward(t, db, 9, 20).Status; got != tt.want {
				t.Errorf("s.CheckLevel() status got = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRewardService_CheckPerfect(t *testing.T) {
	type level struct {
		id     int
		score  int
		status models.LevelStatus
	}
	tests := []struct {
		name   string
		levels []level
		want   models.RewardStatus
	}{
		{
			name:   "999 does not complete",
			levels: []level{{1, 500, models.LevelCompleted}, {2, 499, models.LevelCompleted}},
			want:   models.RewardStatusAvailable,
		},
		{
			name:   "1000 completes",
			levels: []level{{1, 500, models.LevelCompleted}, {2, 500, models.LevelCompleted}},
			want:   models.RewardStatusComplete,
		},
		{
			name:   "unfinished levels do not count",
			levels: []level{{1, 500, models.LevelCompleted}, {2, 499, models.LevelCompleted}, {3, 100, models.LevelInProgress}},
			want:   models.RewardStatusAvailable,
		},
		{
			name: "no levels",
			want: models.RewardStatusAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedDefinitions(t, db, globalCatalog()...)
			s := NewRewardService(db, DefaultRewardRules(), nil)
			ctx := context.Background()

			if _, err := s.ensureUserRewards(ctx, 4, models.RewardTypeGlobal); err != nil {
				t.Fatalf("s.ensureUserRewards() error = %v", err)
			}
			for _, l := range tt.levels {
				seedLevel(t, db, 4, l.id, l.score, l.status)
			}

			if err := s.CheckPerfect(ctx, 4); err != nil {
				t.Fatalf("s.CheckPerfect() error = %v", err)
			}
			if got := userReward(t, db, 4, 13).Status; got != tt.want {
				t.Errorf("s.CheckPerfect() status got = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRewardService_SyncUserGlobalRewards(t *testing.T) {
	db := newTestDB(t)
	seedDefinitions(t, db, globalCatalog()...)
	seedDefinitions(t, db,
		models.RewardDefinition{ID: 1, Title: "Read a lesson", Type: models.RewardTypeDaily, Points: 10, Requirements: intPtr(1)},
	)
	seedLevel(t, db, 8, 1, 90, models.LevelCompleted)
	seedLevel(t, db, 8, 3, 70, models.LevelCompleted)
	seedLevel(t, db, 8, 10, 20, models.LevelInProgress)

	s := NewRewardService(db, DefaultRewardRules(), nil)
	got, err := s.SyncUserGlobalRewards(context.Background(), 8)
	if err != nil {
		t.Fatalf("s.SyncUserGlobalRewards() error = %v", err)
	}

	want := []struct {
		rewardID int64
		status   models.RewardStatus
	}{
		{10, models.RewardStatusComplete},
		{11, models.RewardStatusComplete},
		{12, models.RewardStatusAvailable},
		{13, models.RewardStatusAvailable},
	}
	if len(got) != len(want) {
		t.Fatalf("s.SyncUserGlobalRewards() got %d rewards, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].RewardID != w.rewardID || got[i].Status != w.status {
			t.Errorf("s.SyncUserGlobalRewards()[%d] got = %d/%s, want %d/%s", i, got[i].RewardID, got[i].Status, w.rewardID, w.status)
		}
		if got[i].Type != models.RewardTypeGlobal {
			t.Errorf("s.SyncUserGlobalRewards()[%d] type = %s, want global", i, got[i].Type)
		}
	}
	if n := countUserRewards(t, db, 8); n != 4 {
		t.Errorf("user_rewards rows = %d, want 4 (daily rows are not created)", n)
	}
}
