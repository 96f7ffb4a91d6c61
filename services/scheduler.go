// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"finquest-api/models"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"
)

// SweepGlobalRewards re-runs SyncUserGlobalRewards for every user who
// completed a level after since. Per-user failures are logged and skipped.
// It returns how many users were reconciled successfully.
func (s *RewardService) SweepGlobalRewards(ctx context.Context, since time.Time, concurrency int) (int, error) {
	var userIDs []int64
	err := s.DB.WithContext(ctx).Model(&models.UserLevelProgress{}).
		Where("status = ? AND updated_at > ?", models.LevelCompleted, since).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return 0, fmt.Errorf("find users to sweep: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]bool, len(userIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			if _, err := s.SyncUserGlobalRewards(gctx, userID); err != nil {
				log.Printf("[SWEEP] ❌ user %d: %v", userID, err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var ok int
	for _, r := range results {
		if r {
			ok++
		}
	}
	return ok, nil
}

// StartReconcileScheduler sweeps global rewards every interval. The returned
// scheduler must be shut down by the caller.
func (s *RewardService) StartReconcileScheduler(interval time.Duration, concurrency int) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	lastSweep := time.Now().Add(-interval)
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			started := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			n, err := s.SweepGlobalRewards(ctx, lastSweep, concurrency)
			if err != nil {
				log.Printf("[SWEEP] DB error: %v", err)
				return
			}
			lastSweep = started
			if n > 0 {
				log.Printf("[SWEEP] ✅ reconciled global rewards for %d user(s) in %s", n, time.Since(started))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	sched.Start()
	return sched, nil
}
