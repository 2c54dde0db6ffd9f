// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartCatalogRefresh reloads the active badge catalog every interval so
// definitions edited by another replica become visible. The caller shuts the
// returned scheduler down.
func (s *BadgeService) StartCatalogRefresh(interval time.Duration, opts ...gocron.SchedulerOption) (gocron.Scheduler, error) {
	if interval <= 0 {
		interval = time.Minute
	}

	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Refresh(ctx); err != nil {
				zap.L().Warn("[Scheduler] badge catalog refresh failed", zap.Error(err))
				return
			}
			zap.L().Debug("[Scheduler] badge catalog refreshed")
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
