package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/port"
)

// Scheduler runs the background sweepers: expiring stale verification
// sessions and clearing step locks whose TTL has lapsed. Both operations are
// idempotent, so overlapping runs are harmless.
type Scheduler struct {
	cron     *cron.Cron
	sessions port.SessionRepository
	steps    port.StepRepository
	schedule string
	logger   *zap.Logger
}

// NewScheduler constructs the sweeper scheduler. The schedule accepts any
// cron spec, including descriptors such as "@every 5m".
func NewScheduler(sessions port.SessionRepository, steps port.StepRepository, schedule string, logger *zap.Logger) *Scheduler {
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		steps:    steps,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the sweepers and launches the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn("sweeper stop timed out")
	}
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()

	if s.sessions != nil {
		expired, err := s.sessions.ExpireStale(ctx, now)
		if err != nil {
			s.logger.Error("expire stale sessions failed", zap.Error(err))
		} else if expired > 0 {
			s.logger.Info("expired stale sessions", zap.Int("count", expired))
		}
	}

	if s.steps != nil {
		cleared, err := s.steps.ClearExpiredLocks(ctx, now)
		if err != nil {
			s.logger.Error("clear expired step locks failed", zap.Error(err))
		} else if cleared > 0 {
			s.logger.Info("cleared expired step locks", zap.Int("count", cleared))
		}
	}
}
