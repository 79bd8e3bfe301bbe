package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sgamolt/clawmarket/internal/model"
)

// Scheduler owns the single periodic tick that fans out to the heartbeat,
// the daily digest, trend detection and the weekly staleness sweep. All
// "once per day/week" gates are in-memory; a restart re-arms them, which is
// acceptable because every job is an idempotent notification, not a state
// mutation.
type Scheduler struct {
	runner   *Runner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	running atomic.Bool

	lastHeartbeat time.Time
	lastDigestDay string
	lastTrendDay  string
	lastStaleWeek string
}

func NewScheduler(runner *Runner, logger *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("agent scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("agent scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates all time gates once. A tick that is still running when the
// next one arrives wins; the newcomer returns immediately.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	cfg, err := s.runner.store.EnsureAgentConfig(ctx)
	if err != nil {
		s.logger.Error("scheduler config load failed", "error", err)
		return
	}
	if !cfg.Enabled {
		return
	}

	now := s.now()
	day := now.Format("2006-01-02")

	if s.heartbeatDue(now, cfg.HeartbeatMinutes) {
		s.lastHeartbeat = now
		if n, err := s.runner.Sweep(ctx, cfg); err != nil {
			s.logger.Error("heartbeat sweep failed", "error", err)
		} else if n > 0 {
			s.logger.Info("heartbeat sweep done", "packages", n)
		}
		if err := s.runner.RefreshAnnouncements(ctx, cfg); err != nil {
			s.logger.Error("announcement refresh failed", "error", err)
		}
	}

	if now.Hour() == cfg.DailyDigestHour && s.lastDigestDay != day {
		s.lastDigestDay = day
		if err := s.runner.DailyDigest(ctx, cfg); err != nil {
			s.logger.Error("daily digest failed", "error", err)
		}
	}

	if now.Hour() == cfg.TrendDetectionHour && now.Minute() >= 30 && s.lastTrendDay != day {
		s.lastTrendDay = day
		if err := s.runner.TrendDetection(ctx, cfg); err != nil {
			s.logger.Error("trend detection failed", "error", err)
		}
	}

	year, week := now.ISOWeek()
	weekKey := fmt.Sprintf("%d-%02d", year, week)
	if int(now.Weekday()) == cfg.WeeklyExpireDay && now.Hour() == 10 && s.lastStaleWeek != weekKey {
		s.lastStaleWeek = weekKey
		if err := s.runner.WeeklyStaleSweep(ctx, cfg); err != nil {
			s.logger.Error("weekly stale sweep failed", "error", err)
		}
	}
}

func (s *Scheduler) heartbeatDue(now time.Time, heartbeatMinutes int) bool {
	if heartbeatMinutes <= 0 {
		heartbeatMinutes = model.DefaultHeartbeatMinutes
	}
	return s.lastHeartbeat.IsZero() ||
		now.Sub(s.lastHeartbeat) >= time.Duration(heartbeatMinutes)*time.Minute
}
