package agent

import (
	"context"
	"time"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/webhook"
)

const (
	staleCutoff = 90 * 24 * time.Hour
	staleLimit  = 20

	trendTopN         = 3
	trendMinDownloads = 50
)

// DailyDigest pushes the morning operations summary to the webhook.
func (r *Runner) DailyDigest(ctx context.Context, cfg model.AgentConfig) error {
	now := r.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	newToday, err := r.store.CountPackagesPublishedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	pending, err := r.store.CountPackagesByReviewStatus(ctx, model.ReviewPending)
	if err != nil {
		return err
	}
	downloads, err := r.store.SumDownloads(ctx)
	if err != nil {
		return err
	}
	active, err := r.store.CountPackagesByReviewStatus(ctx, model.ReviewApproved)
	if err != nil {
		return err
	}
	runs, err := r.store.CountLogsSince(ctx, dayStart)
	if err != nil {
		return err
	}

	r.notifier.DailyDigest(ctx, cfg.Webhook(), webhook.DigestStats{
		NewToday:       newToday,
		PendingReview:  pending,
		TotalDownloads: downloads,
		ActivePackages: active,
		AgentRunsToday: runs,
	})
	return nil
}

// TrendDetection reports the top downloaded packages, but only once the
// leader has real traction.
func (r *Runner) TrendDetection(ctx context.Context, cfg model.AgentConfig) error {
	top, err := r.store.TopPackagesByDownloads(ctx, trendTopN)
	if err != nil {
		return err
	}
	if len(top) == 0 || top[0].Downloads <= trendMinDownloads {
		return nil
	}
	r.notifier.TrendReport(ctx, cfg.Webhook(), top)
	return nil
}

// WeeklyStaleSweep reports approved packages that have sat unchanged for
// over 90 days with no newer version under the same name.
func (r *Runner) WeeklyStaleSweep(ctx context.Context, cfg model.AgentConfig) error {
	stale, err := r.store.StaleApprovedPackages(ctx, r.now().Add(-staleCutoff), staleLimit)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	r.notifier.StaleReport(ctx, cfg.Webhook(), stale)
	return nil
}
