package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/storage"
)

// announcementCooldown throttles refreshes independently of the heartbeat
// cadence, so a manual sweep right after a scheduled one is a no-op.
const announcementCooldown = time.Hour

const trendingWindow = 7 * 24 * time.Hour

// RefreshAnnouncements rebuilds the auto-sourced marquee items from current
// market stats. The stats line is always present; latest, trending and
// most-downloaded items appear when there is data behind them, and an
// LLM-written flavor line is added when a key is configured. All auto rows
// are replaced in one transaction and the legacy single-string field is
// rewritten from the surviving active items.
func (r *Runner) RefreshAnnouncements(ctx context.Context, cfg model.AgentConfig) error {
	since, err := r.store.LatestAutoItemUpdatedAt(ctx)
	switch {
	case err == nil:
		if r.now().Sub(since) < announcementCooldown {
			return nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	total, err := r.store.CountPackagesByReviewStatus(ctx, model.ReviewApproved)
	if err != nil {
		return err
	}
	tools, err := r.store.SumToolsCount(ctx)
	if err != nil {
		return err
	}

	items := []model.AnnouncementItem{{
		Content:  fmt.Sprintf("🦞 Claw MCP Market 已收录 %d 个工具包，共 %d 个工具", total, tools),
		Active:   true,
		Priority: 100,
	}}

	latestName := ""
	if latest, err := r.store.LatestApprovedPackage(ctx); err == nil {
		latestName = latest.Name
		items = append(items, model.AnnouncementItem{
			Content:  fmt.Sprintf("🆕 最新上架：%s v%s", latest.Name, latest.Version),
			Active:   true,
			Priority: 80,
		})
	} else if !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("latest package lookup failed", "error", err)
	}

	if trending, err := r.store.TrendingPackage(ctx, r.now().Add(-trendingWindow), 50); err == nil {
		items = append(items, model.AnnouncementItem{
			Content:  fmt.Sprintf("🔥 本周热门：%s，下载 %d 次", trending.Name, trending.Downloads),
			Active:   true,
			Priority: 70,
		})
	} else if !errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("trending package lookup failed", "error", err)
	}

	if top, err := r.store.TopPackagesByDownloads(ctx, 1); err == nil {
		if len(top) > 0 && top[0].Downloads > 0 {
			items = append(items, model.AnnouncementItem{
				Content:  fmt.Sprintf("🏆 最受欢迎：%s，累计下载 %d 次", top[0].Name, top[0].Downloads),
				Active:   true,
				Priority: 60,
			})
		}
	} else {
		r.logger.Warn("top packages lookup failed", "error", err)
	}

	if marquee := r.generateMarquee(ctx, cfg, total, latestName); marquee != "" {
		items = append(items, model.AnnouncementItem{
			Content:  marquee,
			Active:   true,
			Priority: 90,
		})
	}

	return r.store.ReplaceAutoAnnouncements(ctx, items)
}

// generateMarquee asks the model for a flavor-text line. It is strictly
// optional: any failure is logged and the deterministic items still persist.
func (r *Runner) generateMarquee(ctx context.Context, cfg model.AgentConfig, total int, latestName string) string {
	if !cfg.HasAPIKey() {
		r.writeLog(ctx, nil, model.ActionAnnouncement, model.LogSuccess, 0, map[string]any{"skipped": true})
		return ""
	}

	start := time.Now()
	text, err := r.chat(ctx, cfg, marqueePrompt(total, latestName), 100)
	duration := int(time.Since(start).Milliseconds())
	if err != nil {
		r.writeLog(ctx, nil, model.ActionAnnouncement, model.LogFailed, duration,
			map[string]any{"model": cfg.Model, "error": err.Error()})
		r.logger.Warn("marquee generation failed", "error", err)
		return ""
	}

	marquee := strings.TrimSpace(text)
	r.writeLog(ctx, nil, model.ActionAnnouncement, model.LogSuccess, duration,
		map[string]any{"model": cfg.Model})
	return marquee
}
