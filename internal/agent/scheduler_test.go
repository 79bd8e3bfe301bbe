package agent

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/webhook"
)

func newTestScheduler(store *fakeStore) (*Scheduler, *captureSender) {
	sender := &captureSender{}
	logger := slog.New(slog.DiscardHandler)
	runner := NewRunner(store, &fakeLLM{}, webhook.NewNotifier(sender, logger), logger)
	s := NewScheduler(runner, logger, time.Minute)
	return s, sender
}

func at(s *Scheduler, t time.Time) {
	s.now = func() time.Time { return t }
}

func TestTickDisabledDoesNothing(t *testing.T) {
	store := newFakeStore()
	store.cfg.Enabled = false
	hook := "http://hook"
	store.cfg.WebhookURL = &hook
	store.addPackage(model.Package{Name: "p", Version: "1.0.0", Category: "其他"})

	s, sender := newTestScheduler(store)
	s.Tick(context.Background())

	assert.Empty(t, sender.contents)
	assert.Empty(t, store.logs)
	assert.Empty(t, store.replacedItems)
}

func TestTickHeartbeatSweepsAndRefreshes(t *testing.T) {
	store := newFakeStore()
	hook := "http://hook"
	store.cfg.WebhookURL = &hook
	pkg := store.addPackage(model.Package{Name: "p", Version: "1.0.0", Category: "其他"})

	s, _ := newTestScheduler(store)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	at(s, base)
	s.Tick(context.Background())

	// First tick always fires the heartbeat: no API key, so the package
	// auto-approves and the stats announcement is rebuilt.
	assert.Equal(t, model.PipelineCompleted, store.packages[pkg.ID].PipelineStatus)
	assert.Len(t, store.replacedItems, 1)
}

func TestTickHeartbeatRespectsCadence(t *testing.T) {
	store := newFakeStore()
	store.cfg.HeartbeatMinutes = 60

	s, _ := newTestScheduler(store)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	at(s, base)
	s.Tick(context.Background())
	require.Len(t, store.replacedItems, 1)

	// 30 minutes later: not due.
	store.autoUpdatedAt = time.Time{}
	at(s, base.Add(30*time.Minute))
	s.Tick(context.Background())
	assert.Len(t, store.replacedItems, 1)

	// 60 minutes later: due again.
	at(s, base.Add(60*time.Minute))
	s.Tick(context.Background())
	assert.Len(t, store.replacedItems, 2)
}

func TestTickDailyDigestOncePerDay(t *testing.T) {
	store := newFakeStore()
	store.cfg.DailyDigestHour = 9
	hook := "http://hook"
	store.cfg.WebhookURL = &hook

	s, sender := newTestScheduler(store)

	// Before the hour: nothing.
	at(s, time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Empty(t, sender.matching("每日运营摘要"))

	// At the hour: fires once.
	at(s, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Len(t, sender.matching("每日运营摘要"), 1)

	// Later the same hour: still once.
	at(s, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Len(t, sender.matching("每日运营摘要"), 1)

	// Next day: fires again.
	at(s, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Len(t, sender.matching("每日运营摘要"), 2)
}

func TestTickTrendDetectionAtHalfPast(t *testing.T) {
	store := newFakeStore()
	store.cfg.TrendDetectionHour = 9
	hook := "http://hook"
	store.cfg.WebhookURL = &hook
	store.top = []model.Package{
		{Name: "weather-mcp", Downloads: 800},
		{Name: "pdf-tools", Downloads: 300},
	}

	s, sender := newTestScheduler(store)

	at(s, time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Empty(t, sender.matching("下载趋势"))

	at(s, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	s.Tick(context.Background())
	trends := sender.matching("下载趋势")
	require.Len(t, trends, 1)
	assert.Contains(t, trends[0], "**Top 1**: weather-mcp（800 次下载）")

	at(s, time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Len(t, sender.matching("下载趋势"), 1)
}

func TestTrendDetectionRequiresTraction(t *testing.T) {
	store := newFakeStore()
	store.cfg.TrendDetectionHour = 9
	hook := "http://hook"
	store.cfg.WebhookURL = &hook
	store.top = []model.Package{{Name: "quiet", Downloads: 50}}

	s, sender := newTestScheduler(store)
	at(s, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	s.Tick(context.Background())

	assert.Empty(t, sender.matching("下载趋势"))
}

func TestTickWeeklyStaleSweep(t *testing.T) {
	store := newFakeStore()
	store.cfg.WeeklyExpireDay = 1 // Monday
	hook := "http://hook"
	store.cfg.WebhookURL = &hook
	store.stale = []model.Package{
		{Name: "ancient", Version: "0.1.0", PublishedAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)},
	}

	s, sender := newTestScheduler(store)

	// Monday 2026-03-02 at 10:00.
	at(s, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	s.Tick(context.Background())
	reports := sender.matching("陈旧包周报")
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0], "ancient v0.1.0")

	// Same Monday, later in the hour: still once.
	at(s, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Len(t, sender.matching("陈旧包周报"), 1)

	// Next Monday: fires again.
	at(s, time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC))
	s.Tick(context.Background())
	assert.Len(t, sender.matching("陈旧包周报"), 2)
}

func TestDailyDigestStats(t *testing.T) {
	store := newFakeStore()
	hook := "http://hook"
	store.cfg.WebhookURL = &hook
	store.addPackage(model.Package{Name: "new", Version: "1.0.0", Category: "其他",
		PublishedAt: time.Now().Add(-time.Hour), Downloads: 7})
	store.addPackage(model.Package{Name: "old", Version: "1.0.0", Category: "其他",
		ReviewStatus: model.ReviewApproved, PublishedAt: time.Now().Add(-72 * time.Hour), Downloads: 5})

	sender := &captureSender{}
	logger := slog.New(slog.DiscardHandler)
	runner := NewRunner(store, &fakeLLM{}, webhook.NewNotifier(sender, logger), logger)

	require.NoError(t, runner.DailyDigest(context.Background(), store.cfg))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "**新增包**: 1")
	assert.Contains(t, sender.contents[0], "**待审核**: 1")
	assert.Contains(t, sender.contents[0], "**总下载**: 12")
	assert.Contains(t, sender.contents[0], "**活跃包**: 1")
}
