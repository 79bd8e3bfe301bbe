package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/similarity"
)

// DigestStats is the daily operations summary pushed every morning.
type DigestStats struct {
	NewToday       int
	PendingReview  int
	TotalDownloads int
	ActivePackages int
	AgentRunsToday int
}

// Notifier formats market events into WeCom markdown and applies the
// thresholds that decide whether an event is worth a push at all. Every
// method returns whether a message was actually sent; delivery failures are
// logged and swallowed because alerting must never fail the operation that
// triggered it.
type Notifier struct {
	sender Sender
	logger *slog.Logger
}

func NewNotifier(sender Sender, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// LowSecurityScore alerts on packages scoring below 70. Below 50 the message
// escalates to the high-risk title.
func (n *Notifier) LowSecurityScore(ctx context.Context, webhookURL string, pkg model.Package, score int) bool {
	if score >= 70 {
		return false
	}

	title := "## ⚠️ [MCP Market] 边界安全评分"
	if score < 50 {
		title = "## ⚠️ [MCP Market] 高风险包检测"
	}
	note := "无"
	if pkg.ReviewNote != nil && strings.TrimSpace(*pkg.ReviewNote) != "" {
		note = strings.TrimSpace(*pkg.ReviewNote)
	}

	content := strings.Join([]string{
		title,
		fmt.Sprintf("**包名**: %s v%s", pkg.Name, pkg.Version),
		fmt.Sprintf("**安全评分**: %d/100", score),
		fmt.Sprintf("**Agent备注**: %s", note),
		"> 请立即审核",
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// HighCredentials alerts when a package requests more than 10 credential
// fields, a common over-collection smell.
func (n *Notifier) HighCredentials(ctx context.Context, webhookURL string, pkg model.Package) bool {
	count := len(pkg.Credentials)
	if count <= 10 {
		return false
	}

	content := strings.Join([]string{
		"## ⚠️ [MCP Market] 异常凭据字段数量",
		fmt.Sprintf("**包名**: %s", pkg.Name),
		fmt.Sprintf("**凭据字段数**: %d", count),
		"> 可能存在过度数据收集",
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// SimilarName alerts on a freshly published name that sits close to an
// existing one. The distance shown is recomputed case-insensitively so the
// message matches what the detection saw.
func (n *Notifier) SimilarName(ctx context.Context, webhookURL, pkgName, similarName string) bool {
	distance := similarity.Distance(strings.ToLower(pkgName), strings.ToLower(similarName))

	content := strings.Join([]string{
		"## ⚠️ [MCP Market] 疑似仿冒包",
		fmt.Sprintf("**新包**: %s", pkgName),
		fmt.Sprintf("**相似包**: %s", similarName),
		fmt.Sprintf("**编辑距离**: %d", distance),
		"> 请人工核查",
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// PipelineFailures alerts once a package has failed three or more agent
// operations inside the lookback window.
func (n *Notifier) PipelineFailures(ctx context.Context, webhookURL, pkgName string, failCount int) bool {
	if failCount < 3 {
		return false
	}

	content := strings.Join([]string{
		"## ⚠️ [MCP Market] 流水线连续失败",
		fmt.Sprintf("**包名**: %s", pkgName),
		fmt.Sprintf("**失败次数**: %d", failCount),
		"> 需人工排查",
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// DownloadMilestone celebrates exactly the 100 and 500 download marks.
// Other values are ignored so repeated downloads past a mark stay silent.
func (n *Notifier) DownloadMilestone(ctx context.Context, webhookURL, pkgName string, downloads, milestone int) bool {
	if milestone != 100 && milestone != 500 {
		return false
	}

	content := strings.Join([]string{
		"## 🎉 [MCP Market] 热门包里程碑",
		fmt.Sprintf("**包名**: %s", pkgName),
		fmt.Sprintf("**下载量**: %d", downloads),
		fmt.Sprintf("**里程碑**: %d", milestone),
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// FirstPublish welcomes an author on their very first package.
func (n *Notifier) FirstPublish(ctx context.Context, webhookURL, authorEmail string) bool {
	content := strings.Join([]string{
		"## 🌟 [MCP Market] 新用户首次发布",
		fmt.Sprintf("**用户**: %s", authorEmail),
		"> 欢迎新社区成员",
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// ReviewAlert asks a human to look at a package the agent declined to
// auto-approve.
func (n *Notifier) ReviewAlert(ctx context.Context, webhookURL string, pkg model.Package, authorEmail string, score int, note string) bool {
	content := strings.Join([]string{
		"## 🦞 [MCP Market] 新包待人工审核",
		fmt.Sprintf("**包名**: %s v%s", pkg.Name, pkg.Version),
		fmt.Sprintf("**提交者**: %s", authorEmail),
		fmt.Sprintf("**Agent安全评分**: %d/100", score),
		fmt.Sprintf("**Agent建议**: %s", note),
		"> 请登录管理后台处理：http://localhost:5100/settings",
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

// TrendReport lists the most downloaded packages, leader first.
func (n *Notifier) TrendReport(ctx context.Context, webhookURL string, top []model.Package) bool {
	if len(top) == 0 {
		return false
	}

	lines := []string{"## 📈 [MCP Market] 下载趋势"}
	for i, pkg := range top {
		lines = append(lines, fmt.Sprintf("**Top %d**: %s（%d 次下载）", i+1, pkg.Name, pkg.Downloads))
	}

	return n.send(ctx, webhookURL, strings.Join(lines, "\n"))
}

// StaleReport lists long-unchanged approved packages, oldest first.
func (n *Notifier) StaleReport(ctx context.Context, webhookURL string, stale []model.Package) bool {
	if len(stale) == 0 {
		return false
	}

	lines := []string{
		"## 🧹 [MCP Market] 陈旧包周报",
		fmt.Sprintf("**数量**: %d", len(stale)),
	}
	for _, pkg := range stale {
		lines = append(lines, fmt.Sprintf("- %s v%s（上架于 %s）", pkg.Name, pkg.Version, pkg.PublishedAt.Format("2006-01-02")))
	}
	lines = append(lines, "> 建议联系作者更新或下架")

	return n.send(ctx, webhookURL, strings.Join(lines, "\n"))
}

// DailyDigest pushes the morning operations summary.
func (n *Notifier) DailyDigest(ctx context.Context, webhookURL string, stats DigestStats) bool {
	content := strings.Join([]string{
		"## 📊 [MCP Market] 每日运营摘要",
		fmt.Sprintf("**新增包**: %d", stats.NewToday),
		fmt.Sprintf("**待审核**: %d", stats.PendingReview),
		fmt.Sprintf("**总下载**: %d", stats.TotalDownloads),
		fmt.Sprintf("**活跃包**: %d", stats.ActivePackages),
		fmt.Sprintf("**Agent执行**: %d", stats.AgentRunsToday),
	}, "\n")

	return n.send(ctx, webhookURL, content)
}

func (n *Notifier) send(ctx context.Context, webhookURL, content string) bool {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return false
	}
	if err := n.sender.Send(ctx, webhookURL, content); err != nil {
		n.logger.Warn("webhook delivery failed", "error", err)
		return false
	}
	return true
}
