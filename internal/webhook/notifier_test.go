package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgamolt/clawmarket/internal/model"
)

type fakeSender struct {
	urls     []string
	contents []string
	err      error
}

func (f *fakeSender) Send(_ context.Context, url, content string) error {
	f.urls = append(f.urls, url)
	f.contents = append(f.contents, content)
	return f.err
}

func newTestNotifier() (*Notifier, *fakeSender) {
	sender := &fakeSender{}
	return NewNotifier(sender, slog.New(slog.DiscardHandler)), sender
}

func strPtr(s string) *string { return &s }

func TestLowSecurityScoreBoundary(t *testing.T) {
	n, sender := newTestNotifier()
	pkg := model.Package{Name: "weather-mcp", Version: "1.0.0"}

	assert.False(t, n.LowSecurityScore(context.Background(), "http://hook", pkg, 70))
	assert.Empty(t, sender.contents)

	assert.True(t, n.LowSecurityScore(context.Background(), "http://hook", pkg, 69))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "边界安全评分")
	assert.Contains(t, sender.contents[0], "**包名**: weather-mcp v1.0.0")
	assert.Contains(t, sender.contents[0], "**安全评分**: 69/100")
	assert.Contains(t, sender.contents[0], "**Agent备注**: 无")
}

func TestLowSecurityScoreHighRiskTitle(t *testing.T) {
	n, sender := newTestNotifier()
	pkg := model.Package{Name: "sketchy", Version: "0.1.0", ReviewNote: strPtr("包含硬编码密钥")}

	assert.True(t, n.LowSecurityScore(context.Background(), "http://hook", pkg, 49))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "高风险包检测")
	assert.Contains(t, sender.contents[0], "包含硬编码密钥")
}

func TestHighCredentialsBoundary(t *testing.T) {
	n, sender := newTestNotifier()

	creds := make([]model.CredentialField, 10)
	assert.False(t, n.HighCredentials(context.Background(), "http://hook", model.Package{Name: "p", Credentials: creds}))

	creds = make([]model.CredentialField, 11)
	assert.True(t, n.HighCredentials(context.Background(), "http://hook", model.Package{Name: "p", Credentials: creds}))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "异常凭据字段数量")
	assert.Contains(t, sender.contents[0], "**凭据字段数**: 11")
}

func TestSimilarNameMessage(t *testing.T) {
	n, sender := newTestNotifier()

	assert.True(t, n.SimilarName(context.Background(), "http://hook", "Weather-MCP2", "weather-mcp"))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "疑似仿冒包")
	assert.Contains(t, sender.contents[0], "**新包**: Weather-MCP2")
	assert.Contains(t, sender.contents[0], "**相似包**: weather-mcp")
	assert.Contains(t, sender.contents[0], "**编辑距离**: 1")
}

func TestPipelineFailuresBoundary(t *testing.T) {
	n, sender := newTestNotifier()

	assert.False(t, n.PipelineFailures(context.Background(), "http://hook", "p", 2))
	assert.True(t, n.PipelineFailures(context.Background(), "http://hook", "p", 3))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "流水线连续失败")
	assert.Contains(t, sender.contents[0], "**失败次数**: 3")
}

func TestDownloadMilestoneOnlyExactMarks(t *testing.T) {
	n, sender := newTestNotifier()

	assert.False(t, n.DownloadMilestone(context.Background(), "http://hook", "p", 101, 101))
	assert.False(t, n.DownloadMilestone(context.Background(), "http://hook", "p", 499, 499))
	assert.True(t, n.DownloadMilestone(context.Background(), "http://hook", "p", 100, 100))
	assert.True(t, n.DownloadMilestone(context.Background(), "http://hook", "p", 500, 500))
	require.Len(t, sender.contents, 2)
	assert.Contains(t, sender.contents[0], "热门包里程碑")
	assert.Contains(t, sender.contents[1], "**里程碑**: 500")
}

func TestFirstPublishMessage(t *testing.T) {
	n, sender := newTestNotifier()

	assert.True(t, n.FirstPublish(context.Background(), "http://hook", "new@user.dev"))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "新用户首次发布")
	assert.Contains(t, sender.contents[0], "**用户**: new@user.dev")
}

func TestReviewAlertMessage(t *testing.T) {
	n, sender := newTestNotifier()
	pkg := model.Package{Name: "scraper", Version: "2.0.0"}

	assert.True(t, n.ReviewAlert(context.Background(), "http://hook", pkg, "dev@example.com", 40, "需要人工确认"))
	require.Len(t, sender.contents, 1)
	assert.Contains(t, sender.contents[0], "新包待人工审核")
	assert.Contains(t, sender.contents[0], "**提交者**: dev@example.com")
	assert.Contains(t, sender.contents[0], "**Agent安全评分**: 40/100")
}

func TestDailyDigestMessage(t *testing.T) {
	n, sender := newTestNotifier()

	ok := n.DailyDigest(context.Background(), "http://hook", DigestStats{
		NewToday: 3, PendingReview: 1, TotalDownloads: 1200, ActivePackages: 42, AgentRunsToday: 9,
	})
	assert.True(t, ok)
	require.Len(t, sender.contents, 1)
	for _, line := range []string{"每日运营摘要", "**新增包**: 3", "**待审核**: 1", "**总下载**: 1200", "**活跃包**: 42", "**Agent执行**: 9"} {
		assert.Contains(t, sender.contents[0], line)
	}
}

func TestNoWebhookURLSkipsSend(t *testing.T) {
	n, sender := newTestNotifier()

	assert.False(t, n.FirstPublish(context.Background(), "", "a@b.c"))
	assert.False(t, n.FirstPublish(context.Background(), "   ", "a@b.c"))
	assert.Empty(t, sender.contents)
}

func TestSendFailureReturnsFalse(t *testing.T) {
	sender := &fakeSender{err: errors.New("boom")}
	n := NewNotifier(sender, slog.New(slog.DiscardHandler))

	assert.False(t, n.FirstPublish(context.Background(), "http://hook", "a@b.c"))
}

func TestWeComSenderPayload(t *testing.T) {
	var got wecomMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	err := NewWeComSender().Send(context.Background(), srv.URL, "## hello")
	require.NoError(t, err)
	assert.Equal(t, "markdown", got.MsgType)
	assert.Equal(t, "## hello", got.Markdown.Content)
}

func TestWeComSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewWeComSender().Send(context.Background(), srv.URL, "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "403"))
}
