package model

import (
	"time"

	"github.com/google/uuid"
)

// AgentConfig is the singleton configuration row for the agent pipeline.
// It is created lazily with defaults on first access and only ever updated,
// never deleted.
type AgentConfig struct {
	ID                 int       `json:"id"`
	Enabled            bool      `json:"enabled"`
	Model              string    `json:"model"`
	ImageModel         string    `json:"imageModel"`
	BaseURL            string    `json:"baseUrl"`
	APIKey             *string   `json:"apiKey,omitempty"`
	SystemPrompt       *string   `json:"systemPrompt,omitempty"`
	WebhookURL         *string   `json:"webhookUrl,omitempty"`
	HeartbeatMinutes   int       `json:"heartbeatMinutes"`
	DailyDigestHour    int       `json:"dailyDigestHour"`    // 0-23
	TrendDetectionHour int       `json:"trendDetectionHour"` // 0-23
	WeeklyExpireDay    int       `json:"weeklyExpireDay"`    // 0=Sun .. 6=Sat
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Defaults matching the original deployment.
const (
	DefaultModel            = "claude-sonnet-4-6"
	DefaultImageModel       = "bytedance-seed/seedream-4.5"
	DefaultBaseURL          = "https://openrouter.ai/api/v1"
	DefaultHeartbeatMinutes = 1440
)

// HasAPIKey reports whether an API key is configured (non-empty after trim).
func (c AgentConfig) HasAPIKey() bool {
	return c.APIKey != nil && *c.APIKey != ""
}

// Webhook returns the configured webhook URL, or "" when none is set.
func (c AgentConfig) Webhook() string {
	if c.WebhookURL == nil {
		return ""
	}
	return *c.WebhookURL
}

// LogAction identifies which LLM-backed operation produced an AgentLog row.
type LogAction string

const (
	ActionReview       LogAction = "review"
	ActionClassify     LogAction = "classify"
	ActionEnhance      LogAction = "enhance"
	ActionLogo         LogAction = "logo"
	ActionImage        LogAction = "image"
	ActionAnnouncement LogAction = "announcement"
)

// LogStatus is the outcome recorded for an AgentLog row.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
)

// AgentLog is the append-only audit trail of agent operations. One row is
// written per LLM-backed operation, including skipped-no-key runs.
type AgentLog struct {
	ID         int64          `json:"id"`
	PackageID  *uuid.UUID     `json:"packageId,omitempty"` // nil for non-package actions
	Action     LogAction      `json:"action"`
	Status     LogStatus      `json:"status"`
	DurationMs int            `json:"durationMs"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
