package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sgamolt/clawmarket/internal/model"
)

const agentConfigColumns = `id, enabled, model, image_model, base_url, api_key,
	system_prompt, webhook_url, heartbeat_minutes, daily_digest_hour,
	trend_detection_hour, weekly_expire_day, updated_at`

func scanAgentConfig(row rowScanner) (model.AgentConfig, error) {
	var c model.AgentConfig
	err := row.Scan(
		&c.ID, &c.Enabled, &c.Model, &c.ImageModel, &c.BaseURL, &c.APIKey,
		&c.SystemPrompt, &c.WebhookURL, &c.HeartbeatMinutes, &c.DailyDigestHour,
		&c.TrendDetectionHour, &c.WeeklyExpireDay, &c.UpdatedAt,
	)
	return c, err
}

// EnsureAgentConfig returns the singleton agent config, creating it with
// defaults on first access.
func (db *DB) EnsureAgentConfig(ctx context.Context) (model.AgentConfig, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+agentConfigColumns+` FROM agent_config ORDER BY id LIMIT 1`)
	cfg, err := scanAgentConfig(row)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.AgentConfig{}, fmt.Errorf("storage: get agent config: %w", err)
	}

	row = db.pool.QueryRow(ctx,
		`INSERT INTO agent_config DEFAULT VALUES RETURNING `+agentConfigColumns)
	cfg, err = scanAgentConfig(row)
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("storage: create agent config: %w", err)
	}
	return cfg, nil
}

// AgentConfigUpdate carries the fields an admin may change. Nil means "leave as is".
type AgentConfigUpdate struct {
	Enabled            *bool
	Model              *string
	ImageModel         *string
	BaseURL            *string
	APIKey             *string
	SystemPrompt       *string
	WebhookURL         *string
	HeartbeatMinutes   *int
	DailyDigestHour    *int
	TrendDetectionHour *int
	WeeklyExpireDay    *int
}

// UpdateAgentConfig applies a partial update to the singleton config and
// returns the updated row.
func (db *DB) UpdateAgentConfig(ctx context.Context, upd AgentConfigUpdate) (model.AgentConfig, error) {
	cfg, err := db.EnsureAgentConfig(ctx)
	if err != nil {
		return model.AgentConfig{}, err
	}

	if upd.Enabled != nil {
		cfg.Enabled = *upd.Enabled
	}
	if upd.Model != nil {
		cfg.Model = *upd.Model
	}
	if upd.ImageModel != nil {
		cfg.ImageModel = *upd.ImageModel
	}
	if upd.BaseURL != nil {
		cfg.BaseURL = *upd.BaseURL
	}
	if upd.APIKey != nil {
		cfg.APIKey = upd.APIKey
	}
	if upd.SystemPrompt != nil {
		cfg.SystemPrompt = upd.SystemPrompt
	}
	if upd.WebhookURL != nil {
		cfg.WebhookURL = upd.WebhookURL
	}
	if upd.HeartbeatMinutes != nil {
		cfg.HeartbeatMinutes = *upd.HeartbeatMinutes
	}
	if upd.DailyDigestHour != nil {
		cfg.DailyDigestHour = *upd.DailyDigestHour
	}
	if upd.TrendDetectionHour != nil {
		cfg.TrendDetectionHour = *upd.TrendDetectionHour
	}
	if upd.WeeklyExpireDay != nil {
		cfg.WeeklyExpireDay = *upd.WeeklyExpireDay
	}

	row := db.pool.QueryRow(ctx,
		`UPDATE agent_config SET enabled = $1, model = $2, image_model = $3, base_url = $4,
			api_key = $5, system_prompt = $6, webhook_url = $7, heartbeat_minutes = $8,
			daily_digest_hour = $9, trend_detection_hour = $10, weekly_expire_day = $11,
			updated_at = now()
		 WHERE id = $12
		 RETURNING `+agentConfigColumns,
		cfg.Enabled, cfg.Model, cfg.ImageModel, cfg.BaseURL,
		cfg.APIKey, cfg.SystemPrompt, cfg.WebhookURL, cfg.HeartbeatMinutes,
		cfg.DailyDigestHour, cfg.TrendDetectionHour, cfg.WeeklyExpireDay,
		cfg.ID,
	)
	cfg, err = scanAgentConfig(row)
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("storage: update agent config: %w", err)
	}
	return cfg, nil
}
