package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/auth"
	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/storage"
)

// handleListUsers returns all registered users.
func (h *Handlers) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type inviteRequest struct {
	Email string `json:"email"`
}

type inviteResponse struct {
	Email        string `json:"email"`
	TempPassword string `json:"tempPassword"`
}

// handleInvite creates an account with a temporary password. The invitee must
// change it on first login.
func (h *Handlers) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}

	if _, err := h.store.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, r, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	tempPassword := hex.EncodeToString(raw)

	if _, err := h.store.CreateUser(r.Context(), model.User{
		Email:               req.Email,
		PasswordHash:        auth.HashPassword(tempPassword),
		ForcePasswordChange: true,
	}); err != nil {
		h.logger.Error("invite user", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, inviteResponse{Email: req.Email, TempPassword: tempPassword})
}

// handleDeleteUser removes an account. Self-deletion is refused so a market
// cannot lock out its last admin.
func (h *Handlers) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid user id")
		return
	}
	if caller := UserFromContext(r.Context()); caller != nil && caller.ID == id {
		writeError(w, r, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("delete user", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// agentConfigResponse mirrors model.AgentConfig but never echoes the API key.
type agentConfigResponse struct {
	Enabled            bool      `json:"enabled"`
	Model              string    `json:"model"`
	ImageModel         string    `json:"imageModel"`
	BaseURL            string    `json:"baseUrl"`
	HasAPIKey          bool      `json:"hasApiKey"`
	SystemPrompt       *string   `json:"systemPrompt,omitempty"`
	WebhookURL         *string   `json:"webhookUrl,omitempty"`
	HeartbeatMinutes   int       `json:"heartbeatMinutes"`
	DailyDigestHour    int       `json:"dailyDigestHour"`
	TrendDetectionHour int       `json:"trendDetectionHour"`
	WeeklyExpireDay    int       `json:"weeklyExpireDay"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toAgentConfigResponse(cfg model.AgentConfig) agentConfigResponse {
	return agentConfigResponse{
		Enabled:            cfg.Enabled,
		Model:              cfg.Model,
		ImageModel:         cfg.ImageModel,
		BaseURL:            cfg.BaseURL,
		HasAPIKey:          cfg.HasAPIKey(),
		SystemPrompt:       cfg.SystemPrompt,
		WebhookURL:         cfg.WebhookURL,
		HeartbeatMinutes:   cfg.HeartbeatMinutes,
		DailyDigestHour:    cfg.DailyDigestHour,
		TrendDetectionHour: cfg.TrendDetectionHour,
		WeeklyExpireDay:    cfg.WeeklyExpireDay,
		UpdatedAt:          cfg.UpdatedAt,
	}
}

// handleGetAgentConfig returns the agent configuration, key masked.
func (h *Handlers) handleGetAgentConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.EnsureAgentConfig(r.Context())
	if err != nil {
		h.logger.Error("get agent config", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toAgentConfigResponse(cfg))
}

type agentConfigRequest struct {
	Enabled            *bool   `json:"enabled"`
	Model              *string `json:"model"`
	ImageModel         *string `json:"imageModel"`
	BaseURL            *string `json:"baseUrl"`
	APIKey             *string `json:"apiKey"`
	SystemPrompt       *string `json:"systemPrompt"`
	WebhookURL         *string `json:"webhookUrl"`
	HeartbeatMinutes   *int    `json:"heartbeatMinutes"`
	DailyDigestHour    *int    `json:"dailyDigestHour"`
	TrendDetectionHour *int    `json:"trendDetectionHour"`
	WeeklyExpireDay    *int    `json:"weeklyExpireDay"`
}

func (req agentConfigRequest) validate() error {
	if req.HeartbeatMinutes != nil && *req.HeartbeatMinutes < 1 {
		return errors.New("heartbeatMinutes must be at least 1")
	}
	for name, hour := range map[string]*int{
		"dailyDigestHour":    req.DailyDigestHour,
		"trendDetectionHour": req.TrendDetectionHour,
	} {
		if hour != nil && (*hour < 0 || *hour > 23) {
			return errors.New(name + " must be between 0 and 23")
		}
	}
	if req.WeeklyExpireDay != nil && (*req.WeeklyExpireDay < 0 || *req.WeeklyExpireDay > 6) {
		return errors.New("weeklyExpireDay must be between 0 (Sunday) and 6")
	}
	return nil
}

// handleUpdateAgentConfig applies a partial update to the agent configuration.
func (h *Handlers) handleUpdateAgentConfig(w http.ResponseWriter, r *http.Request) {
	var req agentConfigRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.store.UpdateAgentConfig(r.Context(), storage.AgentConfigUpdate{
		Enabled:            req.Enabled,
		Model:              req.Model,
		ImageModel:         req.ImageModel,
		BaseURL:            req.BaseURL,
		APIKey:             req.APIKey,
		SystemPrompt:       req.SystemPrompt,
		WebhookURL:         req.WebhookURL,
		HeartbeatMinutes:   req.HeartbeatMinutes,
		DailyDigestHour:    req.DailyDigestHour,
		TrendDetectionHour: req.TrendDetectionHour,
		WeeklyExpireDay:    req.WeeklyExpireDay,
	})
	if err != nil {
		h.logger.Error("update agent config", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toAgentConfigResponse(cfg))
}

// handleAgentLogs returns the most recent agent audit rows.
func (h *Handlers) handleAgentLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 200)
	}

	logs, err := h.store.ListAgentLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("list agent logs", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	if logs == nil {
		logs = []model.AgentLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// handleTriggerReview re-queues every needs_human_review package through the
// pipeline. The sweep runs in the background; the response reports how many
// packages were queued.
func (h *Handlers) handleTriggerReview(w http.ResponseWriter, r *http.Request) {
	h.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		count, err := h.runner.TriggerReview(ctx)
		if err != nil {
			h.logger.Error("trigger review failed", "error", err)
			return
		}
		h.logger.Info("trigger review finished", "count", count)
	})
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// handleReviewQueue returns packages awaiting attention in the console
// envelope shape.
func (h *Handlers) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	packages, err := h.store.ListReviewQueue(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.logger.Error("list review queue", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	if packages == nil {
		packages = []model.Package{}
	}
	writeOK(w, packages)
}

type reviewRequest struct {
	Action string  `json:"action"`
	Reason *string `json:"reason"`
}

// handleReview records a human review decision for a package.
func (h *Handlers) handleReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}

	var req reviewRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	var status model.ReviewStatus
	switch req.Action {
	case "approve":
		status = model.ReviewApproved
	case "reject":
		status = model.ReviewRejected
	default:
		writeError(w, r, http.StatusBadRequest, "action must be approve or reject")
		return
	}

	if err := h.store.SetReviewDecision(r.Context(), id, status, req.Reason); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "package not found")
			return
		}
		h.logger.Error("set review decision", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeOK(w, nil)
}

// handleRetryPipeline resets a failed pipeline and runs it again in the
// background.
func (h *Handlers) handleRetryPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}

	if _, err := h.store.GetPackage(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "package not found")
			return
		}
		h.logger.Error("get package", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	h.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()
		if err := h.runner.RetryPipeline(ctx, id); err != nil {
			h.logger.Error("retry pipeline failed", "package_id", id, "error", err)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

type announcementRequest struct {
	Content string `json:"content"`
}

// handleSetAnnouncement overwrites the legacy announcement string.
func (h *Handlers) handleSetAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req announcementRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, http.StatusBadRequest, "content is required")
		return
	}

	if err := h.store.SetAnnouncementContent(r.Context(), req.Content); err != nil {
		h.logger.Error("set announcement", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
