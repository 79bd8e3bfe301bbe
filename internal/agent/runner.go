package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/llm"
	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/similarity"
	"github.com/sgamolt/clawmarket/internal/webhook"
)

const (
	// similarNameThreshold flags names within 2 edits of an existing one.
	similarNameThreshold = 3
	// failureWindow is the lookback for the failure-streak alert.
	failureWindow = 24 * time.Hour

	noKeyNote     = "未配置 API Key，自动通过"
	parseFailNote = "LLM 响应解析失败，需人工审核"
)

// Runner drives one package at a time through the five pipeline stages.
// Packages are processed sequentially; a failure in one never aborts the
// sweep over the rest.
type Runner struct {
	store    Store
	llm      LLMClient
	notifier *webhook.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(store Store, llmClient LLMClient, notifier *webhook.Notifier, logger *slog.Logger) *Runner {
	return &Runner{
		store:    store,
		llm:      llmClient,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep runs the pipeline for every package still awaiting review, oldest
// first. Per-package failures are logged and skipped. Returns how many
// packages were attempted.
func (r *Runner) Sweep(ctx context.Context, cfg model.AgentConfig) (int, error) {
	pending, err := r.store.ListPackagesByReviewStatus(ctx, model.ReviewPending)
	if err != nil {
		return 0, fmt.Errorf("agent: list pending packages: %w", err)
	}
	for _, pkg := range pending {
		if err := r.RunPipeline(ctx, cfg, pkg.ID); err != nil {
			r.logger.Error("pipeline run failed", "package", pkg.ID, "name", pkg.Name, "error", err)
		}
	}
	return len(pending), nil
}

// TriggerReview is the admin-facing manual sweep. It reports how many
// packages were pending when it started.
func (r *Runner) TriggerReview(ctx context.Context) (int, error) {
	cfg, err := r.store.EnsureAgentConfig(ctx)
	if err != nil {
		return 0, err
	}
	return r.Sweep(ctx, cfg)
}

// RetryPipeline re-runs the full stage sequence for one package on demand.
// It restarts from the top rather than resuming; every stage is idempotent
// against its own prior writes.
func (r *Runner) RetryPipeline(ctx context.Context, id uuid.UUID) error {
	cfg, err := r.store.EnsureAgentConfig(ctx)
	if err != nil {
		return err
	}
	return r.RunPipeline(ctx, cfg, id)
}

// RunPipeline drives a single package through review, classification,
// enhancement and image generation. On a stage failure the package is marked
// failed with the error message and the failure-streak alert is evaluated.
func (r *Runner) RunPipeline(ctx context.Context, cfg model.AgentConfig, id uuid.UUID) error {
	pkg, err := r.store.GetPackage(ctx, id)
	if err != nil {
		return fmt.Errorf("agent: load package: %w", err)
	}

	r.checkDuplicateName(ctx, cfg, pkg)

	if err := r.runStages(ctx, cfg, &pkg); err != nil {
		if ferr := r.store.FailPipeline(ctx, pkg.ID, err.Error()); ferr != nil {
			r.logger.Error("failed to persist pipeline failure", "package", pkg.ID, "error", ferr)
		}
		r.notifyFailureStreak(ctx, cfg, pkg)
		return err
	}
	return nil
}

func (r *Runner) runStages(ctx context.Context, cfg model.AgentConfig, pkg *model.Package) error {
	if err := r.reviewStage(ctx, cfg, pkg); err != nil {
		return err
	}
	if err := r.classifyStage(ctx, cfg, pkg); err != nil {
		return err
	}
	if err := r.enhanceStage(ctx, cfg, pkg); err != nil {
		return err
	}
	r.imageStage(ctx, cfg, pkg)

	if err := r.store.CompletePipeline(ctx, pkg.ID); err != nil {
		return err
	}
	pkg.PipelineStatus = model.PipelineCompleted
	return nil
}

// checkDuplicateName is best-effort: a lookup failure must not stop the
// pipeline, and at most one alert fires, naming the single closest match.
func (r *Runner) checkDuplicateName(ctx context.Context, cfg model.AgentConfig, pkg model.Package) {
	names, err := r.store.ListOtherPackageNames(ctx, pkg.ID)
	if err != nil {
		r.logger.Warn("duplicate check skipped", "package", pkg.ID, "error", err)
		return
	}
	if m, ok := similarity.Closest(pkg.Name, names, similarNameThreshold); ok {
		r.notifier.SimilarName(ctx, cfg.Webhook(), pkg.Name, m.Name)
	}
}

func (r *Runner) reviewStage(ctx context.Context, cfg model.AgentConfig, pkg *model.Package) error {
	if err := r.store.SetPipelineStatus(ctx, pkg.ID, model.PipelineReviewing); err != nil {
		return err
	}

	var res reviewResult
	if !cfg.HasAPIKey() {
		// Deliberate fallback: the market stays usable without LLM
		// credentials, every keyless submission passes at score 70.
		res = reviewResult{Approved: true, Score: 70, Note: noKeyNote}
		r.writeLog(ctx, &pkg.ID, model.ActionReview, model.LogSuccess, 0, map[string]any{"skipped": true})
	} else {
		start := time.Now()
		text, err := r.chat(ctx, cfg, reviewPrompt(*pkg), 300)
		duration := int(time.Since(start).Milliseconds())
		if err != nil {
			r.writeLog(ctx, &pkg.ID, model.ActionReview, model.LogFailed, duration,
				map[string]any{"model": cfg.Model, "error": err.Error()})
			return fmt.Errorf("agent: review: %w", err)
		}

		parsed, ok := parseReview(text)
		if !ok {
			// Unparseable verdicts route to a human instead of an
			// approval, so a flaky model can never wave a package in.
			res = reviewResult{Approved: false, Score: 0, Note: parseFailNote}
			r.writeLog(ctx, &pkg.ID, model.ActionReview, model.LogFailed, duration,
				map[string]any{"model": cfg.Model, "parse_error": true})
		} else {
			res = parsed
			r.writeLog(ctx, &pkg.ID, model.ActionReview, model.LogSuccess, duration,
				map[string]any{"model": cfg.Model, "approved": res.Approved, "score": res.Score})
		}
	}

	status := model.ReviewNeedsHuman
	if res.Approved {
		status = model.ReviewApproved
	}
	if err := r.store.UpdateReviewResult(ctx, pkg.ID, status, res.Score, res.Note, res.Summary); err != nil {
		return err
	}
	pkg.ReviewStatus = status
	pkg.SecurityScore = res.Score
	pkg.ReviewNote = &res.Note
	pkg.AgentSummary = &res.Summary

	if !res.Approved {
		email := "unknown"
		if u, err := r.store.GetUser(ctx, pkg.AuthorID); err == nil {
			email = u.Email
		}
		r.notifier.ReviewAlert(ctx, cfg.Webhook(), *pkg, email, res.Score, res.Note)
	}

	r.notifier.LowSecurityScore(ctx, cfg.Webhook(), *pkg, res.Score)
	r.notifier.HighCredentials(ctx, cfg.Webhook(), *pkg)
	r.notifier.DownloadMilestone(ctx, cfg.Webhook(), pkg.Name, pkg.Downloads, pkg.Downloads)
	return nil
}

func (r *Runner) classifyStage(ctx context.Context, cfg model.AgentConfig, pkg *model.Package) error {
	if err := r.store.SetPipelineStatus(ctx, pkg.ID, model.PipelineClassifying); err != nil {
		return err
	}
	if !cfg.HasAPIKey() {
		r.writeLog(ctx, &pkg.ID, model.ActionClassify, model.LogSuccess, 0, map[string]any{"skipped": true})
		return nil
	}

	start := time.Now()
	text, err := r.chat(ctx, cfg, classifyPrompt(*pkg), 200)
	duration := int(time.Since(start).Milliseconds())
	if err != nil {
		r.writeLog(ctx, &pkg.ID, model.ActionClassify, model.LogFailed, duration,
			map[string]any{"model": cfg.Model, "error": err.Error()})
		return fmt.Errorf("agent: classify: %w", err)
	}

	parsed, ok := parseClassify(text)
	if !ok {
		r.writeLog(ctx, &pkg.ID, model.ActionClassify, model.LogFailed, duration,
			map[string]any{"model": cfg.Model, "parse_error": true})
		return errors.New("agent: classify: unparseable response")
	}

	// The suggestion is always recorded so low-confidence guesses stay
	// visible to curators; the primary category only moves on a confident,
	// on-list answer.
	apply := parsed.Confidence >= 0.6 && model.ValidCategory(parsed.Category)
	if err := r.store.UpdateClassification(ctx, pkg.ID, parsed.Category, apply); err != nil {
		return err
	}
	pkg.AutoCategory = &parsed.Category
	if apply {
		pkg.Category = parsed.Category
	}
	r.writeLog(ctx, &pkg.ID, model.ActionClassify, model.LogSuccess, duration,
		map[string]any{"model": cfg.Model, "category": parsed.Category, "confidence": parsed.Confidence, "applied": apply})
	return nil
}

func (r *Runner) enhanceStage(ctx context.Context, cfg model.AgentConfig, pkg *model.Package) error {
	if err := r.store.SetPipelineStatus(ctx, pkg.ID, model.PipelineEnhancing); err != nil {
		return err
	}
	if !cfg.HasAPIKey() {
		r.writeLog(ctx, &pkg.ID, model.ActionEnhance, model.LogSuccess, 0, map[string]any{"skipped": true})
		return nil
	}

	start := time.Now()
	text, err := r.chat(ctx, cfg, enhancePrompt(*pkg), 500)
	duration := int(time.Since(start).Milliseconds())
	if err != nil {
		r.writeLog(ctx, &pkg.ID, model.ActionEnhance, model.LogFailed, duration,
			map[string]any{"model": cfg.Model, "error": err.Error()})
		return fmt.Errorf("agent: enhance: %w", err)
	}

	parsed, ok := parseEnhance(text)
	if !ok {
		r.writeLog(ctx, &pkg.ID, model.ActionEnhance, model.LogFailed, duration,
			map[string]any{"model": cfg.Model, "parse_error": true})
		return errors.New("agent: enhance: unparseable response")
	}

	tools := parsed.Tools
	if len(tools) == 0 {
		// Downstream rendering assumes a non-empty tool list.
		tools = []model.ToolSummaryItem{{Name: pkg.Name, Description: parsed.Description}}
	}
	if err := r.store.UpdateEnhancement(ctx, pkg.ID, parsed.Description, tools); err != nil {
		return err
	}
	pkg.EnhancedDescription = &parsed.Description
	pkg.ToolsSummary = tools
	r.writeLog(ctx, &pkg.ID, model.ActionEnhance, model.LogSuccess, duration,
		map[string]any{"model": cfg.Model, "tools": len(tools)})
	return nil
}

// imageStage generates the logo and card banner. Illustration is cosmetic:
// nothing here can fail the pipeline.
func (r *Runner) imageStage(ctx context.Context, cfg model.AgentConfig, pkg *model.Package) {
	if err := r.store.SetPipelineStatus(ctx, pkg.ID, model.PipelineImaging); err != nil {
		r.logger.Warn("imaging status update failed", "package", pkg.ID, "error", err)
		return
	}
	if !cfg.HasAPIKey() {
		r.writeLog(ctx, &pkg.ID, model.ActionLogo, model.LogSuccess, 0, map[string]any{"skipped": true})
		r.writeLog(ctx, &pkg.ID, model.ActionImage, model.LogSuccess, 0, map[string]any{"skipped": true})
		return
	}

	r.generateArtwork(ctx, cfg, pkg, model.ActionLogo, logoPrompt(*pkg), r.store.UpdateLogo)
	r.generateArtwork(ctx, cfg, pkg, model.ActionImage, cardPrompt(*pkg), r.store.UpdateCardImage)
}

func (r *Runner) generateArtwork(ctx context.Context, cfg model.AgentConfig, pkg *model.Package,
	action model.LogAction, prompt string, save func(context.Context, uuid.UUID, *string) error) {

	start := time.Now()
	b64, err := r.llm.GenerateImage(ctx, llm.ImageRequest{
		BaseURL: cfg.BaseURL,
		APIKey:  strOrEmpty(cfg.APIKey),
		Model:   cfg.ImageModel,
		Prompt:  prompt,
	})
	duration := int(time.Since(start).Milliseconds())
	if err != nil {
		r.writeLog(ctx, &pkg.ID, action, model.LogFailed, duration,
			map[string]any{"model": cfg.ImageModel, "error": err.Error()})
		r.logger.Warn("image generation failed", "package", pkg.ID, "action", action, "error", err)
		return
	}

	uri := "data:image/png;base64," + b64
	if err := save(ctx, pkg.ID, &uri); err != nil {
		r.writeLog(ctx, &pkg.ID, action, model.LogFailed, duration,
			map[string]any{"model": cfg.ImageModel, "error": err.Error()})
		r.logger.Warn("image save failed", "package", pkg.ID, "action", action, "error", err)
		return
	}
	r.writeLog(ctx, &pkg.ID, action, model.LogSuccess, duration, map[string]any{"model": cfg.ImageModel})
}

func (r *Runner) notifyFailureStreak(ctx context.Context, cfg model.AgentConfig, pkg model.Package) {
	count, err := r.store.CountFailedLogsSince(ctx, pkg.ID, r.now().Add(-failureWindow))
	if err != nil {
		r.logger.Warn("failure streak count failed", "package", pkg.ID, "error", err)
		return
	}
	r.notifier.PipelineFailures(ctx, cfg.Webhook(), pkg.Name, count)
}

func (r *Runner) chat(ctx context.Context, cfg model.AgentConfig, prompt string, maxTokens int) (string, error) {
	return r.llm.Chat(ctx, llm.ChatRequest{
		BaseURL:      cfg.BaseURL,
		APIKey:       strOrEmpty(cfg.APIKey),
		Model:        cfg.Model,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:    maxTokens,
		SystemPrompt: strOrEmpty(cfg.SystemPrompt),
	})
}

// writeLog is best-effort: the audit trail must never fail an operation.
func (r *Runner) writeLog(ctx context.Context, packageID *uuid.UUID, action model.LogAction,
	status model.LogStatus, durationMs int, detail map[string]any) {

	err := r.store.InsertAgentLog(ctx, model.AgentLog{
		PackageID:  packageID,
		Action:     action,
		Status:     status,
		DurationMs: durationMs,
		Detail:     detail,
		CreatedAt:  r.now(),
	})
	if err != nil {
		r.logger.Warn("agent log write failed", "action", action, "error", err)
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
