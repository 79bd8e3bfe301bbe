// Package agent contains the pipeline orchestrator that reviews, classifies,
// enriches and illustrates published packages, plus the scheduler that drives
// it and the periodic operational jobs.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/llm"
	"github.com/sgamolt/clawmarket/internal/model"
)

// Store is the persistence surface the agent needs. *storage.DB satisfies it;
// tests swap in an in-memory fake.
type Store interface {
	GetPackage(ctx context.Context, id uuid.UUID) (model.Package, error)
	ListPackagesByReviewStatus(ctx context.Context, status model.ReviewStatus) ([]model.Package, error)
	ListOtherPackageNames(ctx context.Context, exclude uuid.UUID) ([]string, error)
	SetPipelineStatus(ctx context.Context, id uuid.UUID, status model.PipelineStatus) error
	CompletePipeline(ctx context.Context, id uuid.UUID) error
	FailPipeline(ctx context.Context, id uuid.UUID, msg string) error
	UpdateReviewResult(ctx context.Context, id uuid.UUID, status model.ReviewStatus, score int, note, summary string) error
	UpdateClassification(ctx context.Context, id uuid.UUID, suggestion string, apply bool) error
	UpdateEnhancement(ctx context.Context, id uuid.UUID, description string, tools []model.ToolSummaryItem) error
	UpdateLogo(ctx context.Context, id uuid.UUID, dataURI *string) error
	UpdateCardImage(ctx context.Context, id uuid.UUID, dataURI *string) error

	CountPackagesByReviewStatus(ctx context.Context, status model.ReviewStatus) (int, error)
	CountPackagesPublishedSince(ctx context.Context, t time.Time) (int, error)
	SumDownloads(ctx context.Context) (int, error)
	SumToolsCount(ctx context.Context) (int, error)
	TopPackagesByDownloads(ctx context.Context, n int) ([]model.Package, error)
	LatestApprovedPackage(ctx context.Context) (model.Package, error)
	TrendingPackage(ctx context.Context, since time.Time, minDownloads int) (model.Package, error)
	StaleApprovedPackages(ctx context.Context, cutoff time.Time, limit int) ([]model.Package, error)

	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)

	EnsureAgentConfig(ctx context.Context) (model.AgentConfig, error)

	InsertAgentLog(ctx context.Context, log model.AgentLog) error
	CountFailedLogsSince(ctx context.Context, packageID uuid.UUID, t time.Time) (int, error)
	CountLogsSince(ctx context.Context, t time.Time) (int, error)

	LatestAutoItemUpdatedAt(ctx context.Context) (time.Time, error)
	ReplaceAutoAnnouncements(ctx context.Context, items []model.AnnouncementItem) error
}

// LLMClient is the slice of the gateway the pipeline calls.
type LLMClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
	GenerateImage(ctx context.Context, req llm.ImageRequest) (string, error)
}
