package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/storage"
)

// Store is the persistence surface the HTTP handlers depend on.
// *storage.DB satisfies it; tests substitute an in-memory fake.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SetSuperUser(ctx context.Context, id uuid.UUID, super bool) error

	CreateToken(ctx context.Context, t model.Token) (model.Token, error)
	GetTokenByValue(ctx context.Context, value string) (model.Token, error)
	ListTokensByUser(ctx context.Context, userID uuid.UUID) ([]model.Token, error)
	DeleteToken(ctx context.Context, userID, id uuid.UUID) error

	CreatePackage(ctx context.Context, p model.Package) (model.Package, error)
	GetPackage(ctx context.Context, id uuid.UUID) (model.Package, error)
	ListPackages(ctx context.Context, query, category string) ([]model.Package, error)
	ListReviewQueue(ctx context.Context, status string) ([]model.Package, error)
	IncrementDownloads(ctx context.Context, id uuid.UUID) (int, error)
	CountPackagesByAuthor(ctx context.Context, authorID uuid.UUID) (int, error)
	SetReviewDecision(ctx context.Context, id uuid.UUID, status model.ReviewStatus, reason *string) error

	EnsureAgentConfig(ctx context.Context) (model.AgentConfig, error)
	UpdateAgentConfig(ctx context.Context, upd storage.AgentConfigUpdate) (model.AgentConfig, error)
	ListAgentLogs(ctx context.Context, limit int) ([]model.AgentLog, error)

	EnsureAnnouncement(ctx context.Context) (model.Announcement, error)
	SetAnnouncementContent(ctx context.Context, content string) error
	ListAnnouncementItems(ctx context.Context) ([]model.AnnouncementItem, error)
}

// PipelineRunner is the slice of the agent runner the HTTP layer drives.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, cfg model.AgentConfig, id uuid.UUID) error
	RetryPipeline(ctx context.Context, id uuid.UUID) error
	TriggerReview(ctx context.Context) (int, error)
}
