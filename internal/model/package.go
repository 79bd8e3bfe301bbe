// Package model defines the domain types shared across the market service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ReviewStatus tracks where a package sits in the review lifecycle.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending_review"
	ReviewApproved   ReviewStatus = "approved"
	ReviewNeedsHuman ReviewStatus = "needs_human_review"
	ReviewRejected   ReviewStatus = "rejected"
)

// PipelineStatus tracks which stage of the agent pipeline a package is in.
// Transitions are persisted before the corresponding stage executes, so the
// value always reads "currently doing X", not "X completed".
type PipelineStatus string

const (
	PipelinePending     PipelineStatus = "pending"
	PipelineReviewing   PipelineStatus = "reviewing"
	PipelineClassifying PipelineStatus = "classifying"
	PipelineEnhancing   PipelineStatus = "enhancing"
	PipelineImaging     PipelineStatus = "imaging"
	PipelineCompleted   PipelineStatus = "completed"
	PipelineFailed      PipelineStatus = "failed"
)

// Categories is the fixed set a package can be classified into.
// The classification stage only ever applies one of these; anything else the
// model suggests is recorded in AutoCategory but never promoted.
var Categories = []string{"效率工具", "开发工具", "数据采集", "内容生成", "生活服务", "其他"}

// ValidCategory reports whether c is one of the fixed market categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CredentialField describes one credential input a package asks its users for.
type CredentialField struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	Required     bool   `json:"required"`
	Description  string `json:"description,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

// ToolSummaryItem is one entry of the agent-generated tool list shown on the
// package detail page.
type ToolSummaryItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Package is a versioned MCP tool bundle submitted for listing.
type Package struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	AuthorID    uuid.UUID `json:"authorId"`
	Status      string    `json:"status"`

	ReviewStatus  ReviewStatus `json:"reviewStatus"`
	ReviewNote    *string      `json:"reviewNote,omitempty"`
	SecurityScore int          `json:"securityScore"`
	AgentSummary  *string      `json:"agentSummary,omitempty"`

	PipelineStatus      PipelineStatus `json:"pipelineStatus"`
	PipelineError       *string        `json:"pipelineError,omitempty"`
	PipelineCompletedAt *time.Time     `json:"pipelineCompletedAt,omitempty"`

	EnhancedDescription *string           `json:"enhancedDescription,omitempty"`
	ToolsSummary        []ToolSummaryItem `json:"toolsSummary,omitempty"`
	AutoCategory        *string           `json:"autoCategory,omitempty"`
	CardImageBase64     *string           `json:"cardImageBase64,omitempty"`
	LogoBase64          *string           `json:"logoBase64,omitempty"`

	ToolsCount  int               `json:"toolsCount"`
	Downloads   int               `json:"downloads"`
	Credentials []CredentialField `json:"credentials,omitempty"`
	SHA256      string            `json:"sha256"`
	PublishedAt time.Time         `json:"publishedAt"`
}
