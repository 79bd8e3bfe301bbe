package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/sgamolt/clawmarket/internal/model"
)

func (s *Server) registerTools() {
	// search_packages — browse the approved catalog.
	s.mcpServer.AddTool(
		mcplib.NewTool("search_packages",
			mcplib.WithDescription(`Search the MCP tool market for approved packages.

Returns compact package summaries (id, name, version, description, category,
downloads, tools count, security score). Use get_package with an id from the
results for full detail including the agent-generated tool list.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Substring to match against package names and descriptions. Omit to list everything."),
			),
			mcplib.WithString("category",
				mcplib.Description("Filter by market category. One of: "+strings.Join(model.Categories, ", ")),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum results to return"),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleSearchPackages,
	)

	// get_package — full detail for one package.
	s.mcpServer.AddTool(
		mcplib.NewTool("get_package",
			mcplib.WithDescription(`Fetch one package by id, including its enhanced description, tool
summary, credential requirements and security review outcome. Only approved
packages are visible.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("id",
				mcplib.Description("Package UUID, as returned by search_packages"),
				mcplib.Required(),
			),
		),
		s.handleGetPackage,
	)

	// market_stats — aggregate market numbers.
	s.mcpServer.AddTool(
		mcplib.NewTool("market_stats",
			mcplib.WithDescription(`Aggregate market statistics: approved and pending package counts,
total downloads, total tool count, and the current download leaderboard.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
		),
		s.handleMarketStats,
	)
}

// packageSummary is the compact shape search_packages returns per hit.
type packageSummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Downloads     int       `json:"downloads"`
	ToolsCount    int       `json:"toolsCount"`
	SecurityScore int       `json:"securityScore"`
}

func summarize(p model.Package) packageSummary {
	description := p.Description
	if p.EnhancedDescription != nil && *p.EnhancedDescription != "" {
		description = *p.EnhancedDescription
	}
	return packageSummary{
		ID:            p.ID,
		Name:          p.Name,
		Version:       p.Version,
		Description:   description,
		Category:      p.Category,
		Downloads:     p.Downloads,
		ToolsCount:    p.ToolsCount,
		SecurityScore: p.SecurityScore,
	}
}

func (s *Server) handleSearchPackages(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	category := request.GetString("category", "")
	limit := request.GetInt("limit", 10)
	if limit < 1 {
		limit = 10
	}

	if category != "" && !model.ValidCategory(category) {
		return errorResult(fmt.Sprintf("unknown category %q, expected one of: %s",
			category, strings.Join(model.Categories, ", "))), nil
	}

	packages, err := s.store.ListPackages(ctx, query, category)
	if err != nil {
		s.logger.Error("mcp: search packages", "error", err)
		return errorResult("search failed"), nil
	}
	if len(packages) > limit {
		packages = packages[:limit]
	}

	summaries := make([]packageSummary, 0, len(packages))
	for _, p := range packages {
		summaries = append(summaries, summarize(p))
	}

	data, _ := json.MarshalIndent(map[string]any{
		"packages": summaries,
		"total":    len(summaries),
	}, "", "  ")
	return textResult(string(data)), nil
}

func (s *Server) handleGetPackage(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	raw := request.GetString("id", "")
	id, err := uuid.Parse(raw)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid package id %q", raw)), nil
	}

	pkg, err := s.store.GetPackage(ctx, id)
	if err != nil || pkg.ReviewStatus != model.ReviewApproved {
		// Unapproved packages look exactly like missing ones.
		return errorResult("package not found"), nil
	}

	// The card and logo data URIs are multi-hundred-KB blobs; agents browsing
	// the catalog have no use for them.
	pkg.CardImageBase64 = nil
	pkg.LogoBase64 = nil

	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return errorResult("marshal failed"), nil
	}
	return textResult(string(data)), nil
}

func (s *Server) handleMarketStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	approved, err := s.store.CountPackagesByReviewStatus(ctx, model.ReviewApproved)
	if err != nil {
		s.logger.Error("mcp: market stats", "error", err)
		return errorResult("stats unavailable"), nil
	}
	pending, err := s.store.CountPackagesByReviewStatus(ctx, model.ReviewPending)
	if err != nil {
		s.logger.Error("mcp: market stats", "error", err)
		return errorResult("stats unavailable"), nil
	}
	downloads, err := s.store.SumDownloads(ctx)
	if err != nil {
		s.logger.Error("mcp: market stats", "error", err)
		return errorResult("stats unavailable"), nil
	}
	tools, err := s.store.SumToolsCount(ctx)
	if err != nil {
		s.logger.Error("mcp: market stats", "error", err)
		return errorResult("stats unavailable"), nil
	}

	top, err := s.store.TopPackagesByDownloads(ctx, 5)
	if err != nil {
		s.logger.Error("mcp: market stats", "error", err)
		return errorResult("stats unavailable"), nil
	}
	leaderboard := make([]packageSummary, 0, len(top))
	for _, p := range top {
		leaderboard = append(leaderboard, summarize(p))
	}

	data, _ := json.MarshalIndent(map[string]any{
		"approvedPackages": approved,
		"pendingPackages":  pending,
		"totalDownloads":   downloads,
		"totalTools":       tools,
		"topDownloads":     leaderboard,
	}, "", "  ")
	return textResult(string(data)), nil
}
