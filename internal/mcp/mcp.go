// Package mcp implements the Model Context Protocol server for the market.
//
// It exposes the public market surface as MCP tools so MCP-compatible agents
// can browse the catalog without going through the HTTP API.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/model"
)

// Store is the read-only slice of storage the MCP tools need.
// *storage.DB satisfies it.
type Store interface {
	ListPackages(ctx context.Context, query, category string) ([]model.Package, error)
	GetPackage(ctx context.Context, id uuid.UUID) (model.Package, error)
	CountPackagesByReviewStatus(ctx context.Context, status model.ReviewStatus) (int, error)
	SumDownloads(ctx context.Context) (int, error)
	SumToolsCount(ctx context.Context) (int, error)
	TopPackagesByDownloads(ctx context.Context, n int) ([]model.Package, error)
}

// Server wraps the MCP server with the market's storage layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     Store
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(store Store, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"clawmarket",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}
