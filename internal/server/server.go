package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/sgamolt/clawmarket/internal/auth"
	"github.com/sgamolt/clawmarket/internal/webhook"
)

// Server is the market HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	// Required dependencies.
	Store    Store
	JWTMgr   *auth.JWTManager
	Runner   PipelineRunner
	Notifier *webhook.Notifier
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
}

// Handlers carries the dependencies shared by all HTTP handlers.
type Handlers struct {
	store        Store
	jwtMgr       *auth.JWTManager
	runner       PipelineRunner
	notifier     *webhook.Notifier
	logger       *slog.Logger
	maxBodyBytes int64
	now          func() time.Time

	// spawn runs fire-and-forget work. Tests replace it to run inline.
	spawn func(func())
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := &Handlers{
		store:        cfg.Store,
		jwtMgr:       cfg.JWTMgr,
		runner:       cfg.Runner,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		maxBodyBytes: cfg.MaxRequestBodyBytes,
		now:          time.Now,
		spawn:        func(f func()) { go f() },
	}

	mux := http.NewServeMux()

	// Public market surface.
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /packages", h.handleListPackages)
	mux.HandleFunc("GET /packages/{id}", h.handleGetPackage)
	mux.HandleFunc("POST /packages/{id}/download", h.handleDownload)
	mux.HandleFunc("GET /announcement", h.handleGetAnnouncement)
	mux.HandleFunc("GET /announcement/items", h.handleListAnnouncementItems)

	// Account endpoints.
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.Handle("POST /auth/tokens", requireUser(http.HandlerFunc(h.handleCreateToken)))
	mux.Handle("GET /auth/tokens", requireUser(http.HandlerFunc(h.handleListTokens)))
	mux.Handle("DELETE /auth/tokens/{id}", requireUser(http.HandlerFunc(h.handleDeleteToken)))

	// Publishing (authenticated).
	mux.Handle("POST /packages", requireUser(http.HandlerFunc(h.handlePublish)))

	// Admin console (super user only).
	mux.Handle("GET /admin/users", requireSuper(http.HandlerFunc(h.handleListUsers)))
	mux.Handle("POST /admin/invite", requireSuper(http.HandlerFunc(h.handleInvite)))
	mux.Handle("DELETE /admin/users/{id}", requireSuper(http.HandlerFunc(h.handleDeleteUser)))
	mux.Handle("GET /admin/agent", requireSuper(http.HandlerFunc(h.handleGetAgentConfig)))
	mux.Handle("PUT /admin/agent", requireSuper(http.HandlerFunc(h.handleUpdateAgentConfig)))
	mux.Handle("GET /admin/agent/logs", requireSuper(http.HandlerFunc(h.handleAgentLogs)))
	mux.Handle("POST /admin/agent/trigger-review", requireSuper(http.HandlerFunc(h.handleTriggerReview)))
	mux.Handle("GET /admin/review-queue", requireSuper(http.HandlerFunc(h.handleReviewQueue)))
	mux.Handle("POST /admin/packages/{id}/review", requireSuper(http.HandlerFunc(h.handleReview)))
	mux.Handle("POST /admin/packages/{id}/retry-pipeline", requireSuper(http.HandlerFunc(h.handleRetryPipeline)))
	mux.Handle("PUT /admin/announcement", requireSuper(http.HandlerFunc(h.handleSetAnnouncement)))

	// MCP StreamableHTTP transport (public, read-only market tools).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = h.authMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// handleHealth reports liveness, including database reachability.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handlers returns the underlying Handlers for access to SeedAdmin etc.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
