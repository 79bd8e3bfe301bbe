package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/storage"
)

// pipelineTimeout bounds a single background pipeline run kicked off by a
// publish or retry request.
const pipelineTimeout = 10 * time.Minute

// handleListPackages returns approved packages, optionally filtered by a
// search query and a category.
func (h *Handlers) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.store.ListPackages(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("category"))
	if err != nil {
		h.logger.Error("list packages", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	if packages == nil {
		packages = []model.Package{}
	}
	writeJSON(w, http.StatusOK, packages)
}

// handleGetPackage returns one package. Unapproved packages are only visible
// to super users; everyone else gets a 404 so listings cannot be probed.
func (h *Handlers) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}

	pkg, err := h.store.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "package not found")
			return
		}
		h.logger.Error("get package", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	if pkg.ReviewStatus != model.ReviewApproved {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsSuperUser {
			writeError(w, r, http.StatusNotFound, "package not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, pkg)
}

// handleDownload counts a download and fires the milestone notification when
// the new total lands exactly on one.
func (h *Handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}

	pkg, err := h.store.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "package not found")
			return
		}
		h.logger.Error("get package", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	downloads, err := h.store.IncrementDownloads(r.Context(), id)
	if err != nil {
		h.logger.Error("increment downloads", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	if downloads == 100 || downloads == 500 {
		name := pkg.Name
		h.spawn(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			cfg, err := h.store.EnsureAgentConfig(ctx)
			if err != nil {
				h.logger.Warn("milestone config lookup failed", "error", err)
				return
			}
			h.notifier.DownloadMilestone(ctx, cfg.Webhook(), name, downloads, downloads)
		})
	}

	writeJSON(w, http.StatusOK, map[string]int{"downloads": downloads})
}

type credentialInput struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	Required     *bool  `json:"required"`
	Description  string `json:"description,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

type publishRequest struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	Category      string            `json:"category"`
	ToolsCount    int               `json:"toolsCount"`
	Credentials   []credentialInput `json:"credentials"`
	TarballBase64 string            `json:"tarballBase64"`
}

// handlePublish accepts a new package submission. The package enters the
// market as pending_review and the agent pipeline is kicked off in the
// background; the response never waits on the LLM.
func (h *Handlers) handlePublish(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req publishRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Version = strings.TrimSpace(req.Version)
	if req.Name == "" || req.Version == "" {
		writeError(w, r, http.StatusBadRequest, "name and version are required")
		return
	}

	credentials, err := validateCredentials(req.Credentials)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	digest, err := packageDigest(req.TarballBase64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "tarballBase64 is not valid base64")
		return
	}

	category := req.Category
	if !model.ValidCategory(category) {
		category = "其他"
	}

	pkg, err := h.store.CreatePackage(r.Context(), model.Package{
		Name:           req.Name,
		Version:        req.Version,
		Description:    req.Description,
		Category:       category,
		AuthorID:       user.ID,
		ReviewStatus:   model.ReviewPending,
		PipelineStatus: model.PipelinePending,
		ToolsCount:     req.ToolsCount,
		Credentials:    credentials,
		SHA256:         digest,
	})
	if err != nil {
		h.logger.Error("create package", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	authorCount, err := h.store.CountPackagesByAuthor(r.Context(), user.ID)
	if err != nil {
		h.logger.Warn("count author packages", "error", err)
		authorCount = 0
	}

	pkgID, authorEmail := pkg.ID, user.Email
	h.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
		defer cancel()

		cfg, err := h.store.EnsureAgentConfig(ctx)
		if err != nil {
			h.logger.Error("publish config lookup failed", "package_id", pkgID, "error", err)
			return
		}
		if authorCount == 1 {
			h.notifier.FirstPublish(ctx, cfg.Webhook(), authorEmail)
		}
		if !cfg.Enabled {
			return
		}
		if err := h.runner.RunPipeline(ctx, cfg, pkgID); err != nil {
			h.logger.Error("pipeline run failed", "package_id", pkgID, "error", err)
		}
	})

	writeJSON(w, http.StatusCreated, pkg)
}

// validateCredentials checks every declared credential field. key, label,
// type and required are mandatory; description and defaultValue optional.
func validateCredentials(inputs []credentialInput) ([]model.CredentialField, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	fields := make([]model.CredentialField, 0, len(inputs))
	for _, in := range inputs {
		if in.Key == "" || in.Label == "" || in.Type == "" || in.Required == nil {
			return nil, errors.New("each credential needs key, label, type and required")
		}
		fields = append(fields, model.CredentialField{
			Key:          in.Key,
			Label:        in.Label,
			Type:         in.Type,
			Required:     *in.Required,
			Description:  in.Description,
			DefaultValue: in.DefaultValue,
		})
	}
	return fields, nil
}

// packageDigest hashes the uploaded tarball, or random bytes when the client
// sent metadata only, so every package row carries a sha256.
func packageDigest(tarballBase64 string) (string, error) {
	var payload []byte
	if tarballBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(tarballBase64)
		if err != nil {
			return "", err
		}
		payload = decoded
	} else {
		payload = make([]byte, 32)
		if _, err := rand.Read(payload); err != nil {
			return "", err
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// handleGetAnnouncement returns the legacy single-string announcement.
func (h *Handlers) handleGetAnnouncement(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.EnsureAnnouncement(r.Context())
	if err != nil {
		h.logger.Error("get announcement", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleListAnnouncementItems returns the active marquee items.
func (h *Handlers) handleListAnnouncementItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAnnouncementItems(r.Context())
	if err != nil {
		h.logger.Error("list announcement items", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	if items == nil {
		items = []model.AnnouncementItem{}
	}
	writeJSON(w, http.StatusOK, items)
}
