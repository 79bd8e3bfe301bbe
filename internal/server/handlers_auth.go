package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/auth"
	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/storage"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken         string    `json:"accessToken"`
	ExpiresAt           time.Time `json:"expiresAt"`
	Email               string    `json:"email"`
	IsSuperUser         bool      `json:"isSuperUser"`
	ForcePasswordChange bool      `json:"forcePasswordChange"`
}

// handleRegister creates a publisher account and logs it in.
func (h *Handlers) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	if _, err := h.store.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, r, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := h.store.CreateUser(r.Context(), model.User{
		Email:        req.Email,
		PasswordHash: auth.HashPassword(req.Password),
	})
	if err != nil {
		h.logger.Error("create user", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	h.issueSession(w, r, user, http.StatusCreated)
}

// handleLogin authenticates by email and password and issues a session JWT.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		// Same response as a bad password so the endpoint does not leak
		// which emails exist.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

func (h *Handlers) issueSession(w http.ResponseWriter, r *http.Request, user model.User, status int) {
	signed, exp, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.logger.Error("issue session token", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, status, loginResponse{
		AccessToken:         signed,
		ExpiresAt:           exp,
		Email:               user.Email,
		IsSuperUser:         user.IsSuperUser,
		ForcePasswordChange: user.ForcePasswordChange,
	})
}

type createTokenRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expiresInDays"`
}

// handleCreateToken mints an opaque API token for CLI publishing. The token
// value is only ever returned from this call.
func (h *Handlers) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req createTokenRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = "cli"
	}

	value, err := auth.NewOpaqueToken()
	if err != nil {
		h.logger.Error("generate token", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	token := model.Token{UserID: user.ID, Token: value, Name: req.Name}
	if req.ExpiresInDays > 0 {
		exp := h.now().AddDate(0, 0, req.ExpiresInDays)
		token.ExpiresAt = &exp
	}

	created, err := h.store.CreateToken(r.Context(), token)
	if err != nil {
		h.logger.Error("create token", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListTokens returns the caller's API tokens, values masked.
func (h *Handlers) handleListTokens(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	tokens, err := h.store.ListTokensByUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list tokens", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	for i := range tokens {
		tokens[i].Token = maskToken(tokens[i].Token)
	}
	if tokens == nil {
		tokens = []model.Token{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// handleDeleteToken revokes one of the caller's API tokens.
func (h *Handlers) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid token id")
		return
	}

	if err := h.store.DeleteToken(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "token not found")
			return
		}
		h.logger.Error("delete token", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SeedAdmin ensures the bootstrap super user exists. Called once on startup
// when MARKET_ADMIN_EMAIL / MARKET_ADMIN_PASSWORD are configured; a no-op when
// the account is already present.
func (h *Handlers) SeedAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}

	existing, err := h.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsSuperUser {
			return nil
		}
		return h.store.SetSuperUser(ctx, existing.ID, true)
	case errors.Is(err, storage.ErrNotFound):
		_, err := h.store.CreateUser(ctx, model.User{
			Email:        email,
			PasswordHash: auth.HashPassword(password),
			IsSuperUser:  true,
		})
		if err != nil {
			return err
		}
		h.logger.Info("seeded admin user", "email", email)
		return nil
	default:
		return err
	}
}

func maskToken(value string) string {
	if len(value) <= 8 {
		return value
	}
	return value[:4] + "…" + value[len(value)-4:]
}
