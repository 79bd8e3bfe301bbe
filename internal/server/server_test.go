package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sgamolt/clawmarket/internal/model"
	"github.com/sgamolt/clawmarket/internal/storage"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]model.User
	tokens        map[uuid.UUID]model.Token
	packages      map[uuid.UUID]model.Package
	cfg           model.AgentConfig
	logs          []model.AgentLog
	announcement  model.Announcement
	items         []model.AnnouncementItem
	pingErr       error
	reviewReasons map[uuid.UUID]*string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[uuid.UUID]model.User{},
		tokens:   map[uuid.UUID]model.Token{},
		packages: map[uuid.UUID]model.Package{},
		cfg: model.AgentConfig{
			ID:               1,
			Enabled:          true,
			Model:            model.DefaultModel,
			ImageModel:       model.DefaultImageModel,
			BaseURL:          model.DefaultBaseURL,
			HeartbeatMinutes: model.DefaultHeartbeatMinutes,
		},
		announcement:  model.Announcement{ID: 1, Content: model.DefaultAnnouncement},
		reviewReasons: map[uuid.UUID]*string{},
	}
}

func (s *fakeStore) Ping(context.Context) error { return s.pingErr }

func (s *fakeStore) addUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) CreateUser(_ context.Context, u model.User) (model.User, error) {
	return s.addUser(u), nil
}

func (s *fakeStore) GetUser(_ context.Context, id uuid.UUID) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (s *fakeStore) ListUsers(context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []model.User
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *fakeStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *fakeStore) SetSuperUser(_ context.Context, id uuid.UUID, super bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.IsSuperUser = super
	s.users[id] = u
	return nil
}

func (s *fakeStore) CreateToken(_ context.Context, t model.Token) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tokens[t.ID] = t
	return t, nil
}

func (s *fakeStore) GetTokenByValue(_ context.Context, value string) (model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.Token == value {
			return t, nil
		}
	}
	return model.Token{}, storage.ErrNotFound
}

func (s *fakeStore) ListTokensByUser(_ context.Context, userID uuid.UUID) ([]model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []model.Token
	for _, t := range s.tokens {
		if t.UserID == userID {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (s *fakeStore) DeleteToken(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.tokens, id)
	return nil
}

func (s *fakeStore) CreatePackage(_ context.Context, p model.Package) (model.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	s.packages[p.ID] = p
	return p, nil
}

func (s *fakeStore) GetPackage(_ context.Context, id uuid.UUID) (model.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return model.Package{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ListPackages(_ context.Context, query, category string) ([]model.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Package
	for _, p := range s.packages {
		if p.ReviewStatus != model.ReviewApproved {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) ListReviewQueue(_ context.Context, status string) ([]model.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Package
	for _, p := range s.packages {
		switch {
		case status != "":
			if string(p.ReviewStatus) == status {
				out = append(out, p)
			}
		case p.ReviewStatus == model.ReviewPending || p.ReviewStatus == model.ReviewNeedsHuman:
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) IncrementDownloads(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return 0, storage.ErrNotFound
	}
	p.Downloads++
	s.packages[id] = p
	return p.Downloads, nil
}

func (s *fakeStore) CountPackagesByAuthor(_ context.Context, authorID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.packages {
		if p.AuthorID == authorID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) SetReviewDecision(_ context.Context, id uuid.UUID, status model.ReviewStatus, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packages[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.ReviewStatus = status
	s.packages[id] = p
	s.reviewReasons[id] = reason
	return nil
}

func (s *fakeStore) EnsureAgentConfig(context.Context) (model.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *fakeStore) UpdateAgentConfig(_ context.Context, upd storage.AgentConfigUpdate) (model.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if upd.Enabled != nil {
		s.cfg.Enabled = *upd.Enabled
	}
	if upd.Model != nil {
		s.cfg.Model = *upd.Model
	}
	if upd.ImageModel != nil {
		s.cfg.ImageModel = *upd.ImageModel
	}
	if upd.BaseURL != nil {
		s.cfg.BaseURL = *upd.BaseURL
	}
	if upd.APIKey != nil {
		s.cfg.APIKey = upd.APIKey
	}
	if upd.SystemPrompt != nil {
		s.cfg.SystemPrompt = upd.SystemPrompt
	}
	if upd.WebhookURL != nil {
		s.cfg.WebhookURL = upd.WebhookURL
	}
	if upd.HeartbeatMinutes != nil {
		s.cfg.HeartbeatMinutes = *upd.HeartbeatMinutes
	}
	if upd.DailyDigestHour != nil {
		s.cfg.DailyDigestHour = *upd.DailyDigestHour
	}
	if upd.TrendDetectionHour != nil {
		s.cfg.TrendDetectionHour = *upd.TrendDetectionHour
	}
	if upd.WeeklyExpireDay != nil {
		s.cfg.WeeklyExpireDay = *upd.WeeklyExpireDay
	}
	s.cfg.UpdatedAt = time.Now().UTC()
	return s.cfg, nil
}

func (s *fakeStore) ListAgentLogs(_ context.Context, limit int) ([]model.AgentLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.logs) {
		limit = len(s.logs)
	}
	return s.logs[:limit], nil
}

func (s *fakeStore) EnsureAnnouncement(context.Context) (model.Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announcement, nil
}

func (s *fakeStore) SetAnnouncementContent(_ context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcement.Content = content
	s.announcement.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) ListAnnouncementItems(context.Context) ([]model.AnnouncementItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, nil
}

// fakeRunner records pipeline invocations.
type fakeRunner struct {
	mu        sync.Mutex
	ran       []uuid.UUID
	retried   []uuid.UUID
	triggered int
}

func (r *fakeRunner) RunPipeline(_ context.Context, _ model.AgentConfig, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, id)
	return nil
}

func (r *fakeRunner) RetryPipeline(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retried = append(r.retried, id)
	return nil
}

func (r *fakeRunner) TriggerReview(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggered++
	return 0, nil
}

// captureSender records webhook payloads instead of delivering them.
type captureSender struct {
	mu       sync.Mutex
	contents []string
}

func (c *captureSender) Send(_ context.Context, _ string, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contents = append(c.contents, content)
	return nil
}

func (c *captureSender) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.contents...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
