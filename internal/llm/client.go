// Package llm is the gateway to the OpenRouter-compatible chat and image
// generation API the agent pipeline runs against.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries everything needed for a single completion call.
// Credentials are passed per call because the key lives in the database and
// an admin can rotate it between pipeline runs.
type ChatRequest struct {
	BaseURL      string
	APIKey       string
	Model        string
	Messages     []Message
	MaxTokens    int
	SystemPrompt string
}

// ImageRequest carries a single image generation call.
type ImageRequest struct {
	BaseURL string
	APIKey  string
	Model   string
	Prompt  string
}

// Client calls an OpenRouter-compatible API. Failed requests are retried at
// most once, and only for outcomes that plausibly resolve on their own:
// network errors, 429 and 5xx. Client errors like 400/401 fail immediately.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	backoff    time.Duration
}

// New creates a client. The generous timeout covers image generation, which
// routinely takes over a minute.
func New(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		backoff:    2 * time.Second,
	}
}

// Chat runs a completion and returns the assistant's text content.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := req.Messages
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	payload, err := c.post(ctx, normalizeBaseURL(req.BaseURL)+"/chat/completions", req.APIKey, body)
	if err != nil {
		return "", err
	}

	content, ok := chatContent(payload)
	if !ok {
		return "", fmt.Errorf("llm: chat completion returned empty content")
	}
	return content, nil
}

// GenerateImage asks for an image via the chat endpoint with the image
// modality and returns raw base64 (no data: prefix). Providers disagree on
// where the image lands in the response, so several shapes are probed.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	body := map[string]any{
		"model":      req.Model,
		"messages":   []Message{{Role: "user", Content: req.Prompt}},
		"modalities": []string{"image"},
	}

	payload, err := c.post(ctx, normalizeBaseURL(req.BaseURL)+"/chat/completions", req.APIKey, body)
	if err != nil {
		return "", err
	}

	b64, fetchURL := extractImage(payload)
	if b64 != "" {
		return b64, nil
	}
	if fetchURL != "" {
		return c.fetchImage(ctx, fetchURL)
	}
	return "", fmt.Errorf("llm: image generation returned no image data")
}

// fetchImage downloads a hosted image and encodes it as base64.
func (c *Client) fetchImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("llm: create image fetch: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: image URL fetch failed (%d)", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read image body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// post sends the request, retrying once after a fixed backoff when the
// failure is retriable.
func (c *Client) post(ctx context.Context, endpoint, apiKey string, body any) (map[string]any, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("llm: create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("llm: send request: %w", err)
			if attempt == 0 {
				c.logger.Warn("llm request network error, retrying once", "error", err)
				continue
			}
			break
		}

		if resp.StatusCode != http.StatusOK {
			text, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			if retriable(resp.StatusCode) && attempt == 0 {
				c.logger.Warn("llm request failed, retrying once", "status", resp.StatusCode)
				lastErr = fmt.Errorf("llm: request failed (%d): %s", resp.StatusCode, string(text))
				continue
			}
			return nil, fmt.Errorf("llm: request failed (%d): %s", resp.StatusCode, string(text))
		}

		var payload map[string]any
		err = json.NewDecoder(resp.Body).Decode(&payload)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("llm: decode response: %w", err)
		}
		return payload, nil
	}

	return nil, lastErr
}

func retriable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func normalizeBaseURL(url string) string {
	return strings.TrimRight(url, "/")
}
