// Package webhook delivers operational alerts to a WeCom group robot and
// decides which market events warrant one.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Sender delivers one markdown message to a webhook endpoint.
type Sender interface {
	Send(ctx context.Context, webhookURL, content string) error
}

// WeComSender posts markdown messages in the WeCom group robot format.
type WeComSender struct {
	httpClient *http.Client
}

func NewWeComSender() *WeComSender {
	return &WeComSender{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type wecomMessage struct {
	MsgType  string        `json:"msgtype"`
	Markdown wecomMarkdown `json:"markdown"`
}

type wecomMarkdown struct {
	Content string `json:"content"`
}

// Send posts the message. Any 2xx response counts as delivered; WeCom's
// body-level error codes are not inspected.
func (s *WeComSender) Send(ctx context.Context, webhookURL, content string) error {
	body, err := json.Marshal(wecomMessage{
		MsgType:  "markdown",
		Markdown: wecomMarkdown{Content: content},
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: send message: status %d", resp.StatusCode)
	}
	return nil
}
