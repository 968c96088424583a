package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

type SlackWebhookSenderOptions struct {
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// SlackWebhookSender posts messages to Slack incoming webhooks.
type SlackWebhookSender struct {
	client *http.Client
	logger *slog.Logger
}

type slackPayload struct {
	Text     string `json:"text"`
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
}

func NewSlackWebhookSender(opts SlackWebhookSenderOptions) *SlackWebhookSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify} // #nosec G402
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackWebhookSender{
		client: &http.Client{Timeout: timeout, Transport: transport},
		logger: logger.With("component", "slack_sender"),
	}
}

func (s *SlackWebhookSender) SendSlack(ctx context.Context, msg SlackMessage) error {
	if strings.TrimSpace(msg.WebhookURL) == "" {
		return fmt.Errorf("slack webhook url is empty")
	}
	body, err := json.Marshal(slackPayload{Text: msg.Text, Channel: msg.Channel, Username: msg.Username})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	responseBody, readErr := io.ReadAll(io.LimitReader(response.Body, 8<<10))
	_ = response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		if readErr != nil {
			return fmt.Errorf("slack returned status %d (body read error: %v)", response.StatusCode, readErr)
		}
		trimmed := strings.TrimSpace(string(responseBody))
		if trimmed == "" {
			trimmed = response.Status
		}
		return fmt.Errorf("slack returned status %d (%s)", response.StatusCode, trimmed)
	}
	s.logger.Debug("slack message sent", "channel", msg.Channel)
	return nil
}
