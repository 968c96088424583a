package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// AlertPayload is one entry of the body posted to Alertmanager's /api/v2/alerts.
type AlertPayload struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       *time.Time        `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
}

// AlertmanagerOptions configures the Alertmanager client.
type AlertmanagerOptions struct {
	BaseURL           string
	Timeout           time.Duration
	SkipTLSVerify     bool
	Logger            *slog.Logger
	AdditionalHeaders http.Header
	MaxRetries        int           // default 2
	RetryDelay        time.Duration // first backoff step, default 500ms
}

// AlertmanagerClient pushes alerts to Alertmanager, retrying network and 5xx failures.
type AlertmanagerClient struct {
	alertsURL  string
	statusURL  string
	client     *http.Client
	log        *slog.Logger
	headers    http.Header
	maxRetries int
	retryDelay time.Duration
}

// NewAlertmanagerClient accepts either the server root or the full alerts endpoint.
func NewAlertmanagerClient(opts AlertmanagerOptions) (*AlertmanagerClient, error) {
	base := strings.TrimSuffix(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("alertmanager base URL is required")
	}
	base = strings.TrimSuffix(base, "/api/v2/alerts")

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	return &AlertmanagerClient{
		alertsURL:  base + "/api/v2/alerts",
		statusURL:  base + "/api/v2/status",
		client:     &http.Client{Timeout: timeout, Transport: transport},
		log:        logger.With("component", "alertmanager_client"),
		headers:    opts.AdditionalHeaders.Clone(),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Send publishes alerts. Backoff doubles after each failed attempt.
func (c *AlertmanagerClient) Send(ctx context.Context, alerts []AlertPayload) error {
	if len(alerts) == 0 {
		return nil
	}
	body, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay << (attempt - 1)
			c.log.Warn("retrying alertmanager request", "attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
		}

		status, respBody, err := c.do(ctx, http.MethodPost, c.alertsURL, body)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return err
			}
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 500:
			lastErr = fmt.Errorf("alertmanager returned server error %d: %s", status, respBody)
		default:
			return fmt.Errorf("alertmanager returned status %d: %s", status, respBody)
		}
	}
	return fmt.Errorf("alertmanager request failed after %d retries: %w", c.maxRetries, lastErr)
}

// HealthCheck queries /api/v2/status.
func (c *AlertmanagerClient) HealthCheck(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("alertmanager health check failed with status %d: %s", status, body)
	}
	return nil
}

func (c *AlertmanagerClient) do(ctx context.Context, method, url string, body []byte) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create alertmanager request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, values := range c.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to reach alertmanager: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return resp.StatusCode, strings.TrimSpace(string(b)), nil
}
