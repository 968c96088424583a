package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SMSProvider describes an HTTP SMS gateway.
type SMSProvider struct {
	URL     string
	Token   string
	Headers map[string]string
	// DefaultSenderID is used when a message carries no sender id.
	DefaultSenderID string
}

type HTTPSMSSenderOptions struct {
	Providers map[string]SMSProvider
	Timeout   time.Duration
	Logger    *slog.Logger
}

// HTTPSMSSender posts one JSON request per message to the provider's gateway.
type HTTPSMSSender struct {
	providers map[string]SMSProvider
	client    *http.Client
	logger    *slog.Logger
}

type smsPayload struct {
	From string   `json:"from,omitempty"`
	To   []string `json:"to"`
	Body string   `json:"body"`
}

func NewHTTPSMSSender(opts HTTPSMSSenderOptions) *HTTPSMSSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := make(map[string]SMSProvider, len(opts.Providers))
	for name, p := range opts.Providers {
		providers[strings.ToLower(name)] = p
	}
	return &HTTPSMSSender{
		providers: providers,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("component", "sms_sender"),
	}
}

func (s *HTTPSMSSender) SendSMS(ctx context.Context, msg SMSMessage) error {
	provider, ok := s.providers[strings.ToLower(msg.Provider)]
	if !ok {
		return fmt.Errorf("sms provider %q is not configured", msg.Provider)
	}
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("sms has no recipients")
	}
	from := msg.SenderID
	if from == "" {
		from = provider.DefaultSenderID
	}
	body, err := json.Marshal(smsPayload{From: from, To: msg.Recipients, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if provider.Token != "" {
		req.Header.Set("Authorization", "Bearer "+provider.Token)
	}
	for k, v := range provider.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request to %s failed: %w", msg.Provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("sms provider %s returned status %d: %s", msg.Provider, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	s.logger.Debug("sms sent", "provider", msg.Provider, "recipients", len(msg.Recipients))
	return nil
}
