package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mr-karan/searchwatch/internal/alerts"
	"github.com/mr-karan/searchwatch/internal/config"
)

// NewDispatcher builds a dispatcher with a handler for every channel the
// configuration enables. The console channel is always available.
func NewDispatcher(cfg *config.Config, logger *slog.Logger) (*alerts.Dispatcher, error) {
	var (
		email alerts.EmailSender
		slack alerts.SlackSender
		sms   alerts.SMSSender
		am    alerts.AlertmanagerSender
	)

	if cfg.SMTP.Host != "" {
		email = alerts.NewSMTPSender(alerts.SMTPSenderOptions{
			Host:          cfg.SMTP.Host,
			Port:          cfg.SMTP.Port,
			Username:      cfg.SMTP.Username,
			Password:      cfg.SMTP.Password,
			ReplyTo:       cfg.SMTP.ReplyTo,
			Security:      cfg.SMTP.Security,
			Timeout:       cfg.SMTP.Timeout,
			SkipTLSVerify: cfg.SMTP.SkipTLSVerify,
			Logger:        logger,
		})
	}
	if cfg.Slack.Enabled {
		slack = alerts.NewSlackWebhookSender(alerts.SlackWebhookSenderOptions{
			Timeout:       cfg.Slack.Timeout,
			SkipTLSVerify: cfg.Slack.SkipTLSVerify,
			Logger:        logger,
		})
	}
	if len(cfg.SMS.Providers) > 0 {
		providers := make(map[string]alerts.SMSProvider, len(cfg.SMS.Providers))
		for name, p := range cfg.SMS.Providers {
			providers[name] = alerts.SMSProvider{
				URL:             p.URL,
				Token:           p.Token,
				Headers:         p.Headers,
				DefaultSenderID: p.DefaultSenderID,
			}
		}
		sms = alerts.NewHTTPSMSSender(alerts.HTTPSMSSenderOptions{
			Providers: providers,
			Timeout:   cfg.SMS.Timeout,
			Logger:    logger,
		})
	}
	if cfg.Alertmanager.URL != "" {
		headers := make(http.Header, len(cfg.Alertmanager.Headers))
		for k, v := range cfg.Alertmanager.Headers {
			headers.Set(k, v)
		}
		client, err := alerts.NewAlertmanagerClient(alerts.AlertmanagerOptions{
			BaseURL:           cfg.Alertmanager.URL,
			Timeout:           cfg.Alertmanager.Timeout,
			SkipTLSVerify:     cfg.Alertmanager.SkipTLSVerify,
			AdditionalHeaders: headers,
			MaxRetries:        cfg.Alertmanager.MaxRetries,
			RetryDelay:        cfg.Alertmanager.RetryDelay,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create alertmanager client: %w", err)
		}
		am = client
	}
	console := alerts.NewLogConsoleSender(logger,
		"ruleId", "ruleName", "target", "matchCount", "status", "errorType")

	return alerts.NewDispatcher(alerts.DefaultHandlers(email, slack, sms, console, am)...)
}
