package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/mr-karan/searchwatch/internal/template"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// EmailMessage is a rendered email.
type EmailMessage struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	ContentType string
}

// SlackMessage is a rendered Slack webhook post.
type SlackMessage struct {
	WebhookURL string
	Channel    string
	Username   string
	Text       string
}

// SMSMessage is a rendered text message.
type SMSMessage struct {
	Provider   string
	SenderID   string
	Recipients []string
	Body       string
}

// ConsoleMessage is a rendered log line.
type ConsoleMessage struct {
	Level   models.ConsoleLevel
	Message string
	// Attrs carries the variables the message was rendered with.
	Attrs map[string]string
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

type SlackSender interface {
	SendSlack(ctx context.Context, msg SlackMessage) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}

type ConsoleSender interface {
	SendConsole(ctx context.Context, msg ConsoleMessage) error
}

type AlertmanagerSender interface {
	Send(ctx context.Context, alerts []AlertPayload) error
}

func configMismatch(def models.NotificationDefinition, want models.NotificationChannel) error {
	return fmt.Errorf("notification %q: config %T is not a %s config", def.ID, def.Config, want)
}

// EmailHandler renders EmailConfig templates.
type EmailHandler struct {
	Sender EmailSender
}

func (EmailHandler) Channel() models.NotificationChannel { return models.ChannelEmail }

func (h EmailHandler) Handle(ctx context.Context, def models.NotificationDefinition, vars map[string]string) error {
	cfg, ok := def.Config.(models.EmailConfig)
	if !ok {
		return configMismatch(def, models.ChannelEmail)
	}
	contentType := cfg.ContentType
	if contentType == "" {
		contentType = models.DefaultEmailContentType
	}
	return h.Sender.SendEmail(ctx, EmailMessage{
		From:        template.Render(cfg.From, vars),
		To:          template.RenderAll(vars, cfg.To...),
		CC:          template.RenderAll(vars, cfg.CC...),
		BCC:         template.RenderAll(vars, cfg.BCC...),
		Subject:     template.Render(cfg.Subject, vars),
		Body:        template.Render(cfg.Body, vars),
		ContentType: contentType,
	})
}

// SlackHandler renders SlackConfig templates.
type SlackHandler struct {
	Sender SlackSender
}

func (SlackHandler) Channel() models.NotificationChannel { return models.ChannelSlack }

func (h SlackHandler) Handle(ctx context.Context, def models.NotificationDefinition, vars map[string]string) error {
	cfg, ok := def.Config.(models.SlackConfig)
	if !ok {
		return configMismatch(def, models.ChannelSlack)
	}
	return h.Sender.SendSlack(ctx, SlackMessage{
		WebhookURL: cfg.WebhookURL,
		Channel:    template.Render(cfg.TargetChannel, vars),
		Username:   template.Render(cfg.Username, vars),
		Text:       template.Render(cfg.Text, vars),
	})
}

// SMSHandler renders SMSConfig templates.
type SMSHandler struct {
	Sender SMSSender
}

func (SMSHandler) Channel() models.NotificationChannel { return models.ChannelSMS }

func (h SMSHandler) Handle(ctx context.Context, def models.NotificationDefinition, vars map[string]string) error {
	cfg, ok := def.Config.(models.SMSConfig)
	if !ok {
		return configMismatch(def, models.ChannelSMS)
	}
	return h.Sender.SendSMS(ctx, SMSMessage{
		Provider:   cfg.Provider,
		SenderID:   template.Render(cfg.SenderID, vars),
		Recipients: template.RenderAll(vars, cfg.Recipients...),
		Body:       template.Render(cfg.Body, vars),
	})
}

// ConsoleHandler renders ConsoleConfig templates.
type ConsoleHandler struct {
	Sender ConsoleSender
}

func (ConsoleHandler) Channel() models.NotificationChannel { return models.ChannelConsole }

func (h ConsoleHandler) Handle(ctx context.Context, def models.NotificationDefinition, vars map[string]string) error {
	cfg, ok := def.Config.(models.ConsoleConfig)
	if !ok {
		return configMismatch(def, models.ChannelConsole)
	}
	level := cfg.Level
	if level == "" {
		level = models.ConsoleInfo
	}
	return h.Sender.SendConsole(ctx, ConsoleMessage{
		Level:   level,
		Message: template.Render(cfg.Message, vars),
		Attrs:   vars,
	})
}

// AlertmanagerHandler turns a notification into a single Alertmanager alert.
// alertname and rule_id labels are always set from the context variables.
type AlertmanagerHandler struct {
	Sender AlertmanagerSender
}

func (AlertmanagerHandler) Channel() models.NotificationChannel { return models.ChannelAlertmanager }

func (h AlertmanagerHandler) Handle(ctx context.Context, def models.NotificationDefinition, vars map[string]string) error {
	cfg, ok := def.Config.(models.AlertmanagerConfig)
	if !ok {
		return configMismatch(def, models.ChannelAlertmanager)
	}

	labels := template.RenderMap(cfg.Labels, vars)
	if labels == nil {
		labels = make(map[string]string, 3)
	}
	labels["alertname"] = vars["ruleName"]
	labels["rule_id"] = vars["ruleId"]
	if status := vars["status"]; status != "" {
		labels["status"] = status
	}

	annotations := template.RenderMap(cfg.Annotations, vars)
	if annotations == nil {
		annotations = make(map[string]string, 2)
	}
	if _, ok := annotations["summary"]; !ok {
		annotations["summary"] = fmt.Sprintf("%s matched %s documents in %s", vars["ruleName"], vars["matchCount"], vars["target"])
		if vars["status"] == string(models.ExecutionFailure) {
			annotations["summary"] = fmt.Sprintf("%s failed: %s", vars["ruleName"], vars["errorMessage"])
		}
	}

	startsAt, err := time.Parse(time.RFC3339, vars["timestamp"])
	if err != nil {
		startsAt = time.Now().UTC()
	}

	return h.Sender.Send(ctx, []AlertPayload{{
		Labels:       labels,
		Annotations:  annotations,
		StartsAt:     startsAt,
		GeneratorURL: template.Render(cfg.GeneratorURL, vars),
	}})
}

// DefaultHandlers wires the built-in handlers for every non-nil sender.
func DefaultHandlers(email EmailSender, slack SlackSender, sms SMSSender, console ConsoleSender, am AlertmanagerSender) []ChannelHandler {
	var out []ChannelHandler
	if email != nil {
		out = append(out, EmailHandler{Sender: email})
	}
	if slack != nil {
		out = append(out, SlackHandler{Sender: slack})
	}
	if sms != nil {
		out = append(out, SMSHandler{Sender: sms})
	}
	if console != nil {
		out = append(out, ConsoleHandler{Sender: console})
	}
	if am != nil {
		out = append(out, AlertmanagerHandler{Sender: am})
	}
	return out
}
