package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mr-karan/searchwatch/pkg/models"
)

// rulesFile is the on-disk layout of the rules file:
//
//	[[notifications]]
//	id = "ops-chat"
//	type = "slack"
//	[notifications.slack]
//	webhook_url = "https://hooks.slack.com/services/..."
//	text = "{{ruleName}} matched {{matchCount}} documents"
//
//	[[rules]]
//	name = "checkout errors"
//	cron = "*/5 * * * *"
//	target = "logs-checkout-*"
//	query = '{"query":{"match":{"level":"error"}}}'
//	[[rules.notifications]]
//	id = "ops-chat"
type rulesFile struct {
	Notifications []notificationEntry `koanf:"notifications"`
	Rules         []ruleEntry         `koanf:"rules"`
}

type notificationEntry struct {
	ID           string             `koanf:"id"`
	Type         string             `koanf:"type"`
	Variables    map[string]string  `koanf:"variables"`
	Email        *emailEntry        `koanf:"email"`
	Slack        *slackEntry        `koanf:"slack"`
	SMS          *smsEntry          `koanf:"sms"`
	Console      *consoleEntry      `koanf:"console"`
	Alertmanager *alertmanagerEntry `koanf:"alertmanager"`
}

type emailEntry struct {
	From        string   `koanf:"from"`
	To          []string `koanf:"to"`
	CC          []string `koanf:"cc"`
	BCC         []string `koanf:"bcc"`
	Subject     string   `koanf:"subject"`
	Body        string   `koanf:"body"`
	ContentType string   `koanf:"content_type"`
}

type slackEntry struct {
	WebhookURL string `koanf:"webhook_url"`
	Channel    string `koanf:"channel"`
	Username   string `koanf:"username"`
	Text       string `koanf:"text"`
}

type smsEntry struct {
	Provider   string   `koanf:"provider"`
	SenderID   string   `koanf:"sender_id"`
	Recipients []string `koanf:"recipients"`
	Body       string   `koanf:"body"`
}

type consoleEntry struct {
	Level   string `koanf:"level"`
	Message string `koanf:"message"`
}

type alertmanagerEntry struct {
	Labels       map[string]string `koanf:"labels"`
	Annotations  map[string]string `koanf:"annotations"`
	GeneratorURL string            `koanf:"generator_url"`
}

type ruleEntry struct {
	ID                   string            `koanf:"id"`
	Name                 string            `koanf:"name"`
	Enabled              *bool             `koanf:"enabled"`
	Cron                 string            `koanf:"cron"`
	Target               string            `koanf:"target"`
	Query                string            `koanf:"query"`
	StartImmediately     bool              `koanf:"start_immediately"`
	Notifications        []invocationEntry `koanf:"notifications"`
	FailureNotifications []invocationEntry `koanf:"failure_notifications"`
}

type invocationEntry struct {
	ID        string            `koanf:"id"`
	Variables map[string]string `koanf:"variables"`
}

// LoadRules reads the rules file at path into a validated configuration.
// Every problem in the file is reported, joined into one error.
func LoadRules(path string) (models.AlertConfiguration, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return models.AlertConfiguration{}, fmt.Errorf("failed to load rules file: %w", err)
	}
	var raw rulesFile
	if err := k.Unmarshal("", &raw); err != nil {
		return models.AlertConfiguration{}, fmt.Errorf("failed to decode rules file: %w", err)
	}
	cfg, err := raw.build()
	if err != nil {
		return models.AlertConfiguration{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return cfg, nil
}

func (f rulesFile) build() (models.AlertConfiguration, error) {
	var errs []error

	defs := make([]models.NotificationDefinition, 0, len(f.Notifications))
	for i, n := range f.Notifications {
		def, err := n.definition()
		if err != nil {
			errs = append(errs, fmt.Errorf("notifications[%d]: %w", i, err))
			continue
		}
		defs = append(defs, def)
	}
	registry, err := models.NewNotificationRegistry(defs...)
	if err != nil {
		errs = append(errs, err)
	}

	rules := make([]models.AlertRuleDefinition, 0, len(f.Rules))
	for i, r := range f.Rules {
		def, err := r.definition()
		if err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
			continue
		}
		rules = append(rules, def)
	}
	if len(errs) > 0 {
		return models.AlertConfiguration{}, errors.Join(errs...)
	}
	return models.NewAlertConfiguration(registry, rules...)
}

func (n notificationEntry) definition() (models.NotificationDefinition, error) {
	var cfg models.NotificationConfig
	missing := func() (models.NotificationDefinition, error) {
		return models.NotificationDefinition{}, fmt.Errorf("%w: notification %q: missing [%s] section",
			models.ErrInvalidConfiguration, n.ID, n.Type)
	}

	switch models.NotificationChannel(strings.ToLower(strings.TrimSpace(n.Type))) {
	case models.ChannelEmail:
		if n.Email == nil {
			return missing()
		}
		cfg = models.EmailConfig{
			From:        n.Email.From,
			To:          n.Email.To,
			CC:          n.Email.CC,
			BCC:         n.Email.BCC,
			Subject:     n.Email.Subject,
			Body:        n.Email.Body,
			ContentType: n.Email.ContentType,
		}
	case models.ChannelSlack:
		if n.Slack == nil {
			return missing()
		}
		cfg = models.SlackConfig{
			WebhookURL:    n.Slack.WebhookURL,
			TargetChannel: n.Slack.Channel,
			Username:      n.Slack.Username,
			Text:          n.Slack.Text,
		}
	case models.ChannelSMS:
		if n.SMS == nil {
			return missing()
		}
		cfg = models.SMSConfig{
			Provider:   n.SMS.Provider,
			SenderID:   n.SMS.SenderID,
			Recipients: n.SMS.Recipients,
			Body:       n.SMS.Body,
		}
	case models.ChannelConsole:
		if n.Console == nil {
			return missing()
		}
		cfg = models.ConsoleConfig{
			Level:   models.ConsoleLevel(strings.ToLower(n.Console.Level)),
			Message: n.Console.Message,
		}
	case models.ChannelAlertmanager:
		// An empty section is valid: the handler fills default labels.
		am := n.Alertmanager
		if am == nil {
			am = &alertmanagerEntry{}
		}
		cfg = models.AlertmanagerConfig{
			Labels:       am.Labels,
			Annotations:  am.Annotations,
			GeneratorURL: am.GeneratorURL,
		}
	default:
		return models.NotificationDefinition{}, fmt.Errorf("%w: notification %q: unknown type %q",
			models.ErrInvalidConfiguration, n.ID, n.Type)
	}
	return models.NewNotificationDefinition(n.ID, cfg, n.Variables)
}

func (r ruleEntry) definition() (models.AlertRuleDefinition, error) {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return models.NewAlertRuleDefinition(models.RuleDefinitionOptions{
		ID:                   r.ID,
		Name:                 r.Name,
		Enabled:              enabled,
		CronExpression:       r.Cron,
		Target:               r.Target,
		QueryJSON:            r.Query,
		Notifications:        invocations(r.Notifications),
		FailureNotifications: invocations(r.FailureNotifications),
		StartImmediately:     r.StartImmediately,
	})
}

func invocations(in []invocationEntry) []models.RuleNotificationInvocation {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.RuleNotificationInvocation, len(in))
	for i, inv := range in {
		out[i] = models.RuleNotificationInvocation{NotificationID: inv.ID, Variables: inv.Variables}
	}
	return out
}
