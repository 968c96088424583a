package models

import (
	"fmt"
	"maps"
	"net/mail"
	"net/url"
	"slices"
	"strings"
)

// NotificationChannel identifies a delivery mechanism. The set is open; callers
// may register handlers for channels beyond the built-in ones.
type NotificationChannel string

const (
	ChannelEmail        NotificationChannel = "email"
	ChannelSlack        NotificationChannel = "slack"
	ChannelSMS          NotificationChannel = "sms"
	ChannelConsole      NotificationChannel = "console"
	ChannelAlertmanager NotificationChannel = "alertmanager"
)

// NotificationConfig is the channel specific payload of a notification definition.
type NotificationConfig interface {
	Channel() NotificationChannel
	Validate() error
}

// EmailConfig renders into an email message. Subject and Body are templates.
type EmailConfig struct {
	From        string   `json:"from"`
	To          []string `json:"to"`
	CC          []string `json:"cc,omitempty"`
	BCC         []string `json:"bcc,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	ContentType string   `json:"content_type,omitempty"`
}

// DefaultEmailContentType is used when EmailConfig.ContentType is empty.
const DefaultEmailContentType = "text/plain; charset=UTF-8"

func (EmailConfig) Channel() NotificationChannel { return ChannelEmail }

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.From) == "" {
		return configError("email: from is required")
	}
	if _, err := mail.ParseAddress(c.From); err != nil {
		return configError("email: invalid from address %q", c.From)
	}
	if len(c.To)+len(c.CC)+len(c.BCC) == 0 {
		return configError("email: at least one recipient is required")
	}
	for _, list := range [][]string{c.To, c.CC, c.BCC} {
		for _, addr := range list {
			if _, err := mail.ParseAddress(addr); err != nil {
				return configError("email: invalid recipient %q", addr)
			}
		}
	}
	if strings.TrimSpace(c.Subject) == "" && strings.TrimSpace(c.Body) == "" {
		return configError("email: subject or body is required")
	}
	return nil
}

// SlackConfig posts Text to an incoming webhook.
type SlackConfig struct {
	WebhookURL    string `json:"webhook_url"`
	TargetChannel string `json:"channel,omitempty"`
	Username      string `json:"username,omitempty"`
	Text          string `json:"text"`
}

func (SlackConfig) Channel() NotificationChannel { return ChannelSlack }

func (c SlackConfig) Validate() error {
	if err := validateHTTPURL("slack: webhook url", c.WebhookURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.Text) == "" {
		return configError("slack: text is required")
	}
	return nil
}

// SMSConfig sends Body to every recipient through a named provider.
type SMSConfig struct {
	Provider   string   `json:"provider"`
	SenderID   string   `json:"sender_id,omitempty"`
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
}

func (SMSConfig) Channel() NotificationChannel { return ChannelSMS }

func (c SMSConfig) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return configError("sms: provider is required")
	}
	if len(c.Recipients) == 0 {
		return configError("sms: at least one recipient is required")
	}
	for _, r := range c.Recipients {
		if strings.TrimSpace(r) == "" {
			return configError("sms: blank recipient")
		}
	}
	if strings.TrimSpace(c.Body) == "" {
		return configError("sms: body is required")
	}
	return nil
}

// ConsoleLevel is the log level a console notification is written at.
type ConsoleLevel string

const (
	ConsoleDebug ConsoleLevel = "debug"
	ConsoleInfo  ConsoleLevel = "info"
	ConsoleWarn  ConsoleLevel = "warn"
	ConsoleError ConsoleLevel = "error"
)

// ConsoleConfig writes Message to the service log.
type ConsoleConfig struct {
	Level   ConsoleLevel `json:"level,omitempty"`
	Message string       `json:"message"`
}

func (ConsoleConfig) Channel() NotificationChannel { return ChannelConsole }

func (c ConsoleConfig) Validate() error {
	switch c.Level {
	case "", ConsoleDebug, ConsoleInfo, ConsoleWarn, ConsoleError:
	default:
		return configError("console: unknown level %q", c.Level)
	}
	if strings.TrimSpace(c.Message) == "" {
		return configError("console: message is required")
	}
	return nil
}

// AlertmanagerConfig forwards the alert to Alertmanager. Label and annotation
// values are templates.
type AlertmanagerConfig struct {
	Labels       map[string]string `json:"labels,omitempty"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	GeneratorURL string            `json:"generator_url,omitempty"`
}

func (AlertmanagerConfig) Channel() NotificationChannel { return ChannelAlertmanager }

func (c AlertmanagerConfig) Validate() error {
	for k := range c.Labels {
		if strings.TrimSpace(k) == "" {
			return configError("alertmanager: blank label name")
		}
	}
	if c.GeneratorURL != "" {
		if err := validateHTTPURL("alertmanager: generator url", c.GeneratorURL); err != nil {
			return err
		}
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return configError("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configError("%s %q must be an absolute http(s) URL", field, raw)
	}
	return nil
}

// NotificationDefinition is a named, reusable notification.
type NotificationDefinition struct {
	ID        string             `json:"id"`
	Config    NotificationConfig `json:"config"`
	Variables map[string]string  `json:"variables,omitempty"`
}

// NewNotificationDefinition validates id and config and copies vars.
func NewNotificationDefinition(id string, cfg NotificationConfig, vars map[string]string) (NotificationDefinition, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return NotificationDefinition{}, configError("notification id is required")
	}
	if cfg == nil {
		return NotificationDefinition{}, configError("notification %q: config is required", id)
	}
	if err := cfg.Validate(); err != nil {
		return NotificationDefinition{}, fmt.Errorf("notification %q: %w", id, err)
	}
	return NotificationDefinition{ID: id, Config: cfg, Variables: maps.Clone(vars)}, nil
}

// Channel returns the channel of the definition's config.
func (d NotificationDefinition) Channel() NotificationChannel {
	if d.Config == nil {
		return ""
	}
	return d.Config.Channel()
}

// NotificationRegistry maps ids to definitions. It is read-only once built.
type NotificationRegistry struct {
	defs  map[string]NotificationDefinition
	order []string
}

// NewNotificationRegistry builds a registry, rejecting blank and duplicate ids.
func NewNotificationRegistry(defs ...NotificationDefinition) (*NotificationRegistry, error) {
	r := &NotificationRegistry{defs: make(map[string]NotificationDefinition, len(defs))}
	for _, d := range defs {
		if strings.TrimSpace(d.ID) == "" {
			return nil, configError("notification id is required")
		}
		if d.Config == nil {
			return nil, configError("notification %q: config is required", d.ID)
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, configError("duplicate notification id %q", d.ID)
		}
		r.defs[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Require returns the definition for id or an error wrapping ErrNotificationNotFound.
func (r *NotificationRegistry) Require(id string) (NotificationDefinition, error) {
	d, ok := r.Get(id)
	if !ok {
		return NotificationDefinition{}, fmt.Errorf("%w: %q", ErrNotificationNotFound, id)
	}
	return d, nil
}

// Get looks up id.
func (r *NotificationRegistry) Get(id string) (NotificationDefinition, bool) {
	if r == nil {
		return NotificationDefinition{}, false
	}
	d, ok := r.defs[id]
	return d, ok
}

// IDs returns the ids in registration order.
func (r *NotificationRegistry) IDs() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.order)
}

// Len returns the number of definitions.
func (r *NotificationRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
