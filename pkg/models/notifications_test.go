package models

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestNotificationConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         NotificationConfig
		channel     NotificationChannel
		errContains string
	}{
		{
			name:    "email ok",
			cfg:     EmailConfig{From: "a@example.com", To: []string{"b@example.com"}, Subject: "s"},
			channel: ChannelEmail,
		},
		{
			name:        "email no recipients",
			cfg:         EmailConfig{From: "a@example.com", Subject: "s"},
			channel:     ChannelEmail,
			errContains: "recipient",
		},
		{
			name:        "email bad from",
			cfg:         EmailConfig{From: "not an address", To: []string{"b@example.com"}, Body: "b"},
			channel:     ChannelEmail,
			errContains: "invalid from",
		},
		{
			name:        "email bcc only with bad address",
			cfg:         EmailConfig{From: "a@example.com", BCC: []string{"nope"}, Body: "b"},
			channel:     ChannelEmail,
			errContains: "invalid recipient",
		},
		{
			name:    "slack ok",
			cfg:     SlackConfig{WebhookURL: "https://hooks.slack.com/services/x", Text: "hi"},
			channel: ChannelSlack,
		},
		{
			name:        "slack relative url",
			cfg:         SlackConfig{WebhookURL: "/hooks", Text: "hi"},
			channel:     ChannelSlack,
			errContains: "absolute",
		},
		{
			name:        "slack no text",
			cfg:         SlackConfig{WebhookURL: "https://hooks.slack.com/services/x"},
			channel:     ChannelSlack,
			errContains: "text is required",
		},
		{
			name:    "sms ok",
			cfg:     SMSConfig{Provider: "twilio", Recipients: []string{"+15550100"}, Body: "b"},
			channel: ChannelSMS,
		},
		{
			name:        "sms no provider",
			cfg:         SMSConfig{Recipients: []string{"+15550100"}, Body: "b"},
			channel:     ChannelSMS,
			errContains: "provider is required",
		},
		{
			name:    "console default level",
			cfg:     ConsoleConfig{Message: "m"},
			channel: ChannelConsole,
		},
		{
			name:        "console bad level",
			cfg:         ConsoleConfig{Level: "loud", Message: "m"},
			channel:     ChannelConsole,
			errContains: "unknown level",
		},
		{
			name:    "alertmanager ok",
			cfg:     AlertmanagerConfig{Labels: map[string]string{"severity": "page"}},
			channel: ChannelAlertmanager,
		},
		{
			name:        "alertmanager bad generator",
			cfg:         AlertmanagerConfig{GeneratorURL: "ftp://x"},
			channel:     ChannelAlertmanager,
			errContains: "generator url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Channel(); got != tt.channel {
				t.Errorf("Channel() = %q, want %q", got, tt.channel)
			}
			err := tt.cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("Validate() error = %v, want it to contain %q", err, tt.errContains)
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("error %v does not wrap ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestNewNotificationDefinition(t *testing.T) {
	vars := map[string]string{"team": "core"}
	def, err := NewNotificationDefinition(" console ", ConsoleConfig{Message: "{{ruleName}}"}, vars)
	if err != nil {
		t.Fatalf("NewNotificationDefinition() error: %v", err)
	}
	if def.ID != "console" {
		t.Errorf("ID = %q, want trimmed", def.ID)
	}
	if def.Channel() != ChannelConsole {
		t.Errorf("Channel() = %q", def.Channel())
	}
	vars["team"] = "changed"
	if def.Variables["team"] != "core" {
		t.Error("definition shares its variables map with the caller")
	}

	if _, err := NewNotificationDefinition("", ConsoleConfig{Message: "m"}, nil); err == nil {
		t.Error("expected error for blank id")
	}
	if _, err := NewNotificationDefinition("x", nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewNotificationDefinition("x", ConsoleConfig{}, nil); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestNotificationRegistry(t *testing.T) {
	a := NotificationDefinition{ID: "a", Config: ConsoleConfig{Message: "a"}}
	b := NotificationDefinition{ID: "b", Config: ConsoleConfig{Message: "b"}}

	reg, err := NewNotificationRegistry(b, a)
	if err != nil {
		t.Fatalf("NewNotificationRegistry() error: %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
	if ids := reg.IDs(); !slices.Equal(ids, []string{"b", "a"}) {
		t.Errorf("IDs() = %v, want registration order", ids)
	}
	got, err := reg.Require("a")
	if err != nil || got.ID != "a" {
		t.Errorf("Require(a) = %+v, %v", got, err)
	}
	if _, err := reg.Require("zzz"); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("Require(zzz) error = %v, want ErrNotificationNotFound", err)
	}

	if _, err := NewNotificationRegistry(a, a); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("duplicate ids error = %v", err)
	}
	if _, err := NewNotificationRegistry(NotificationDefinition{Config: ConsoleConfig{Message: "m"}}); err == nil {
		t.Error("expected error for blank id")
	}

	var empty *NotificationRegistry
	if _, err := empty.Require("a"); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("nil registry Require error = %v", err)
	}
	if empty.Len() != 0 || empty.IDs() != nil {
		t.Error("nil registry should be empty")
	}
}
