package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/mr-karan/searchwatch/pkg/models"
)

const sampleRules = `
[[notifications]]
id = "chat"
type = "slack"
[notifications.variables]
team = "payments"
[notifications.slack]
webhook_url = "https://hooks.example.com/services/x"
text = "{{ruleName}} matched {{matchCount}} ({{team}})"

[[notifications]]
id = "log"
type = "console"
[notifications.console]
level = "WARN"
message = "{{ruleName}} failed: {{errorMessage}}"

[[notifications]]
id = "am"
type = "alertmanager"

[[rules]]
id = "checkout"
name = "checkout errors"
cron = "*/5 * * * *"
target = "logs-checkout-*"
query = '{"query":{"match":{"level":"error"}}}'
start_immediately = true
[[rules.notifications]]
id = "chat"
[rules.notifications.variables]
team = "checkout"
[[rules.failure_notifications]]
id = "log"

[[rules]]
name = "nightly audit"
enabled = false
cron = "0 3 * * *"
target = "audit"
query = "level:error"
[[rules.notifications]]
id = "am"
`

func TestLoadRules(t *testing.T) {
	cfg, err := LoadRules(writeFile(t, "rules.toml", sampleRules))
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}
	if got := cfg.Notifications.IDs(); len(got) != 3 {
		t.Fatalf("notification ids = %v", got)
	}
	chat, _ := cfg.Notifications.Get("chat")
	slack, ok := chat.Config.(models.SlackConfig)
	if !ok || slack.WebhookURL != "https://hooks.example.com/services/x" || chat.Variables["team"] != "payments" {
		t.Errorf("chat = %+v", chat)
	}
	logDef, _ := cfg.Notifications.Get("log")
	if c := logDef.Config.(models.ConsoleConfig); c.Level != models.ConsoleWarn {
		t.Errorf("console level = %q", c.Level)
	}

	if len(cfg.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(cfg.Rules))
	}
	first := cfg.Rules[0]
	if first.ID != "checkout" || !first.Enabled || !first.StartImmediately || first.CronExpression != "*/5 * * * *" {
		t.Errorf("first rule = %+v", first)
	}
	if len(first.Notifications) != 1 || first.Notifications[0].Variables["team"] != "checkout" {
		t.Errorf("notifications = %+v", first.Notifications)
	}
	if len(first.FailureNotifications) != 1 || first.FailureNotifications[0].NotificationID != "log" {
		t.Errorf("failure notifications = %+v", first.FailureNotifications)
	}
	if second := cfg.Rules[1]; second.Enabled || second.ID != "" {
		t.Errorf("second rule = %+v", second)
	}
}

func TestLoadRulesErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name: "unknown type",
			content: `
[[notifications]]
id = "x"
type = "pigeon"
`,
			want: []string{`unknown type "pigeon"`},
		},
		{
			name: "missing section",
			content: `
[[notifications]]
id = "x"
type = "email"
`,
			want: []string{"missing [email] section"},
		},
		{
			name: "every bad rule is reported",
			content: `
[[rules]]
name = "a"
cron = "61 * * * *"
target = "t"
query = "q"

[[rules]]
name = "b"
cron = "* * * * *"
target = ""
query = "q"
`,
			want: []string{"rules[0]", "rules[1]", "target is required"},
		},
		{
			name: "undefined notification",
			content: `
[[rules]]
name = "a"
cron = "* * * * *"
target = "t"
query = "q"
[[rules.notifications]]
id = "nowhere"
`,
			want: []string{"nowhere"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRules(writeFile(t, "rules.toml", tt.content))
			if err == nil {
				t.Fatal("LoadRules() succeeded")
			}
			if !errors.Is(err, models.ErrInvalidConfiguration) {
				t.Errorf("error %v does not wrap ErrInvalidConfiguration", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules("/nonexistent/rules.toml"); err == nil {
		t.Error("LoadRules() succeeded for a missing file")
	}
}
