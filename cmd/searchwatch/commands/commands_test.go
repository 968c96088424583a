package commands

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mr-karan/searchwatch/internal/alerts"
	"github.com/mr-karan/searchwatch/internal/config"
	"github.com/mr-karan/searchwatch/pkg/models"
)

func TestNextRuns(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC) // Friday
	tests := []struct {
		name     string
		expr     string
		dayMatch string
		count    int
		want     []string
		wantErr  bool
	}{
		{
			name:  "weekday mornings",
			expr:  "0 9 * * 1-5",
			count: 2,
			want:  []string{"2024-03-04T09:00:00Z", "2024-03-05T09:00:00Z"},
		},
		{
			name:     "friday the 13th",
			expr:     "0 0 13 * 5",
			dayMatch: "intersect",
			count:    1,
			want:     []string{"2024-09-13T00:00:00Z"},
		},
		{
			name:  "count floor",
			expr:  "* * * * *",
			count: 0,
			want:  []string{"2024-03-01T12:01:00Z"},
		},
		{name: "bad expression", expr: "61 * * * *", count: 1, wantErr: true},
		{name: "bad day match", expr: "* * * * *", dayMatch: "xor", count: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextRuns(tt.expr, tt.dayMatch, tt.count, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("nextRuns() succeeded")
				}
				return
			}
			if err != nil {
				t.Fatalf("nextRuns() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("nextRuns() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if s := got[i].Format(time.RFC3339); s != tt.want[i] {
					t.Errorf("nextRuns()[%d] = %s, want %s", i, s, tt.want[i])
				}
			}
		})
	}
}

func mustConfig(t *testing.T, notifications []models.NotificationDefinition, rules ...models.AlertRuleDefinition) models.AlertConfiguration {
	t.Helper()
	reg, err := models.NewNotificationRegistry(notifications...)
	if err != nil {
		t.Fatalf("NewNotificationRegistry() error: %v", err)
	}
	cfg, err := models.NewAlertConfiguration(reg, rules...)
	if err != nil {
		t.Fatalf("NewAlertConfiguration() error: %v", err)
	}
	return cfg
}

func TestValidateRules(t *testing.T) {
	console, _ := models.NewNotificationDefinition("log", models.ConsoleConfig{Message: "{{ruleName}} {{runbook}}"}, nil)
	mail, _ := models.NewNotificationDefinition("mail", models.EmailConfig{
		From: "alerts@example.com", To: []string{"ops@example.com"}, Subject: "{{ruleName}}",
	}, nil)
	rule, err := models.NewAlertRuleDefinition(models.RuleDefinitionOptions{
		Name:                 "errors",
		Enabled:              true,
		CronExpression:       "*/5 * * * *",
		Target:               "logs",
		QueryJSON:            "level:error",
		Notifications:        []models.RuleNotificationInvocation{{NotificationID: "log"}},
		FailureNotifications: []models.RuleNotificationInvocation{{NotificationID: "mail"}},
	})
	if err != nil {
		t.Fatalf("NewAlertRuleDefinition() error: %v", err)
	}
	now := time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)

	cfg := config.Default()
	rows, problems := validateRules(cfg, mustConfig(t, []models.NotificationDefinition{console, mail}, rule), now)
	if !errors.Is(problems, alerts.ErrNoHandler) {
		t.Errorf("problems = %v, want ErrNoHandler for email without smtp", problems)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
	row := rows[0]
	if row.NextRun == nil || !row.NextRun.Equal(time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)) {
		t.Errorf("NextRun = %v", row.NextRun)
	}
	if len(row.Unresolved) != 1 || row.Unresolved[0] != "log:runbook" {
		t.Errorf("Unresolved = %v", row.Unresolved)
	}
	if strings.Join(row.Notifications, ",") != "log,mail" {
		t.Errorf("Notifications = %v", row.Notifications)
	}

	cfg.SMTP.Host = "smtp.example.com"
	if _, problems := validateRules(cfg, mustConfig(t, []models.NotificationDefinition{console, mail}, rule), now); problems != nil {
		t.Errorf("problems with smtp configured = %v", problems)
	}
}

func TestWriteStarter(t *testing.T) {
	for _, channel := range []string{"console", "slack"} {
		t.Run(channel, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.toml")
			s := starter{
				Name:       "checkout \"errors\"",
				Cron:       "*/5 * * * *",
				Target:     "logs-checkout",
				Query:      `{"query":{"match":{"level":"error"}}}`,
				Channel:    channel,
				WebhookURL: "https://hooks.example.com/services/x",
			}
			if err := writeStarter(path, s); err != nil {
				t.Fatalf("writeStarter() error: %v", err)
			}
			cfg, err := config.LoadRules(path)
			if err != nil {
				t.Fatalf("LoadRules() error: %v", err)
			}
			if len(cfg.Rules) != 1 || cfg.Rules[0].Name != `checkout "errors"` || cfg.Rules[0].QueryJSON != s.Query {
				t.Errorf("rules = %+v", cfg.Rules)
			}
			def, ok := cfg.Notifications.Get("matches")
			if !ok || string(def.Channel()) != channel {
				t.Errorf("matches notification = %+v", def)
			}
			if _, err := os.Stat(path); err != nil {
				t.Error(err)
			}
		})
	}
}
