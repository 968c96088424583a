package alerts

import (
	"reflect"
	"testing"

	"github.com/mr-karan/searchwatch/pkg/models"
)

func TestUnresolvedPlaceholders(t *testing.T) {
	def := models.NotificationDefinition{
		ID: "chat",
		Config: models.SlackConfig{
			WebhookURL: "https://hooks.example.com/x",
			Text:       "{{ruleName}} {{matchCount}} {{errorMessage}} {{team}} {{owner}} {{runbook}}",
		},
		Variables: map[string]string{"team": "payments"},
	}
	inv := models.RuleNotificationInvocation{NotificationID: "chat", Variables: map[string]string{"owner": "ana"}}

	tests := []struct {
		kind models.NotificationKind
		want []string
	}{
		{models.NotificationOnMatch, []string{"errorMessage", "runbook"}},
		{models.NotificationOnFailure, []string{"matchCount", "runbook"}},
	}
	for _, tt := range tests {
		if got := UnresolvedPlaceholders(def, inv, tt.kind); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("UnresolvedPlaceholders(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestTemplatesCoversEveryChannel(t *testing.T) {
	configs := []models.NotificationConfig{
		models.EmailConfig{Subject: "s", Body: "b", To: []string{"{{to}}"}},
		models.SlackConfig{Text: "t"},
		models.SMSConfig{Body: "b", Recipients: []string{"r"}},
		models.ConsoleConfig{Message: "m"},
		models.AlertmanagerConfig{Labels: map[string]string{"a": "{{x}}"}},
	}
	for _, cfg := range configs {
		if len(Templates(cfg)) == 0 {
			t.Errorf("Templates(%T) returned nothing", cfg)
		}
	}
}
