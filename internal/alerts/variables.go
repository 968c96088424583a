package alerts

import (
	"slices"

	"github.com/mr-karan/searchwatch/internal/template"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// Context variables supplied by the service when a notification is sent.
var (
	MatchVariables   = []string{"ruleName", "ruleId", "matchCount", "timestamp", "target", "status", "matchSample"}
	FailureVariables = []string{"ruleName", "ruleId", "timestamp", "target", "status", "failureCount", "errorType", "errorMessage", "failurePhase"}
)

// Templates returns every template string of a notification config.
func Templates(cfg models.NotificationConfig) []string {
	switch c := cfg.(type) {
	case models.EmailConfig:
		out := []string{c.Subject, c.Body}
		out = append(out, c.To...)
		out = append(out, c.CC...)
		return append(out, c.BCC...)
	case models.SlackConfig:
		return []string{c.Text, c.TargetChannel, c.Username}
	case models.SMSConfig:
		return append([]string{c.Body, c.SenderID}, c.Recipients...)
	case models.ConsoleConfig:
		return []string{c.Message}
	case models.AlertmanagerConfig:
		out := []string{c.GeneratorURL}
		for _, v := range c.Labels {
			out = append(out, v)
		}
		for _, v := range c.Annotations {
			out = append(out, v)
		}
		return out
	default:
		return nil
	}
}

// UnresolvedPlaceholders lists the placeholders of def that neither the
// invocation, the definition nor the context of kind provides. They are
// rendered literally at send time.
func UnresolvedPlaceholders(def models.NotificationDefinition, inv models.RuleNotificationInvocation, kind models.NotificationKind) []string {
	available := MatchVariables
	if kind == models.NotificationOnFailure {
		available = FailureVariables
	}

	var out []string
	for _, tmpl := range Templates(def.Config) {
		for _, name := range template.ExtractVariableNames(tmpl) {
			if _, ok := inv.Variables[name]; ok {
				continue
			}
			if _, ok := def.Variables[name]; ok {
				continue
			}
			if slices.Contains(available, name) || slices.Contains(out, name) {
				continue
			}
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
