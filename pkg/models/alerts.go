package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/mr-karan/searchwatch/pkg/cron"
)

var (
	// ErrInvalidConfiguration is wrapped by every configuration validation failure.
	ErrInvalidConfiguration = errors.New("invalid alert configuration")
	// ErrNotificationNotFound indicates a rule references an undefined notification id.
	ErrNotificationNotFound = fmt.Errorf("%w: notification not found", ErrInvalidConfiguration)
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// RuleNotificationInvocation references a notification definition with per-rule overrides.
type RuleNotificationInvocation struct {
	NotificationID string            `json:"notification_id"`
	Variables      map[string]string `json:"variables,omitempty"`
}

func cloneInvocations(in []RuleNotificationInvocation) []RuleNotificationInvocation {
	if len(in) == 0 {
		return nil
	}
	out := make([]RuleNotificationInvocation, len(in))
	for i, inv := range in {
		out[i] = RuleNotificationInvocation{
			NotificationID: strings.TrimSpace(inv.NotificationID),
			Variables:      maps.Clone(inv.Variables),
		}
	}
	return out
}

// AlertRuleDefinition is an author supplied rule. Build it with NewAlertRuleDefinition.
type AlertRuleDefinition struct {
	ID                   string                       `json:"id,omitempty"`
	Name                 string                       `json:"name"`
	Enabled              bool                         `json:"enabled"`
	CronExpression       string                       `json:"cron_expression"`
	Target               string                       `json:"target"`
	QueryJSON            string                       `json:"query"`
	Notifications        []RuleNotificationInvocation `json:"notifications,omitempty"`
	FailureNotifications []RuleNotificationInvocation `json:"failure_notifications,omitempty"`
	StartImmediately     bool                         `json:"start_immediately"`
}

// RuleDefinitionOptions carries the author supplied fields of a rule.
type RuleDefinitionOptions struct {
	ID                   string
	Name                 string
	Enabled              bool
	CronExpression       string
	Target               string
	QueryJSON            string
	Notifications        []RuleNotificationInvocation
	FailureNotifications []RuleNotificationInvocation
	StartImmediately     bool
}

// NewAlertRuleDefinition normalizes and validates a rule definition.
// The returned value holds its own copies of the invocation slices.
func NewAlertRuleDefinition(def RuleDefinitionOptions) (AlertRuleDefinition, error) {
	out := AlertRuleDefinition{
		ID:                   strings.TrimSpace(def.ID),
		Name:                 strings.TrimSpace(def.Name),
		Enabled:              def.Enabled,
		CronExpression:       strings.Join(strings.Fields(def.CronExpression), " "),
		Target:               strings.TrimSpace(def.Target),
		QueryJSON:            strings.TrimSpace(def.QueryJSON),
		Notifications:        cloneInvocations(def.Notifications),
		FailureNotifications: cloneInvocations(def.FailureNotifications),
		StartImmediately:     def.StartImmediately,
	}
	if err := out.Validate(); err != nil {
		return AlertRuleDefinition{}, err
	}
	return out, nil
}

// Validate checks the fields that must hold for every definition.
func (d AlertRuleDefinition) Validate() error {
	label := d.Name
	if label == "" {
		label = d.ID
	}
	if strings.TrimSpace(d.Name) == "" {
		return configError("rule %q: name is required", label)
	}
	if strings.TrimSpace(d.CronExpression) == "" {
		return configError("rule %q: cron expression is required", label)
	}
	if _, err := cron.Parse(d.CronExpression); err != nil {
		return fmt.Errorf("%w: rule %q: %w", ErrInvalidConfiguration, label, err)
	}
	if strings.TrimSpace(d.Target) == "" {
		return configError("rule %q: target is required", label)
	}
	query := strings.TrimSpace(d.QueryJSON)
	if query == "" {
		return configError("rule %q: query is required", label)
	}
	if strings.HasPrefix(query, "{") || strings.HasPrefix(query, "[") {
		if !json.Valid([]byte(query)) {
			return configError("rule %q: query is not valid JSON", label)
		}
	}
	for _, inv := range d.Notifications {
		if strings.TrimSpace(inv.NotificationID) == "" {
			return configError("rule %q: notification id is required", label)
		}
	}
	for _, inv := range d.FailureNotifications {
		if strings.TrimSpace(inv.NotificationID) == "" {
			return configError("rule %q: failure notification id is required", label)
		}
	}
	return nil
}

// NotificationIDs returns every notification id the definition references, success first.
func (d AlertRuleDefinition) NotificationIDs() []string {
	ids := make([]string, 0, len(d.Notifications)+len(d.FailureNotifications))
	for _, inv := range d.Notifications {
		ids = append(ids, inv.NotificationID)
	}
	for _, inv := range d.FailureNotifications {
		ids = append(ids, inv.NotificationID)
	}
	return ids
}

// AlertRule is the runtime state of an active rule.
type AlertRule struct {
	ID                   string                       `json:"id"`
	Name                 string                       `json:"name"`
	Enabled              bool                         `json:"enabled"`
	CronExpression       string                       `json:"cron_expression"`
	Target               string                       `json:"target"`
	QueryJSON            string                       `json:"query"`
	Notifications        []RuleNotificationInvocation `json:"notifications,omitempty"`
	FailureNotifications []RuleNotificationInvocation `json:"failure_notifications,omitempty"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
	LastRun              *time.Time                   `json:"last_run,omitempty"`
	NextRun              *time.Time                   `json:"next_run,omitempty"`
	FailureCount         int                          `json:"failure_count"`
	LastFailureMessage   *string                      `json:"last_failure_message,omitempty"`
	LastFailureType      string                       `json:"last_failure_type,omitempty"`
	LastMatchCount       int                          `json:"last_match_count"`
}

// executionFingerprint lists the fields that decide how a rule is scheduled and executed.
type executionFingerprint struct {
	CronExpression       string
	Target               string
	QueryJSON            string
	Enabled              bool
	Notifications        []RuleNotificationInvocation
	FailureNotifications []RuleNotificationInvocation
}

// ExecutionHash fingerprints the schedule relevant fields. Invocation order matters;
// history and bookkeeping fields do not participate.
func (r AlertRule) ExecutionHash() uint64 {
	h, err := hashstructure.Hash(executionFingerprint{
		CronExpression:       r.CronExpression,
		Target:               r.Target,
		QueryJSON:            r.QueryJSON,
		Enabled:              r.Enabled,
		Notifications:        r.Notifications,
		FailureNotifications: r.FailureNotifications,
	}, hashstructure.FormatV2, nil)
	if err != nil {
		// Only unsupported kinds (funcs, channels) can fail and the fingerprint has none.
		panic(fmt.Sprintf("models: hashing execution fingerprint: %v", err))
	}
	return h
}

// Clone returns a copy that shares no mutable state with r.
func (r AlertRule) Clone() AlertRule {
	out := r
	out.Notifications = cloneInvocations(r.Notifications)
	out.FailureNotifications = cloneInvocations(r.FailureNotifications)
	if r.LastRun != nil {
		v := *r.LastRun
		out.LastRun = &v
	}
	if r.NextRun != nil {
		v := *r.NextRun
		out.NextRun = &v
	}
	if r.LastFailureMessage != nil {
		v := *r.LastFailureMessage
		out.LastFailureMessage = &v
	}
	return out
}

// AlertConfiguration is the complete input to the alert service.
type AlertConfiguration struct {
	Notifications *NotificationRegistry `json:"-"`
	Rules         []AlertRuleDefinition `json:"rules"`
}

// NewAlertConfiguration validates rules against the registry.
func NewAlertConfiguration(registry *NotificationRegistry, rules ...AlertRuleDefinition) (AlertConfiguration, error) {
	cfg := AlertConfiguration{Notifications: registry, Rules: append([]AlertRuleDefinition(nil), rules...)}
	if err := cfg.Validate(); err != nil {
		return AlertConfiguration{}, err
	}
	return cfg, nil
}

// Validate checks every rule and every notification reference. All problems are joined.
func (c AlertConfiguration) Validate() error {
	var errs []error
	for _, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, id := range rule.NotificationIDs() {
			if _, err := c.Notifications.Require(id); err != nil {
				errs = append(errs, fmt.Errorf("rule %q: %w", rule.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
