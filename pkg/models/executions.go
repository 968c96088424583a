package models

import "time"

// Document is a single search hit.
type Document map[string]any

// ExecutionStatus is the outcome of one rule execution.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailure ExecutionStatus = "FAILURE"
)

// FailurePhaseExecution marks failures raised while searching.
const FailurePhaseExecution = "EXECUTION"

// ExecutionRecord describes one rule execution.
type ExecutionRecord struct {
	ID           int64           `json:"id,omitempty"`
	RuleID       string          `json:"rule_id"`
	RuleName     string          `json:"rule_name"`
	Target       string          `json:"target"`
	Status       ExecutionStatus `json:"status"`
	MatchCount   int             `json:"match_count"`
	FailureCount int             `json:"failure_count"`
	ErrorType    string          `json:"error_type,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	TriggeredAt  time.Time       `json:"triggered_at"`
	Duration     time.Duration   `json:"duration"`
}

// NotificationKind tells whether a notification belongs to the success or failure list.
type NotificationKind string

const (
	NotificationOnMatch   NotificationKind = "match"
	NotificationOnFailure NotificationKind = "failure"
)

// NotificationRecord describes one notification attempt.
type NotificationRecord struct {
	RuleID         string              `json:"rule_id"`
	NotificationID string              `json:"notification_id"`
	Channel        NotificationChannel `json:"channel"`
	Kind           NotificationKind    `json:"kind"`
	Error          string              `json:"error,omitempty"`
	SentAt         time.Time           `json:"sent_at"`
}

// Succeeded reports whether the attempt delivered.
func (r NotificationRecord) Succeeded() bool {
	return r.Error == ""
}
