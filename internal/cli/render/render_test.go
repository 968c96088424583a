package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRenderer_Rules(t *testing.T) {
	next := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	rows := []RuleRow{
		{Name: "checkout errors", Enabled: true, Cron: "*/5 * * * *", Target: "logs", NextRun: &next, Notifications: []string{"chat"}, Unresolved: []string{"chat:runbook"}},
		{Name: "audit", Enabled: false, Cron: "0 3 * * *", Target: "audit"},
	}

	r, err := New(Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var buf bytes.Buffer
	if err := r.Rules(&buf, rows); err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"checkout errors", "2024-03-01 12:05 UTC", "chat:runbook", "audit", "no"} {
		if !strings.Contains(out, want) {
			t.Errorf("Rules() output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderer_RulesJSON(t *testing.T) {
	r, err := New(Options{Format: "json"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var buf bytes.Buffer
	if err := r.Rules(&buf, []RuleRow{{Name: "a", Enabled: true}}); err != nil {
		t.Fatalf("Rules() error = %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Rules() produced invalid JSON: %v", err)
	}
	if count, ok := parsed["count"].(float64); !ok || count != 1 {
		t.Errorf("count = %v, want 1", parsed["count"])
	}
}

func TestRenderer_NextRuns(t *testing.T) {
	r, _ := New(Options{Location: time.UTC})
	var buf bytes.Buffer
	times := []time.Time{
		time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
	}
	if err := r.NextRuns(&buf, "0 9 * * 1-5", times); err != nil {
		t.Fatalf("NextRuns() error = %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "Mon 2024-03-04 09:00 UTC") || !strings.Contains(out, "Tue 2024-03-05") {
		t.Errorf("NextRuns() output:\n%s", out)
	}
}

func TestRenderer_Problems(t *testing.T) {
	r, _ := New(Options{})
	var buf bytes.Buffer
	r.Problems(&buf, errors.Join(errors.New("rule a: bad cron"), errors.New("rule b: no target")))
	if got := strings.Count(buf.String(), "✗"); got != 2 {
		t.Errorf("Problems() wrote %d lines:\n%s", got, buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "csv"}); err == nil {
		t.Error("New() accepted csv")
	}
}
