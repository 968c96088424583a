package metrics

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mr-karan/searchwatch/pkg/models"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	for _, status := range []models.ExecutionStatus{models.ExecutionSuccess, models.ExecutionSuccess, models.ExecutionFailure} {
		if err := r.RecordExecution(ctx, models.ExecutionRecord{RuleName: "api errors", Status: status, Duration: 250 * time.Millisecond}); err != nil {
			t.Fatalf("RecordExecution() error: %v", err)
		}
	}
	_ = r.RecordNotification(ctx, models.NotificationRecord{Channel: models.ChannelSlack})
	_ = r.RecordNotification(ctx, models.NotificationRecord{Channel: models.ChannelEmail, Error: "timeout"})
	r.SetActiveRules(4)

	if got := r.ExecutionCount("api errors", models.ExecutionSuccess); got != 2 {
		t.Errorf("success count = %d, want 2", got)
	}

	var buf bytes.Buffer
	r.WritePrometheus(&buf, false)
	out := buf.String()
	for _, want := range []string{
		`searchwatch_rule_executions_total{rule="api errors",status="FAILURE"} 1`,
		`searchwatch_notifications_total{channel="slack",status="success"} 1`,
		`searchwatch_notifications_total{channel="email",status="failure"} 1`,
		`searchwatch_active_rules 4`,
		`searchwatch_rule_execution_duration_seconds_bucket{rule="api errors"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "go_goroutines") {
		t.Error("process metrics written without includeProcess")
	}
}
