// Package metrics exposes rule execution and notification counters in the
// Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"

	"github.com/mr-karan/searchwatch/pkg/models"
)

const (
	executionsTotal    = "searchwatch_rule_executions_total"
	executionDuration  = "searchwatch_rule_execution_duration_seconds"
	notificationsTotal = "searchwatch_notifications_total"
	activeRules        = "searchwatch_active_rules"
)

// Recorder counts executions and notification attempts. It never fails, so it
// is safe to combine with storage recorders.
type Recorder struct {
	set    *metrics.Set
	active atomic.Int64
}

func NewRecorder() *Recorder {
	r := &Recorder{set: metrics.NewSet()}
	r.set.NewGauge(activeRules, func() float64 {
		return float64(r.active.Load())
	})
	return r
}

func (r *Recorder) RecordExecution(_ context.Context, rec models.ExecutionRecord) error {
	r.set.GetOrCreateCounter(fmt.Sprintf(`%s{rule=%q,status=%q}`, executionsTotal, rec.RuleName, string(rec.Status))).Inc()
	r.set.GetOrCreateHistogram(fmt.Sprintf(`%s{rule=%q}`, executionDuration, rec.RuleName)).Update(rec.Duration.Seconds())
	return nil
}

func (r *Recorder) RecordNotification(_ context.Context, rec models.NotificationRecord) error {
	status := "success"
	if !rec.Succeeded() {
		status = "failure"
	}
	r.set.GetOrCreateCounter(fmt.Sprintf(`%s{channel=%q,status=%q}`, notificationsTotal, string(rec.Channel), status)).Inc()
	return nil
}

// SetActiveRules records the number of running execution loops.
func (r *Recorder) SetActiveRules(n int) {
	r.active.Store(int64(n))
}

// WritePrometheus writes the recorder's metrics, plus Go runtime and process
// metrics when includeProcess is set.
func (r *Recorder) WritePrometheus(w io.Writer, includeProcess bool) {
	r.set.WritePrometheus(w)
	if includeProcess {
		metrics.WriteProcessMetrics(w)
	}
}

// ExecutionCount returns the executions counted for rule with status.
func (r *Recorder) ExecutionCount(rule string, status models.ExecutionStatus) uint64 {
	return r.set.GetOrCreateCounter(fmt.Sprintf(`%s{rule=%q,status=%q}`, executionsTotal, rule, string(status))).Get()
}
