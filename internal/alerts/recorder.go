package alerts

import (
	"context"
	"errors"

	"github.com/mr-karan/searchwatch/pkg/models"
)

// ExecutionRecorder observes executions and notification attempts.
// Errors are logged by the service and never affect scheduling.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, rec models.ExecutionRecord) error
	RecordNotification(ctx context.Context, rec models.NotificationRecord) error
}

// ActiveRulesObserver is implemented by recorders that track the number of running loops.
type ActiveRulesObserver interface {
	SetActiveRules(n int)
}

// MultiRecorder fans records out to several recorders.
type MultiRecorder struct {
	recorders []ExecutionRecorder
}

func NewMultiRecorder(recorders ...ExecutionRecorder) *MultiRecorder {
	filtered := make([]ExecutionRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r == nil {
			continue
		}
		filtered = append(filtered, r)
	}
	return &MultiRecorder{recorders: filtered}
}

func (m *MultiRecorder) RecordExecution(ctx context.Context, rec models.ExecutionRecord) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.RecordExecution(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiRecorder) RecordNotification(ctx context.Context, rec models.NotificationRecord) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.RecordNotification(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiRecorder) SetActiveRules(n int) {
	for _, r := range m.recorders {
		if o, ok := r.(ActiveRulesObserver); ok {
			o.SetActiveRules(n)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(context.Context, models.ExecutionRecord) error       { return nil }
func (nopRecorder) RecordNotification(context.Context, models.NotificationRecord) error { return nil }
