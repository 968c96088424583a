package clickhouse

import (
	"context"
	"log/slog"
	"time"
)

// QueryHook observes every query a Client runs.
type QueryHook interface {
	BeforeQuery(ctx context.Context, query string) (context.Context, error)
	AfterQuery(ctx context.Context, query string, err error, duration time.Duration)
}

// LogQueryHook logs query timings and failures.
type LogQueryHook struct {
	logger  *slog.Logger
	verbose bool
}

// NewLogQueryHook logs the SQL text itself only when verbose is set.
func NewLogQueryHook(logger *slog.Logger, verbose bool) *LogQueryHook {
	return &LogQueryHook{logger: logger, verbose: verbose}
}

func (h *LogQueryHook) BeforeQuery(ctx context.Context, query string) (context.Context, error) {
	if h.verbose {
		h.logger.Debug("running clickhouse query", "query", query)
	}
	return ctx, nil
}

func (h *LogQueryHook) AfterQuery(_ context.Context, query string, err error, duration time.Duration) {
	if err != nil {
		h.logger.Warn("clickhouse query failed", "duration_ms", duration.Milliseconds(), "query_length", len(query), "error", err)
		return
	}
	h.logger.Debug("clickhouse query finished", "duration_ms", duration.Milliseconds())
}
