package alerts

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mr-karan/searchwatch/pkg/models"
)

// LogConsoleSender writes console notifications to a slog logger.
type LogConsoleSender struct {
	logger *slog.Logger
	// attrs lists the variables copied onto each record.
	attrs []string
}

// NewLogConsoleSender logs through logger. attrs selects which rendering variables
// are attached to the record; nil attaches ruleId and ruleName.
func NewLogConsoleSender(logger *slog.Logger, attrs ...string) *LogConsoleSender {
	if logger == nil {
		logger = slog.Default()
	}
	if attrs == nil {
		attrs = []string{"ruleId", "ruleName"}
	}
	sort.Strings(attrs)
	return &LogConsoleSender{logger: logger.With("component", "console_notifier"), attrs: attrs}
}

func (s *LogConsoleSender) SendConsole(ctx context.Context, msg ConsoleMessage) error {
	args := make([]any, 0, len(s.attrs)*2)
	for _, k := range s.attrs {
		if v, ok := msg.Attrs[k]; ok {
			args = append(args, k, v)
		}
	}
	s.logger.Log(ctx, consoleLevel(msg.Level), msg.Message, args...)
	return nil
}

func consoleLevel(l models.ConsoleLevel) slog.Level {
	switch l {
	case models.ConsoleDebug:
		return slog.LevelDebug
	case models.ConsoleWarn:
		return slog.LevelWarn
	case models.ConsoleError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
