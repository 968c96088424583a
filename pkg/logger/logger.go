// Package logger builds the process wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a slog logger writing to stderr through a charmbracelet/log handler.
func New(debug bool) *slog.Logger {
	return slog.New(Handler(os.Stderr, debug))
}

// Handler returns the charmbracelet/log handler used by New.
func Handler(w io.Writer, debug bool) *log.Logger {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}
