// Package server exposes the read-mostly admin API of the alert service.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/searchwatch/internal/alerts"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// RuleSource is the part of the alert service the API reads.
type RuleSource interface {
	State() alerts.State
	// Rules returns every rule sorted by name, then id.
	Rules() []models.AlertRule
	Rule(id string) (models.AlertRule, bool)
}

// HistoryStore serves recorded executions and notification attempts.
type HistoryStore interface {
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]models.ExecutionRecord, error)
	ListNotifications(ctx context.Context, ruleID string, limit int) ([]models.NotificationRecord, error)
}

// Options configures a Server.
type Options struct {
	Address string
	Version string
	Rules   RuleSource
	// History is optional. Without it the history endpoints return 503.
	History HistoryStore
	// Reload re-reads the rules file and applies it. Optional.
	Reload func(ctx context.Context) error
	// Metrics writes the Prometheus exposition. Optional.
	Metrics func(w io.Writer)
	Logger  *slog.Logger
}

// Server is the admin HTTP API.
type Server struct {
	app     *fiber.App
	addr    string
	version string
	rules   RuleSource
	history HistoryStore
	reload  func(ctx context.Context) error
	metrics func(w io.Writer)
	log     *slog.Logger
	started time.Time
}

// New builds the fiber app and registers the routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		addr:    opts.Address,
		version: opts.Version,
		rules:   opts.Rules,
		history: opts.History,
		reload:  opts.Reload,
		metrics: opts.Metrics,
		log:     logger.With("component", "server"),
		started: time.Now(),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "searchwatch",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.app.Group("/api/v1")
	api.Get("/health", s.handleHealth)
	api.Get("/meta", s.handleGetMeta)
	api.Get("/rules", s.handleListRules)
	api.Get("/rules/:id", s.handleGetRule)
	api.Get("/rules/:id/executions", s.handleListExecutions)
	api.Get("/rules/:id/notifications", s.handleListNotifications)
	api.Post("/reload", s.handleReload)

	s.app.Get("/metrics", s.handleMetrics)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admin API listening", "address", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var ae *apiError
	if errors.As(err, &ae) {
		return SendErrorWithType(c, ae.status, ae.message, ae.errorType)
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		errType := GeneralErrorType
		if fe.Code == fiber.StatusNotFound {
			errType = NotFoundErrorType
		}
		return SendErrorWithType(c, fe.Code, fe.Message, errType)
	}
	s.log.Error("unhandled request error", "path", c.Path(), "error", err)
	return SendErrorWithType(c, fiber.StatusInternalServerError, "Internal server error", GeneralErrorType)
}
