package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mr-karan/searchwatch/internal/alerts"
	"github.com/mr-karan/searchwatch/internal/backends"
	"github.com/mr-karan/searchwatch/internal/config"
	"github.com/mr-karan/searchwatch/internal/metrics"
	"github.com/mr-karan/searchwatch/internal/server"
	"github.com/mr-karan/searchwatch/internal/sqlite"
	"github.com/mr-karan/searchwatch/pkg/logger"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// App represents the core application context, holding dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	Search  backends.SearchBackend
	History *sqlite.DB
	Metrics *metrics.Recorder
	Alerts  *alerts.Service
	server  *server.Server
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	// RulesPath overrides rules.path from the config file.
	RulesPath string
	Version   string
	// Logger overrides the logger built from logging.debug.
	Logger *slog.Logger
}

// New loads the configuration and creates an App.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.RulesPath != "" {
		cfg.Rules.Path = opts.RulesPath
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Logging.Debug)
	}
	return &App{Config: cfg, Logger: log, Version: opts.Version}, nil
}

// Initialize opens the search backend and history store and builds the alert
// service and the admin API.
func (a *App) Initialize(ctx context.Context) error {
	var err error

	a.Search, err = NewBackendRegistry(a.Logger).Open(a.Config.Backend())
	if err != nil {
		return fmt.Errorf("failed to open search backend: %w", err)
	}
	if p, ok := a.Search.(backends.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := p.Ping(pingCtx); err != nil {
			// Rules keep running and report failures until the backend recovers.
			a.Logger.Warn("search backend is not reachable", "type", a.Config.Search.Type, "error", err)
		}
		cancel()
	}

	dispatcher, err := NewDispatcher(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Logger.Info("notification channels enabled", "channels", dispatcher.Channels())

	a.Metrics = metrics.NewRecorder()
	recorders := []alerts.ExecutionRecorder{a.Metrics}
	if a.Config.History.Enabled {
		a.History, err = sqlite.New(sqlite.Options{
			Path:         a.Config.History.Path,
			HistoryLimit: a.Config.History.Limit,
			Logger:       a.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite: %w", err)
		}
		recorders = append(recorders, a.History)
	}

	a.Alerts = alerts.NewService(alerts.Options{
		Search:              a.Search,
		Dispatcher:          dispatcher,
		Logger:              a.Logger,
		Recorder:            alerts.NewMultiRecorder(recorders...),
		NotificationTimeout: a.Config.Alerts.NotificationTimeout,
		MatchSampleSize:     a.Config.Alerts.MatchSampleSize,
		DayMatch:            a.Config.DayMatch(),
	})

	if a.Config.Server.Enabled {
		opts := server.Options{
			Address: a.Config.Server.Address,
			Version: a.Version,
			Rules:   a.Alerts,
			Reload:  a.ReloadRules,
			Metrics: func(w io.Writer) { a.Metrics.WritePrometheus(w, a.Config.Metrics.ProcessMetrics) },
			Logger:  a.Logger,
		}
		if a.History != nil {
			opts.History = a.History
		}
		a.server = server.New(opts)
	}
	return nil
}

// Run loads the rules file, starts the alert service and blocks until ctx is
// cancelled or the admin API fails. Components are shut down before it returns.
func (a *App) Run(ctx context.Context) error {
	if a.Alerts == nil {
		return errors.New("app not initialized")
	}
	rules, err := config.LoadRules(a.Config.Rules.Path)
	if err != nil {
		return err
	}
	if err := a.Alerts.Start(ctx, rules); err != nil {
		return fmt.Errorf("failed to start alert service: %w", err)
	}
	defer a.Shutdown()

	errCh := make(chan error, 1)
	if a.Config.Rules.Watch {
		go func() {
			err := config.Watch(ctx, a.Config.Rules.Path, config.WatchOptions{
				Debounce: a.Config.Rules.Debounce,
				Logger:   a.Logger,
			}, a.applyRules)
			if err != nil {
				// Hot reload is best effort; the service keeps running without it.
				a.Logger.Error("rules watcher stopped", "error", err)
			}
		}()
	}
	if a.server != nil {
		go func() { errCh <- a.server.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		if a.server != nil {
			if err := <-errCh; err != nil {
				a.Logger.Error("error shutting down admin API", "error", err)
			}
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	}
}

// ReloadRules re-reads the rules file and applies it to the running service.
func (a *App) ReloadRules(_ context.Context) error {
	rules, err := config.LoadRules(a.Config.Rules.Path)
	if err != nil {
		return err
	}
	return a.Alerts.Reload(rules)
}

func (a *App) applyRules(cfg models.AlertConfiguration) {
	if err := a.Alerts.Reload(cfg); err != nil {
		a.Logger.Error("reloaded rules were rejected, keeping previous configuration", "error", err)
	}
}

// Shutdown stops the alert service and closes the backend and history store.
func (a *App) Shutdown() {
	a.Logger.Info("shutting down application")

	if a.Alerts != nil {
		a.Alerts.Stop()
	}
	if c, ok := a.Search.(backends.Closer); ok {
		if err := c.Close(); err != nil {
			a.Logger.Error("error closing search backend", "error", err)
		}
		a.Search = nil
	}
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			a.Logger.Error("error closing SQLite", "error", err)
		}
		a.History = nil
	}

	a.Logger.Info("application shutdown complete")
}
