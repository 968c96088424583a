package backends

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory builds a backend from configuration.
type Factory func(cfg Config, logger *slog.Logger) (SearchBackend, error)

// Registry maps backend types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[BackendType]Factory
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[BackendType]Factory),
		logger:    logger,
	}
}

// Register installs or replaces the factory for t.
func (r *Registry) Register(t BackendType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = f
}

// Types lists the registered backend types, sorted.
func (r *Registry) Types() []BackendType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BackendType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open builds the backend selected by cfg.Type.
func (r *Registry) Open(cfg Config) (SearchBackend, error) {
	t := BackendType(strings.ToLower(strings.TrimSpace(string(cfg.Type))))
	r.mu.RLock()
	f, ok := r.factories[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported search backend %q (registered: %v)", cfg.Type, r.Types())
	}
	if cfg.MaxHits <= 0 {
		cfg.MaxHits = DefaultMaxHits
	}
	cfg.Type = t

	backend, err := f(cfg, r.logger.With("backend", string(t)))
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", t, err)
	}
	r.logger.Info("search backend ready", "type", t, "url", cfg.URL)
	return backend, nil
}
