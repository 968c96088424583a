package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-karan/searchwatch/internal/backends"
	"github.com/mr-karan/searchwatch/pkg/cron"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "not_started"
	}
}

const (
	defaultNotificationTimeout = 30 * time.Second
	defaultMatchSampleSize     = 5
)

// Options encapsulates the dependencies of the alert service.
type Options struct {
	Search     backends.SearchBackend
	Dispatcher *Dispatcher
	Logger     *slog.Logger
	// Now is the only clock the service reads. Defaults to time.Now.
	Now      func() time.Time
	Recorder ExecutionRecorder
	// NotificationTimeout bounds each notification invocation.
	NotificationTimeout time.Duration
	// MatchSampleSize is the number of documents rendered into matchSample.
	MatchSampleSize int
	DayMatch        cron.DayMatch
}

// Service owns the active rule set and one execution loop per enabled rule.
//
// Lock order: lifecycleMu, then rulesMu or loopsMu. Loops only ever take
// rulesMu, and never while searching or dispatching.
type Service struct {
	search        backends.SearchBackend
	dispatcher    *Dispatcher
	log           *slog.Logger
	now           func() time.Time
	recorder      ExecutionRecorder
	notifyTimeout time.Duration
	sampleSize    int
	dayMatch      cron.DayMatch

	lifecycleMu sync.Mutex
	state       State
	cfg         models.AlertConfiguration
	ctx         context.Context
	cancel      context.CancelFunc

	// runSeq identifies the current Start so a stale parent-cancel hook is ignored.
	runSeq       uint64
	stopOnParent func() bool

	// ids caches generated ids by rule name so they survive reloads.
	ids map[string]string

	rulesMu   sync.RWMutex
	rules     map[string]models.AlertRule
	schedules map[string]*cron.Schedule
	registry  *models.NotificationRegistry

	loopsMu sync.Mutex
	loops   map[string]*ruleLoop
	loopSeq uint64
}

// NewService constructs a service in StateNotStarted.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	timeout := opts.NotificationTimeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	sample := opts.MatchSampleSize
	if sample <= 0 {
		sample = defaultMatchSampleSize
	}
	return &Service{
		search:        opts.Search,
		dispatcher:    opts.Dispatcher,
		log:           logger.With("component", "alert_service"),
		now:           now,
		recorder:      recorder,
		notifyTimeout: timeout,
		sampleSize:    sample,
		dayMatch:      opts.DayMatch,
		ids:           make(map[string]string),
		rules:         make(map[string]models.AlertRule),
		schedules:     make(map[string]*cron.Schedule),
		loops:         make(map[string]*ruleLoop),
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.state
}

// Start stores cfg and reconciles it. Loops run until ctx is cancelled or Stop
// is called; cancelling ctx stops the service as Stop would. Calling Start on a
// running service behaves like Reload. A configuration error leaves the
// service not running.
func (s *Service) Start(ctx context.Context, cfg models.AlertConfiguration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.expireLocked()
	if s.state == StateRunning {
		return s.reloadLocked(cfg)
	}
	if s.search == nil || s.dispatcher == nil {
		return errors.New("alert service requires a search backend and a dispatcher")
	}

	plan, err := s.plan(cfg)
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.runSeq++
	seq := s.runSeq
	s.stopOnParent = context.AfterFunc(s.ctx, func() {
		s.lifecycleMu.Lock()
		defer s.lifecycleMu.Unlock()
		if s.state == StateRunning && s.runSeq == seq {
			s.stopLocked("context cancelled")
		}
	})
	s.cfg = cfg
	s.apply(cfg.Notifications, plan)
	s.state = StateRunning
	s.log.Info("alert service started", "rules", len(plan), "active_loops", s.activeLoops())
	return nil
}

// Reload replaces the active configuration. It is a no-op unless running.
// On error the previous configuration keeps running untouched.
func (s *Service) Reload(cfg models.AlertConfiguration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.reloadLocked(cfg)
}

func (s *Service) reloadLocked(cfg models.AlertConfiguration) error {
	s.expireLocked()
	if s.state != StateRunning {
		return nil
	}
	plan, err := s.plan(cfg)
	if err != nil {
		s.log.Error("rejected alert configuration", "error", err)
		return err
	}
	s.cfg = cfg
	s.apply(cfg.Notifications, plan)
	s.log.Info("alert configuration reloaded", "rules", len(plan), "active_loops", s.activeLoops())
	return nil
}

// RefreshRules reconciles the stored configuration again.
func (s *Service) RefreshRules() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	s.expireLocked()
	if s.state != StateRunning {
		return nil
	}
	plan, err := s.plan(s.cfg)
	if err != nil {
		return err
	}
	s.apply(s.cfg.Notifications, plan)
	return nil
}

// Stop cancels every loop, waits for each to exit and clears rule state.
func (s *Service) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.stopLocked("stopped")
}

// expireLocked stops a service whose parent context ended before the
// AfterFunc hook could take lifecycleMu.
func (s *Service) expireLocked() {
	if s.state == StateRunning && s.ctx.Err() != nil {
		s.stopLocked("context cancelled")
	}
}

func (s *Service) stopLocked(reason string) {
	if s.stopOnParent != nil {
		s.stopOnParent()
		s.stopOnParent = nil
	}
	s.cancel()
	s.loopsMu.Lock()
	loops := s.loops
	s.loops = make(map[string]*ruleLoop)
	s.loopsMu.Unlock()
	for _, l := range loops {
		l.stop()
	}

	s.rulesMu.Lock()
	s.rules = make(map[string]models.AlertRule)
	s.schedules = make(map[string]*cron.Schedule)
	s.registry = nil
	s.rulesMu.Unlock()

	s.cfg = models.AlertConfiguration{}
	s.state = StateStopped
	s.observeActive(0)
	s.log.Info("alert service stopped", "reason", reason, "stopped_loops", len(loops))
}

// Configuration returns the active configuration.
func (s *Service) Configuration() models.AlertConfiguration {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	return s.cfg
}

// Rules returns a snapshot of every rule, sorted by name.
func (s *Service) Rules() []models.AlertRule {
	s.rulesMu.RLock()
	out := make([]models.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	s.rulesMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Rule returns a snapshot of a single rule.
func (s *Service) Rule(id string) (models.AlertRule, bool) {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return models.AlertRule{}, false
	}
	return r.Clone(), true
}

// plannedRule is one validated definition waiting to be applied.
type plannedRule struct {
	id       string
	def      models.AlertRuleDefinition
	schedule *cron.Schedule
	// fresh is the cron's next instant after the planning time.
	fresh time.Time
}

// plan validates the whole configuration without touching rule state or
// loops. Every problem is reported, joined.
func (s *Service) plan(cfg models.AlertConfiguration) ([]plannedRule, error) {
	now := s.now()
	var errs []error
	seen := make(map[string]string, len(cfg.Rules))
	out := make([]plannedRule, 0, len(cfg.Rules))

	for _, def := range cfg.Rules {
		if err := def.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		sched, err := cron.ParseWithOptions(def.CronExpression, cron.Options{DayMatch: s.dayMatch})
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: rule %q: %w", models.ErrInvalidConfiguration, def.Name, err))
			continue
		}
		fresh, err := sched.Next(now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: rule %q: %w", models.ErrInvalidConfiguration, def.Name, err))
			continue
		}
		var refErr bool
		for _, nid := range def.NotificationIDs() {
			nd, err := cfg.Notifications.Require(nid)
			if err == nil && !s.dispatcher.Supports(nd.Channel()) {
				err = fmt.Errorf("notification %q: %w %q", nid, ErrNoHandler, nd.Channel())
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %q: %w", def.Name, err))
				refErr = true
			}
		}
		if refErr {
			continue
		}

		id := s.resolveID(def)
		if other, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("%w: rules %q and %q share id %q", models.ErrInvalidConfiguration, other, def.Name, id))
			continue
		}
		seen[id] = def.Name
		out = append(out, plannedRule{id: id, def: def, schedule: sched, fresh: fresh})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// resolveID returns the explicit id or a generated one cached by name.
// Callers hold lifecycleMu.
func (s *Service) resolveID(def models.AlertRuleDefinition) string {
	if def.ID != "" {
		return def.ID
	}
	if id, ok := s.ids[def.Name]; ok {
		return id
	}
	id := uuid.NewString()
	s.ids[def.Name] = id
	return id
}

// materialize merges a definition with the previous runtime state for the same id.
func materialize(p plannedRule, prev models.AlertRule, had bool, now time.Time) models.AlertRule {
	def := p.def
	rule := models.AlertRule{
		ID:                   p.id,
		Name:                 def.Name,
		Enabled:              def.Enabled,
		CronExpression:       def.CronExpression,
		Target:               def.Target,
		QueryJSON:            def.QueryJSON,
		Notifications:        def.Notifications,
		FailureNotifications: def.FailureNotifications,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if had {
		rule.CreatedAt = prev.CreatedAt
		rule.LastRun = prev.LastRun
		rule.FailureCount = prev.FailureCount
		rule.LastFailureMessage = prev.LastFailureMessage
		rule.LastFailureType = prev.LastFailureType
		rule.LastMatchCount = prev.LastMatchCount
		if prev.Name == rule.Name && prev.ExecutionHash() == rule.ExecutionHash() {
			rule.UpdatedAt = prev.UpdatedAt
		}
	}

	// nil when disabled, now when starting immediately, the previous nextRun
	// while the cron is unchanged, else the cron's next instant.
	switch {
	case !def.Enabled:
		rule.NextRun = nil
	case def.StartImmediately:
		t := now
		rule.NextRun = &t
	case had && prev.NextRun != nil && prev.CronExpression == def.CronExpression:
		t := *prev.NextRun
		rule.NextRun = &t
	default:
		t := p.fresh
		rule.NextRun = &t
	}
	return rule
}

// loopTarget is what the loop phase of apply needs to know about one rule.
type loopTarget struct {
	id          string
	name        string
	enabled     bool
	hash        uint64
	nextRun     *time.Time
	nextChanged bool
}

// apply installs a validated plan: rule state first, then loops. History is
// merged under the write lock so results committed by running loops are kept.
func (s *Service) apply(registry *models.NotificationRegistry, plan []plannedRule) {
	now := s.now()
	rules := make(map[string]models.AlertRule, len(plan))
	schedules := make(map[string]*cron.Schedule, len(plan))

	// Loops write s.rules once the lock is released, so the loop phase below
	// works from this snapshot only.
	targets := make([]loopTarget, 0, len(plan))
	planned := make(map[string]struct{}, len(plan))

	s.rulesMu.Lock()
	for _, p := range plan {
		prev, had := s.rules[p.id]
		rule := materialize(p, prev, had, now)
		rules[p.id] = rule
		schedules[p.id] = p.schedule
		planned[p.id] = struct{}{}
		targets = append(targets, loopTarget{
			id:          p.id,
			name:        rule.Name,
			enabled:     rule.Enabled,
			hash:        rule.ExecutionHash(),
			nextRun:     rule.NextRun,
			nextChanged: !sameTime(prev.NextRun, rule.NextRun),
		})
	}
	s.rules = rules
	s.schedules = schedules
	s.registry = registry
	s.rulesMu.Unlock()

	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()

	for _, t := range targets {
		existing := s.loops[t.id]

		if !t.enabled {
			if existing != nil {
				existing.stop()
				delete(s.loops, t.id)
				s.log.Info("rule disabled, loop stopped", "rule_id", t.id, "rule", t.name)
			}
			continue
		}

		if existing != nil && existing.hash == t.hash {
			existing.nextRun = t.nextRun
			if t.nextChanged {
				existing.poke()
			}
			continue
		}
		if existing != nil {
			existing.stop()
			s.log.Info("rule changed, restarting loop", "rule_id", t.id, "rule", t.name)
		}
		s.loops[t.id] = s.startLoop(t.id, t.hash, t.nextRun)
	}

	for id, l := range s.loops {
		if _, ok := planned[id]; ok {
			continue
		}
		l.stop()
		delete(s.loops, id)
		s.log.Info("rule removed, loop stopped", "rule_id", id)
	}
	s.observeActive(len(s.loops))
}

func (s *Service) activeLoops() int {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()
	return len(s.loops)
}

func (s *Service) observeActive(n int) {
	if o, ok := s.recorder.(ActiveRulesObserver); ok {
		o.SetActiveRules(n)
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
