package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr-karan/searchwatch/internal/template"
	"github.com/mr-karan/searchwatch/pkg/cron"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// errStaleLoop tells a loop that its rule was redefined and a replacement loop owns it.
var errStaleLoop = errors.New("rule definition changed")

const recordTimeout = 5 * time.Second

type ruleLoop struct {
	id   string
	seq  uint64
	hash uint64
	// nextRun mirrors the rule's nextRun when the loop was last reconciled. Guarded by loopsMu.
	nextRun *time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
}

// poke wakes a parked loop so it re-reads the rule's nextRun.
func (l *ruleLoop) poke() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// stop cancels the loop and blocks until it has exited.
func (l *ruleLoop) stop() {
	l.cancel()
	<-l.done
}

// startLoop must be called with loopsMu held.
func (s *Service) startLoop(id string, hash uint64, next *time.Time) *ruleLoop {
	ctx, cancel := context.WithCancel(s.ctx)
	s.loopSeq++
	l := &ruleLoop{
		id:      id,
		seq:     s.loopSeq,
		hash:    hash,
		nextRun: next,
		cancel:  cancel,
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	go s.run(ctx, l)
	return l
}

func (s *Service) run(ctx context.Context, l *ruleLoop) {
	defer close(l.done)
	log := s.log.With("rule_id", l.id)
	log.Debug("execution loop started")
	defer log.Debug("execution loop exited")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		due, ok := s.wakeTime(l.id)
		if !ok {
			return
		}

		var fire <-chan time.Time
		if due != nil {
			wait := due.Sub(s.now())
			if wait <= 0 {
				if err := s.execute(ctx, l); err != nil {
					return
				}
				continue
			}
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-fire:
		}
		timer.Stop()
	}
}

// wakeTime returns when the loop should next look at its rule. A nil time parks
// the loop until it is poked. ok is false once the rule is gone.
func (s *Service) wakeTime(id string) (*time.Time, bool) {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, false
	}
	if rule.Enabled {
		return rule.NextRun, true
	}
	sched := s.schedules[id]
	if sched == nil {
		return nil, true
	}
	next, err := sched.Next(s.now())
	if err != nil {
		return nil, true
	}
	return &next, true
}

// execute runs the rule once. A non-nil error ends the loop.
func (s *Service) execute(ctx context.Context, l *ruleLoop) error {
	s.rulesMu.RLock()
	rule, ok := s.rules[l.id]
	registry := s.registry
	s.rulesMu.RUnlock()
	if !ok || !rule.Enabled {
		return nil
	}
	if rule.ExecutionHash() != l.hash {
		return errStaleLoop
	}

	log := s.log.With("rule_id", rule.ID, "rule", rule.Name)
	triggeredAt := s.now()
	log.Debug("executing rule", "target", rule.Target)

	docs, err := s.search.Search(ctx, rule.Target, rule.QueryJSON)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return s.onFailure(ctx, rule, l.hash, registry, triggeredAt, err)
	}
	return s.onSuccess(ctx, rule, l.hash, registry, triggeredAt, docs)
}

func (s *Service) onSuccess(ctx context.Context, rule models.AlertRule, hash uint64, registry *models.NotificationRegistry, triggeredAt time.Time, docs []models.Document) error {
	matches := len(docs)
	if matches > 0 {
		vars := template.Stringify(map[string]any{
			"ruleName":    rule.Name,
			"ruleId":      rule.ID,
			"matchCount":  matches,
			"timestamp":   triggeredAt,
			"target":      rule.Target,
			"status":      string(models.ExecutionSuccess),
			"matchSample": docs[:min(matches, s.sampleSize)],
		})
		s.notifyAll(ctx, rule, registry, models.NotificationOnMatch, rule.Notifications, vars)
	}

	committed := s.commit(rule.ID, hash, func(r *models.AlertRule, sched *cron.Schedule) {
		t := triggeredAt
		r.LastRun = &t
		r.NextRun = s.nextAfter(rule.ID, sched, triggeredAt)
		r.FailureCount = 0
		r.LastFailureMessage = nil
		r.LastFailureType = ""
		r.LastMatchCount = matches
	})
	if !committed {
		return errStaleLoop
	}

	s.log.Info("rule executed", "rule_id", rule.ID, "rule", rule.Name, "matches", matches)
	s.recordExecution(ctx, models.ExecutionRecord{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Target:      rule.Target,
		Status:      models.ExecutionSuccess,
		MatchCount:  matches,
		TriggeredAt: triggeredAt,
		Duration:    s.now().Sub(triggeredAt),
	})
	return ctx.Err()
}

func (s *Service) onFailure(ctx context.Context, rule models.AlertRule, hash uint64, registry *models.NotificationRegistry, triggeredAt time.Time, execErr error) error {
	failedAt := s.now()
	message := execErr.Error()
	kind := errorType(execErr)

	var failures int
	committed := s.commit(rule.ID, hash, func(r *models.AlertRule, sched *cron.Schedule) {
		t := triggeredAt
		r.LastRun = &t
		r.NextRun = s.nextAfter(rule.ID, sched, failedAt)
		r.FailureCount++
		r.LastFailureMessage = &message
		r.LastFailureType = kind
		r.LastMatchCount = 0
		failures = r.FailureCount
	})
	if !committed {
		return errStaleLoop
	}

	s.log.Warn("rule execution failed", "rule_id", rule.ID, "rule", rule.Name, "failure_count", failures, "error_type", kind, "error", execErr)
	vars := template.Stringify(map[string]any{
		"ruleName":     rule.Name,
		"ruleId":       rule.ID,
		"timestamp":    failedAt,
		"target":       rule.Target,
		"status":       string(models.ExecutionFailure),
		"failureCount": failures,
		"errorType":    kind,
		"errorMessage": message,
		"failurePhase": models.FailurePhaseExecution,
	})
	s.notifyAll(ctx, rule, registry, models.NotificationOnFailure, rule.FailureNotifications, vars)

	s.recordExecution(ctx, models.ExecutionRecord{
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Target:       rule.Target,
		Status:       models.ExecutionFailure,
		FailureCount: failures,
		ErrorType:    kind,
		ErrorMessage: message,
		TriggeredAt:  triggeredAt,
		Duration:     failedAt.Sub(triggeredAt),
	})
	return ctx.Err()
}

// commit applies fn to the stored rule if it still has the executed definition.
func (s *Service) commit(id string, hash uint64, fn func(r *models.AlertRule, sched *cron.Schedule)) bool {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	r, ok := s.rules[id]
	if !ok || r.ExecutionHash() != hash {
		return false
	}
	fn(&r, s.schedules[id])
	s.rules[id] = r
	return true
}

func (s *Service) nextAfter(id string, sched *cron.Schedule, t time.Time) *time.Time {
	if sched == nil {
		return nil
	}
	next, err := sched.Next(t)
	if err != nil {
		s.log.Error("rule has no upcoming trigger", "rule_id", id, "error", err)
		return nil
	}
	return &next
}

// notifyAll attempts every invocation. A failure is logged and recorded, and the
// remaining invocations still run.
func (s *Service) notifyAll(ctx context.Context, rule models.AlertRule, registry *models.NotificationRegistry, kind models.NotificationKind, invocations []models.RuleNotificationInvocation, vars map[string]string) {
	for _, inv := range invocations {
		if ctx.Err() != nil {
			return
		}
		rec := models.NotificationRecord{RuleID: rule.ID, NotificationID: inv.NotificationID, Kind: kind}

		def, err := registry.Require(inv.NotificationID)
		if err == nil {
			rec.Channel = def.Channel()
			nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
			err = s.dispatcher.Dispatch(nctx, def, inv.Variables, vars)
			cancel()
		}
		if err != nil && ctx.Err() != nil {
			return
		}

		rec.SentAt = s.now()
		if err != nil {
			rec.Error = err.Error()
			s.log.Error("notification failed", "rule_id", rule.ID, "rule", rule.Name, "notification_id", inv.NotificationID, "kind", kind, "error", err)
		} else {
			s.log.Debug("notification sent", "rule_id", rule.ID, "notification_id", inv.NotificationID, "channel", rec.Channel)
		}
		s.recordNotification(ctx, rec)
	}
}

func (s *Service) recordExecution(ctx context.Context, rec models.ExecutionRecord) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordExecution(rctx, rec); err != nil {
		s.log.Warn("failed to record execution", "rule_id", rec.RuleID, "error", err)
	}
}

func (s *Service) recordNotification(ctx context.Context, rec models.NotificationRecord) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.RecordNotification(rctx, rec); err != nil {
		s.log.Warn("failed to record notification", "rule_id", rec.RuleID, "notification_id", rec.NotificationID, "error", err)
	}
}

// errorType prefers an ErrorType() method anywhere in the chain, then falls
// back to the Go type of the innermost wrapped error.
func errorType(err error) string {
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", inner), "*")
}
