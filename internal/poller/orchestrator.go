// Package poller drives the recurring poll cycle: fetch external state
// per target, diff it against the tracked previous state, perform the
// side effect for each newly detected condition, and commit state only
// for the side effects that succeeded.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/eventstore"
	"github.com/good-yellow-bee/repowatch/internal/metrics"
	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/repohost"
	"github.com/good-yellow-bee/repowatch/internal/storage"
	"github.com/good-yellow-bee/repowatch/internal/tracker"
)

// ErrCycleInProgress is returned when a tick arrives while the previous
// cycle is still running. The tick is skipped entirely, never overlapped.
var ErrCycleInProgress = fmt.Errorf("poll cycle already in progress")

// Config holds orchestrator settings.
type Config struct {
	// Interval between poll cycles (default: 5m).
	Interval time.Duration
	// TargetTimeout bounds one target's fetch+diff+dispatch work
	// (default: 2m). One slow target cannot stall the whole cycle
	// indefinitely.
	TargetTimeout time.Duration
	// MaxConcurrent bounds how many targets are polled at once
	// (default: 4).
	MaxConcurrent int
	// Targets are the monitored target identifiers.
	Targets []string
	// UpdatePolicy marks fetched updates of the listed types as
	// auto-eligible in addition to what the collaborator flags.
	UpdatePolicy tracker.UpdatePolicy
}

// setDefaults fills in zero fields.
func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.TargetTimeout <= 0 {
		c.TargetTimeout = 2 * time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
}

// Stats tracks orchestrator statistics using atomic operations.
type Stats struct {
	CyclesRun          atomic.Int64
	CyclesSkipped      atomic.Int64
	TargetsPolled      atomic.Int64
	TargetsSkipped     atomic.Int64
	ConditionsDetected atomic.Int64
	SideEffectFailures atomic.Int64
}

// StatsSnapshot is a point-in-time copy of orchestrator statistics.
type StatsSnapshot struct {
	CyclesRun          int64 `json:"cycles_run"`
	CyclesSkipped      int64 `json:"cycles_skipped"`
	TargetsPolled      int64 `json:"targets_polled"`
	TargetsSkipped     int64 `json:"targets_skipped"`
	ConditionsDetected int64 `json:"conditions_detected"`
	SideEffectFailures int64 `json:"side_effect_failures"`
}

// Orchestrator runs poll cycles over all monitored targets.
type Orchestrator struct {
	mu  sync.RWMutex
	cfg Config

	host       repohost.Client
	tracker    *tracker.Tracker
	events     *eventstore.Store
	gate       *alerting.Gate
	dispatcher alerting.Dispatcher

	// running guards against overlapping cycles.
	running atomic.Bool
	stats   *Stats
}

// New creates an orchestrator. All stores are injected; the orchestrator
// owns no implicit process-wide state.
func New(cfg Config, host repohost.Client, trk *tracker.Tracker, events *eventstore.Store, gate *alerting.Gate, dispatcher alerting.Dispatcher) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		cfg:        cfg,
		host:       host,
		tracker:    trk,
		events:     events,
		gate:       gate,
		dispatcher: dispatcher,
		stats:      &Stats{},
	}
}

// SetTargets replaces the monitored target list. Takes effect on the
// next cycle.
func (o *Orchestrator) SetTargets(targets []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Targets = targets
}

// Targets returns the monitored target list.
func (o *Orchestrator) Targets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.cfg.Targets))
	copy(out, o.cfg.Targets)
	return out
}

// Run executes one cycle immediately, then one per interval until the
// context is cancelled. Cycles run synchronously, so cancellation lets
// the in-flight cycle finish before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Cycle(ctx); err != nil && err != ErrCycleInProgress {
		log.Printf("poll cycle error: %v", err)
	}

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Cycle(ctx); err != nil {
				if err == ErrCycleInProgress {
					continue
				}
				log.Printf("poll cycle error: %v", err)
			}
		}
	}
}

// Cycle runs one pass over all targets. At most one cycle executes at a
// time; a tick that arrives mid-cycle returns ErrCycleInProgress. No
// error in one target's processing aborts another target's processing.
func (o *Orchestrator) Cycle(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		o.stats.CyclesSkipped.Add(1)
		metrics.CyclesSkipped.Inc()
		log.Printf("skipping tick: previous cycle still running")
		return ErrCycleInProgress
	}
	defer o.running.Store(false)

	start := time.Now()
	targets := o.Targets()

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.MaxConcurrent)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			// Shutting down: stop picking up new targets, but let
			// already-started ones finish cleanly.
			if ctx.Err() != nil {
				return nil
			}
			o.pollTarget(ctx, target)
			return nil
		})
	}
	g.Wait()

	o.evaluateWindow(ctx)

	o.stats.CyclesRun.Add(1)
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	return nil
}

// evaluateWindow runs the gate's windowed threshold evaluation over the
// persisted event log. This is what turns sustained event volume into
// an alert: a fingerprint crossing the in-window threshold fires even
// when no single cycle detected a new condition for it.
func (o *Orchestrator) evaluateWindow(ctx context.Context) {
	events, err := o.events.Query(ctx, storage.EventFilter{})
	if err != nil {
		log.Printf("windowed evaluation skipped: %v", err)
		return
	}

	fired, err := o.gate.Evaluate(ctx, events)
	if err != nil {
		log.Printf("windowed evaluation: %v", err)
	}
	for _, n := range fired {
		metrics.AlertsFired.Inc()
		log.Printf("threshold alert fired for %s (%d events in %s)", n.Fingerprint, n.Count, n.Window)
	}
}

// Stats returns a snapshot of orchestrator statistics.
func (o *Orchestrator) Stats() StatsSnapshot {
	return StatsSnapshot{
		CyclesRun:          o.stats.CyclesRun.Load(),
		CyclesSkipped:      o.stats.CyclesSkipped.Load(),
		TargetsPolled:      o.stats.TargetsPolled.Load(),
		TargetsSkipped:     o.stats.TargetsSkipped.Load(),
		ConditionsDetected: o.stats.ConditionsDetected.Load(),
		SideEffectFailures: o.stats.SideEffectFailures.Load(),
	}
}

// pollTarget runs one target's pipeline. Every failure mode converts to
// a skip for this target only; the stored state is advanced only for
// conditions whose side effects succeeded, so failed conditions stay new
// and retry next cycle.
func (o *Orchestrator) pollTarget(ctx context.Context, target string) {
	defer func() {
		if r := recover(); r != nil {
			o.skipTarget(target, "panic", fmt.Errorf("%v", r))
		}
	}()

	// A per-target timeout bounds the worst case, detached from the
	// parent so shutdown does not tear a target mid-write.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.targetTimeout())
	defer cancel()

	prev, err := o.tracker.Load(tctx, target)
	if err != nil {
		o.skipTarget(target, "state", err)
		return
	}

	snap, err := o.fetchSnapshot(tctx, target)
	if err != nil {
		o.skipTarget(target, "fetch", err)
		return
	}

	now := time.Now()
	next, conds := tracker.Diff(prev, snap, now)

	for _, kind := range conds {
		o.stats.ConditionsDetected.Add(1)
		metrics.ConditionsDetected.WithLabelValues(string(kind)).Inc()
		o.applyCondition(tctx, target, kind, prev, next, snap, now)
	}

	if err := o.tracker.Persist(tctx, next); err != nil {
		// Not committed; the same conditions are retried next cycle.
		o.skipTarget(target, "persist", err)
		return
	}

	o.stats.TargetsPolled.Add(1)
}

// fetchSnapshot assembles one target's observation from the
// collaborator fetches.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, target string) (*models.ObservedSnapshot, error) {
	repo, err := o.host.FetchRepoSnapshot(ctx, target)
	if err != nil {
		return nil, err
	}

	updates, err := o.host.FetchDependencyUpdates(ctx, target)
	if err != nil {
		return nil, err
	}
	updates = o.cfg.UpdatePolicy.Apply(updates)

	release, err := o.host.FetchReleaseReadiness(ctx, target)
	if err != nil {
		return nil, err
	}

	return &models.ObservedSnapshot{
		Target:           target,
		FailedBuildCount: repo.FailedBuildCount,
		EligibleUpdates:  updates,
		ReleaseNeeded:    release.Needed,
		ReleaseReason:    release.Reason,
	}, nil
}

// applyCondition performs one condition's side effect and adjusts the
// proposed next state to reflect whether it succeeded.
func (o *Orchestrator) applyCondition(ctx context.Context, target string, kind models.ConditionKind, prev, next *models.TargetState, snap *models.ObservedSnapshot, now time.Time) {
	switch kind {
	case models.ConditionBuildFailure:
		msg := fmt.Sprintf("build failures: %d", snap.FailedBuildCount)
		event := o.recordConditionEvent(ctx, target, kind, msg, models.SeverityError, snap)
		if o.notifyCondition(ctx, event, now) {
			return
		}
		// Dispatch failed: keep the previous count so the condition is
		// detected as new again next cycle.
		if prev != nil {
			next.FailedBuildCount = prev.FailedBuildCount
		} else {
			next.FailedBuildCount = 0
		}

	case models.ConditionDependencyUpdate:
		eligible := tracker.AutoEligible(snap.EligibleUpdates)
		msg := fmt.Sprintf("%d auto-eligible dependency updates", len(eligible))
		event := o.recordConditionEvent(ctx, target, kind, msg, models.SeverityInfo, snap)

		prID, err := o.host.OpenUpdatePR(ctx, target, eligible)
		if err != nil {
			o.stats.SideEffectFailures.Add(1)
			log.Printf("open update PR for %s failed: %v", target, err)
			return
		}
		next.PendingUpdatePR = prID
		log.Printf("opened update PR %s for %s (%d updates)", prID, target, len(eligible))

		// The PR is open regardless of whether the announcement lands.
		o.notifyCondition(ctx, event, now)

	case models.ConditionReleaseNeeded:
		msg := "release may be needed"
		if snap.ReleaseReason != "" {
			msg += ": " + snap.ReleaseReason
		}
		event := o.recordConditionEvent(ctx, target, kind, msg, models.SeverityInfo, snap)
		if o.notifyCondition(ctx, event, now) {
			return
		}
		// Dispatch failed: the sticky flag must not be set, or the
		// condition would never announce.
		next.ReleaseNotified = prev != nil && prev.ReleaseNotified
	}
}

// recordConditionEvent appends a condition event to the event store. A
// persistence failure is logged and does not block alerting.
func (o *Orchestrator) recordConditionEvent(ctx context.Context, target string, kind models.ConditionKind, msg string, severity models.Severity, snap *models.ObservedSnapshot) *models.Event {
	event := models.NewEvent(target, msg, severity)
	event.SetContext("condition", string(kind))
	if kind == models.ConditionBuildFailure {
		event.SetContext("failed_build_count", snap.FailedBuildCount)
	}

	stored, err := o.events.Record(ctx, event)
	if err != nil {
		log.Printf("record condition event for %s: %v", target, err)
	}
	return stored
}

// notifyCondition consults the alert gate's silence check for the
// condition's fingerprint and dispatches the notification when it may
// fire. Returns true when the condition is settled (dispatched, or
// deliberately suppressed by the silence period) and state may advance.
func (o *Orchestrator) notifyCondition(ctx context.Context, event *models.Event, now time.Time) bool {
	fp := event.Fingerprint

	ok, err := o.gate.ShouldFireAt(ctx, fp, now)
	if err != nil {
		o.stats.SideEffectFailures.Add(1)
		log.Printf("silence check for %s failed: %v", fp, err)
		return false
	}
	if !ok {
		// Already announced within the silence period (e.g. dispatched
		// last cycle but the state commit failed). Deliberately skipped.
		log.Printf("condition %s suppressed by silence period", fp)
		metrics.AlertsSuppressed.Inc()
		return true
	}

	n := &alerting.Notification{
		Fingerprint: fp,
		Severity:    event.Severity,
		Message:     fmt.Sprintf("%s: %s", event.Source, event.Message),
		Count:       1,
		FiredAt:     now,
		Events:      []*models.Event{event},
	}

	if err := o.dispatcher.Dispatch(ctx, n); err != nil {
		o.stats.SideEffectFailures.Add(1)
		metrics.DispatchFailures.Inc()
		log.Printf("dispatch for %s failed: %v", fp, err)
		return false
	}

	if err := o.gate.MarkFiredAt(ctx, fp, now); err != nil {
		// The notification went out; losing the record risks one
		// duplicate after a crash, never a lost alert.
		log.Printf("mark fired for %s failed: %v", fp, err)
	}
	metrics.AlertsFired.Inc()
	return true
}

func (o *Orchestrator) skipTarget(target, reason string, err error) {
	o.stats.TargetsSkipped.Add(1)
	metrics.TargetsSkipped.WithLabelValues(reason).Inc()
	log.Printf("skipping target %s (%s): %v", target, reason, err)
}

func (o *Orchestrator) targetTimeout() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.TargetTimeout
}
