package alerting

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// RecordStore persists the fingerprint -> last-fired-at mapping. It must
// survive process restarts so that a restart never causes alert amnesia.
type RecordStore interface {
	// Get returns the record for a fingerprint, or nil when none exists.
	Get(ctx context.Context, fingerprint string) (*models.AlertRecord, error)
	// Upsert creates or replaces the record for a fingerprint.
	Upsert(ctx context.Context, record *models.AlertRecord) error
}

// Dispatcher delivers a notification to the configured sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// Notification is one fired alert, bundling all in-window events that
// share a fingerprint.
type Notification struct {
	Fingerprint string          `json:"fingerprint"`
	Severity    models.Severity `json:"severity"`
	Message     string          `json:"message"`
	Count       int             `json:"count"`
	Threshold   int             `json:"threshold,omitempty"`
	Window      time.Duration   `json:"window,omitempty"`
	FiredAt     time.Time       `json:"fired_at"`

	// Events are the in-window events sharing the fingerprint, oldest
	// first. Empty for condition notifications fired by the poller.
	Events []*models.Event `json:"events,omitempty"`
}

// Config holds the gate's evaluation settings.
type Config struct {
	// Threshold is the in-window event count that triggers an alert.
	Threshold int
	// Window is the trailing window size.
	Window time.Duration
	// Silence is the minimum gap between two alerts for the same
	// fingerprint.
	Silence time.Duration
	// SeverityFilter restricts which severities count toward the
	// threshold. Empty means all.
	SeverityFilter SeverityFilter
	// Filter is an optional expr-lang expression; events it rejects do
	// not count toward the threshold.
	Filter *EventFilter
}

// GateStats tracks gate statistics using atomic operations.
type GateStats struct {
	Evaluations      atomic.Int64
	AlertsFired      atomic.Int64
	AlertsSuppressed atomic.Int64
	DispatchFailures atomic.Int64
}

// GateStatsSnapshot is a point-in-time copy of gate statistics.
type GateStatsSnapshot struct {
	Evaluations      int64 `json:"evaluations"`
	AlertsFired      int64 `json:"alerts_fired"`
	AlertsSuppressed int64 `json:"alerts_suppressed"`
	DispatchFailures int64 `json:"dispatch_failures"`
}

// Gate decides whether an alert fires for a fingerprint. It is
// stateless per call: the silence period alone prevents re-firing, not a
// state flag, so the same gate can be consulted from any poll cycle.
// All silence-window arithmetic lives here.
type Gate struct {
	mu  sync.RWMutex
	cfg Config

	records    RecordStore
	dispatcher Dispatcher
	stats      *GateStats
}

// NewGate creates a gate backed by the given record store and dispatcher.
func NewGate(cfg Config, records RecordStore, dispatcher Dispatcher) *Gate {
	return &Gate{
		cfg:        cfg,
		records:    records,
		dispatcher: dispatcher,
		stats:      &GateStats{},
	}
}

// Reconfigure replaces the gate's settings. Takes effect on the next
// evaluation.
func (g *Gate) Reconfigure(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

// config returns a copy of the current settings.
func (g *Gate) config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// ShouldFireAt reports whether an alert for the fingerprint may fire at
// the given time: either no prior record exists, or the silence period
// has fully elapsed since the last firing.
func (g *Gate) ShouldFireAt(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	rec, err := g.records.Get(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("load alert record %q: %w", fingerprint, err)
	}
	if rec == nil {
		return true, nil
	}
	return now.Sub(rec.LastFiredAt) > g.config().Silence, nil
}

// MarkFiredAt records a firing for the fingerprint. The record is
// replaced, never appended, so there is at most one per fingerprint.
func (g *Gate) MarkFiredAt(ctx context.Context, fingerprint string, now time.Time) error {
	err := g.records.Upsert(ctx, &models.AlertRecord{
		Fingerprint: fingerprint,
		LastFiredAt: now,
	})
	if err != nil {
		return fmt.Errorf("record firing %q: %w", fingerprint, err)
	}
	return nil
}

// Evaluate evaluates the event slice against the current wall clock.
func (g *Gate) Evaluate(ctx context.Context, events []*models.Event) ([]*Notification, error) {
	return g.EvaluateAt(ctx, events, time.Now())
}

// EvaluateAt runs one full windowed evaluation: events are filtered,
// summarized over the trailing window, and every fingerprint whose count
// reaches the threshold is fired independently in count-descending
// order, each subject to its own silence period. A failed dispatch is
// logged and does not advance the fingerprint's record, so the same
// condition fires again on a later evaluation.
func (g *Gate) EvaluateAt(ctx context.Context, events []*models.Event, now time.Time) ([]*Notification, error) {
	cfg := g.config()
	g.stats.Evaluations.Add(1)

	candidates := g.filterEvents(events, cfg.Filter)
	summary := Summarize(candidates, now, cfg.Window, cfg.SeverityFilter)

	lastSeen := make(map[string]time.Time)
	byFingerprint := make(map[string][]*models.Event)
	cutoff := now.Add(-cfg.Window)
	for _, e := range candidates {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		if !cfg.SeverityFilter.Allows(e.Severity) {
			continue
		}
		fp := e.Fingerprint
		if fp == "" {
			fp = EventFingerprint(e)
		}
		byFingerprint[fp] = append(byFingerprint[fp], e)
		if e.Timestamp.After(lastSeen[fp]) {
			lastSeen[fp] = e.Timestamp
		}
	}

	// Evaluate every qualifying fingerprint in count-descending order.
	ranked := rankFingerprints(summary.CountByFingerprint, lastSeen, 0)

	var fired []*Notification
	var errs []error
	for _, fc := range ranked {
		if fc.Count < cfg.Threshold {
			break
		}

		ok, err := g.ShouldFireAt(ctx, fc.Fingerprint, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			g.stats.AlertsSuppressed.Add(1)
			continue
		}

		bundle := byFingerprint[fc.Fingerprint]
		n := &Notification{
			Fingerprint: fc.Fingerprint,
			Severity:    maxSeverity(bundle),
			Message: fmt.Sprintf("%d events in %s for fingerprint %s (threshold %d)",
				fc.Count, cfg.Window, fc.Fingerprint, cfg.Threshold),
			Count:     fc.Count,
			Threshold: cfg.Threshold,
			Window:    cfg.Window,
			FiredAt:   now,
			Events:    bundle,
		}

		if err := g.dispatcher.Dispatch(ctx, n); err != nil {
			g.stats.DispatchFailures.Add(1)
			log.Printf("alert dispatch failed for %s: %v", fc.Fingerprint, err)
			continue
		}

		if err := g.MarkFiredAt(ctx, fc.Fingerprint, now); err != nil {
			errs = append(errs, err)
			continue
		}

		g.stats.AlertsFired.Add(1)
		fired = append(fired, n)
	}

	if len(errs) > 0 {
		return fired, fmt.Errorf("gate evaluation errors: %v", errs)
	}
	return fired, nil
}

// filterEvents applies the optional expr filter. Events that fail
// evaluation are kept; a broken filter must not silently mute alerting.
func (g *Gate) filterEvents(events []*models.Event, filter *EventFilter) []*models.Event {
	if filter == nil {
		return events
	}

	out := make([]*models.Event, 0, len(events))
	for _, e := range events {
		matched, err := filter.Match(e)
		if err != nil {
			log.Printf("event filter error: %v", err)
			out = append(out, e)
			continue
		}
		if matched {
			out = append(out, e)
		}
	}
	return out
}

// maxSeverity returns the most urgent severity in the bundle.
func maxSeverity(events []*models.Event) models.Severity {
	if len(events) == 0 {
		return models.SeverityWarning
	}
	max := models.SeverityDebug
	for _, e := range events {
		if e.Severity.Rank() > max.Rank() {
			max = e.Severity
		}
	}
	return max
}

// Stats returns a snapshot of gate statistics.
func (g *Gate) Stats() GateStatsSnapshot {
	return GateStatsSnapshot{
		Evaluations:      g.stats.Evaluations.Load(),
		AlertsFired:      g.stats.AlertsFired.Load(),
		AlertsSuppressed: g.stats.AlertsSuppressed.Load(),
		DispatchFailures: g.stats.DispatchFailures.Load(),
	}
}
