// Package eventstore provides the append-only, size-bounded log of
// observed events. Every mutating call persists through the SQLite
// repository; the store retains at most the most recent N events.
package eventstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/metrics"
	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/storage"
)

// DefaultMaxEvents is the default retention bound.
const DefaultMaxEvents = 1000

// ErrEventNotFound is returned when acknowledging an unknown event.
var ErrEventNotFound = fmt.Errorf("event not found")

// Store is the bounded event log.
type Store struct {
	// mu serializes record+trim so concurrent writers cannot interleave
	// and overshoot the retention bound.
	mu   sync.Mutex
	repo storage.EventRepository

	maxEvents int

	recorded atomic.Int64
	dropped  atomic.Int64
}

// New creates a store over the given repository. maxEvents <= 0 uses
// DefaultMaxEvents.
func New(repo storage.EventRepository, maxEvents int) *Store {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Store{
		repo:      repo,
		maxEvents: maxEvents,
	}
}

// Record assigns id, timestamp, and fingerprint when absent, appends the
// event, and truncates the log to the retention bound. The stored event
// is returned even when persistence fails; in that case the error is a
// *storage.PersistenceError and the caller decides whether to proceed
// with in-memory state only.
func (s *Store) Record(ctx context.Context, e *models.Event) (*models.Event, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Fingerprint == "" {
		e.Fingerprint = alerting.EventFingerprint(e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Insert(ctx, e); err != nil {
		return e, err
	}
	s.recorded.Add(1)
	metrics.EventsRecorded.Inc()

	dropped, err := s.repo.TrimToMostRecent(ctx, s.maxEvents)
	if err != nil {
		return e, err
	}
	s.dropped.Add(dropped)

	return e, nil
}

// Query returns matching events in chronological (insertion) order.
func (s *Store) Query(ctx context.Context, filter storage.EventFilter) ([]*models.Event, error) {
	return s.repo.List(ctx, filter)
}

// Acknowledge marks a single event acknowledged. Returns
// ErrEventNotFound when no such event exists. The acknowledgment fields
// are set once and never unset.
func (s *Store) Acknowledge(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.repo.Acknowledge(ctx, id, time.Now())
	if err == storage.ErrNotFound {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Count returns the current size of the log.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// MaxEvents returns the retention bound.
func (s *Store) MaxEvents() int {
	return s.maxEvents
}

// Stats returns store statistics.
func (s *Store) Stats() StoreStats {
	return StoreStats{
		Recorded: s.recorded.Load(),
		Dropped:  s.dropped.Load(),
	}
}

// StoreStats contains store statistics.
type StoreStats struct {
	// Recorded is the total number of events recorded.
	Recorded int64 `json:"recorded"`

	// Dropped is the total number of events dropped by retention.
	Dropped int64 `json:"dropped"`
}
