// Package storage provides SQLite-backed persistence for repowatch:
// the bounded event log, the alert-record mapping, and per-target state.
// All three survive process restarts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a failure to write local storage. It is
// surfaced to callers rather than swallowed; callers decide whether to
// proceed with in-memory state only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err is (or wraps) a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// EventFilter selects events from the log. Zero values match everything.
type EventFilter struct {
	Since    time.Time
	Severity models.Severity
	Source   string
}

// EventRepository persists the bounded event log.
type EventRepository interface {
	// Insert appends an event to the log.
	Insert(ctx context.Context, e *models.Event) error
	// TrimToMostRecent drops all but the most recent n events and
	// returns how many were dropped.
	TrimToMostRecent(ctx context.Context, n int) (int64, error)
	// List returns matching events in insertion order.
	List(ctx context.Context, filter EventFilter) ([]*models.Event, error)
	// Get returns one event by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Event, error)
	// Acknowledge marks an event acknowledged at the given time.
	// Returns ErrNotFound when the event does not exist. Acknowledging
	// an already-acknowledged event leaves the original timestamp.
	Acknowledge(ctx context.Context, id string, at time.Time) (*models.Event, error)
	// Count returns the number of events in the log.
	Count(ctx context.Context) (int64, error)
}

// AlertRecordRepository persists the fingerprint -> last-fired mapping.
// At most one row exists per fingerprint.
type AlertRecordRepository interface {
	Get(ctx context.Context, fingerprint string) (*models.AlertRecord, error)
	Upsert(ctx context.Context, record *models.AlertRecord) error
	List(ctx context.Context, limit int) ([]*models.AlertRecord, error)
}

// TargetStateRepository persists per-target state. Get returns nil
// without error for an unknown target (first poll).
type TargetStateRepository interface {
	Get(ctx context.Context, target string) (*models.TargetState, error)
	Put(ctx context.Context, state *models.TargetState) error
	List(ctx context.Context) ([]*models.TargetState, error)
	ClearPendingPR(ctx context.Context, target string) error
	SetReleaseNotified(ctx context.Context, target string, notified bool) error
}
