package eventstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/good-yellow-bee/repowatch/internal/metrics"
	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/storage"
)

// flakyRepo wraps a real repository and fails Insert on demand.
type flakyRepo struct {
	storage.EventRepository
	insertErr error
}

func (r *flakyRepo) Insert(ctx context.Context, e *models.Event) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.EventRepository.Insert(ctx, e)
}

func newTestStore(t *testing.T, maxEvents int) *Store {
	t.Helper()
	s := storage.NewSQLiteStorage(":memory:")
	if err := s.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(s.Events(), maxEvents)
}

func TestRecordAssignsFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)

	e, err := store.Record(ctx, &models.Event{
		Severity: models.SeverityError,
		Source:   "ci",
		Message:  "build failed",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if e.ID == "" {
		t.Error("record should assign an id")
	}
	if e.Timestamp.IsZero() {
		t.Error("record should assign a timestamp")
	}
	if e.Fingerprint == "" {
		t.Error("record should assign a fingerprint")
	}

	// Pre-set fields are preserved.
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e2, err := store.Record(ctx, &models.Event{
		ID:          "fixed-id",
		Timestamp:   ts,
		Fingerprint: "fixed-fp",
		Severity:    models.SeverityInfo,
		Source:      "ci",
		Message:     "noted",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if e2.ID != "fixed-id" || e2.Fingerprint != "fixed-fp" || !e2.Timestamp.Equal(ts) {
		t.Errorf("pre-set fields were overwritten: %+v", e2)
	}
}

func TestRecordRetentionBound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 5)

	for i := 0; i < 12; i++ {
		_, err := store.Record(ctx, &models.Event{
			Severity: models.SeverityInfo,
			Source:   "ci",
			Message:  fmt.Sprintf("event %d", i),
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want retention bound 5", count)
	}

	// The survivors are the most recent five, in insertion order.
	events, err := store.Query(ctx, storage.EventFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	for i, e := range events {
		want := fmt.Sprintf("event %d", 7+i)
		if e.Message != want {
			t.Errorf("events[%d].Message = %q, want %q", i, e.Message, want)
		}
	}

	stats := store.Stats()
	if stats.Recorded != 12 {
		t.Errorf("Recorded = %d, want 12", stats.Recorded)
	}
	if stats.Dropped != 7 {
		t.Errorf("Dropped = %d, want 7", stats.Dropped)
	}
}

func TestRecordCountsOnlySuccessfulInserts(t *testing.T) {
	ctx := context.Background()
	s := storage.NewSQLiteStorage(":memory:")
	if err := s.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := &flakyRepo{
		EventRepository: s.Events(),
		insertErr:       &storage.PersistenceError{Op: "insert event", Err: fmt.Errorf("disk full")},
	}
	store := New(repo, 0)

	before := testutil.ToFloat64(metrics.EventsRecorded)
	_, err := store.Record(ctx, &models.Event{
		Severity: models.SeverityError, Source: "ci", Message: "build failed",
	})
	if err == nil {
		t.Fatal("record over a failing repository should return the error")
	}
	if got := testutil.ToFloat64(metrics.EventsRecorded); got != before {
		t.Errorf("EventsRecorded advanced by %v on a failed insert, want 0", got-before)
	}
	if store.Stats().Recorded != 0 {
		t.Errorf("Recorded = %d after failed insert, want 0", store.Stats().Recorded)
	}

	repo.insertErr = nil
	if _, err := store.Record(ctx, &models.Event{
		Severity: models.SeverityError, Source: "ci", Message: "build failed",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(metrics.EventsRecorded); got != before+1 {
		t.Errorf("EventsRecorded advanced by %v on success, want 1", got-before)
	}
	if store.Stats().Recorded != 1 {
		t.Errorf("Recorded = %d, want 1", store.Stats().Recorded)
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seed := []*models.Event{
		{Timestamp: base, Severity: models.SeverityError, Source: "ci", Message: "a"},
		{Timestamp: base.Add(time.Minute), Severity: models.SeverityWarning, Source: "deploy", Message: "b"},
		{Timestamp: base.Add(2 * time.Minute), Severity: models.SeverityError, Source: "ci", Message: "c"},
	}
	for _, e := range seed {
		if _, err := store.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.Query(ctx, storage.EventFilter{Severity: models.SeverityError})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("severity filter returned %d events, want 2", len(got))
	}

	got, err = store.Query(ctx, storage.EventFilter{Source: "deploy", Since: base.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Message != "b" {
		t.Errorf("combined filter returned %+v", got)
	}
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, 0)

	e, err := store.Record(ctx, &models.Event{
		Severity: models.SeverityError,
		Source:   "ci",
		Message:  "build failed",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	acked, err := store.Acknowledge(ctx, e.ID)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if !acked.Acknowledged || acked.AcknowledgedAt == nil {
		t.Error("event should be acknowledged with a timestamp")
	}

	if _, err := store.Acknowledge(ctx, "no-such-id"); err != ErrEventNotFound {
		t.Errorf("Acknowledge(missing) = %v, want ErrEventNotFound", err)
	}
}

func TestMaxEventsDefault(t *testing.T) {
	store := newTestStore(t, 0)
	if store.MaxEvents() != DefaultMaxEvents {
		t.Errorf("MaxEvents = %d, want %d", store.MaxEvents(), DefaultMaxEvents)
	}
	store = newTestStore(t, 25)
	if store.MaxEvents() != 25 {
		t.Errorf("MaxEvents = %d, want 25", store.MaxEvents())
	}
}
