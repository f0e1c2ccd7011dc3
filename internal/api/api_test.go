package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/eventstore"
	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/notifier"
	"github.com/good-yellow-bee/repowatch/internal/storage"
	"github.com/good-yellow-bee/repowatch/internal/tracker"
	"github.com/good-yellow-bee/repowatch/pkg/config"
)

type apiEnv struct {
	ts      *httptest.Server
	events  *eventstore.Store
	tracker *tracker.Tracker
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := storage.NewSQLiteStorage(":memory:")
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	events := eventstore.New(store.Events(), 0)
	trk := tracker.New(store.TargetStates())
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{Enabled: false})
	gate := alerting.NewGate(alerting.Config{
		Threshold: 10,
		Window:    time.Hour,
		Silence:   15 * time.Minute,
	}, store.AlertRecords(), dispatcher)

	h := NewHandler(events, store.AlertRecords(), trk, nil, gate, dispatcher, store.DB())
	srv := NewServer(":0", h)

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	return &apiEnv{ts: ts, events: events, tracker: trk}
}

func (e *apiEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf
}

func (e *apiEnv) post(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(e.ts.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf
}

func (e *apiEnv) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	buf, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func decodeData(t *testing.T, body []byte, out any) {
	t.Helper()
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		t.Fatalf("decode envelope: %v (body: %s)", err, body)
	}
	if err := json.Unmarshal(wrapper.Data, out); err != nil {
		t.Fatalf("decode data: %v (data: %s)", err, wrapper.Data)
	}
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)
	resp, body := env.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, body)
	}
	var data map[string]string
	decodeData(t, body, &data)
	if data["status"] != "ok" {
		t.Errorf("status = %q, want ok", data["status"])
	}
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	env := newAPIEnv(t)

	for _, e := range []*models.Event{
		{Severity: models.SeverityError, Source: "ci", Message: "a"},
		{Severity: models.SeverityInfo, Source: "deploy", Message: "b"},
	} {
		if _, err := env.events.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	resp, body := env.get(t, "/api/v1/events")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var events []*models.Event
	decodeData(t, body, &events)
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}

	resp, body = env.get(t, "/api/v1/events?severity=error")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	decodeData(t, body, &events)
	if len(events) != 1 || events[0].Source != "ci" {
		t.Errorf("severity filter returned %+v", events)
	}
}

func TestListEventsBadQuery(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.get(t, "/api/v1/events?severity=bogus")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid severity status = %d, want 400", resp.StatusCode)
	}

	resp, _ = env.get(t, "/api/v1/events?since=yesterday")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid since status = %d, want 400", resp.StatusCode)
	}
}

func TestRecordEvent(t *testing.T) {
	ctx := context.Background()
	env := newAPIEnv(t)

	resp, body := env.postJSON(t, "/api/v1/events", map[string]any{
		"severity": "error",
		"source":   "ingest/checkout",
		"message":  "timeout talking to payment gateway",
		"context":  map[string]any{"region": "eu-west-1"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, body)
	}
	var stored models.Event
	decodeData(t, body, &stored)
	if stored.ID == "" || stored.Fingerprint == "" {
		t.Errorf("stored event missing id or fingerprint: %+v", stored)
	}
	if stored.Severity != models.SeverityError {
		t.Errorf("severity = %s, want error", stored.Severity)
	}

	events, err := env.events.Query(ctx, storage.EventFilter{Source: "ingest/checkout"})
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) != 1 || events[0].GetContextString("region") != "eu-west-1" {
		t.Errorf("persisted events = %+v", events)
	}
}

func TestRecordEventRejectsBadInput(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"missing source", map[string]any{"severity": "error", "message": "m"}},
		{"missing message", map[string]any{"severity": "error", "source": "ci"}},
		{"invalid severity", map[string]any{"severity": "catastrophic", "source": "ci", "message": "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.postJSON(t, "/api/v1/events", tt.payload)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body: %s)", resp.StatusCode, body)
			}
		})
	}

	resp, _ := env.post(t, "/api/v1/events")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", resp.StatusCode)
	}
}

func TestAcknowledgeEvent(t *testing.T) {
	ctx := context.Background()
	env := newAPIEnv(t)

	e, err := env.events.Record(ctx, &models.Event{
		Severity: models.SeverityError, Source: "ci", Message: "build failed",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	resp, body := env.post(t, "/api/v1/events/"+e.ID+"/acknowledge")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body: %s", resp.StatusCode, body)
	}
	var acked models.Event
	decodeData(t, body, &acked)
	if !acked.Acknowledged {
		t.Error("event should be acknowledged")
	}

	resp, _ = env.post(t, "/api/v1/events/no-such-id/acknowledge")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing event status = %d, want 404", resp.StatusCode)
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	env := newAPIEnv(t)

	for i := 0; i < 3; i++ {
		if _, err := env.events.Record(ctx, &models.Event{
			Severity: models.SeverityError, Source: "ci", Message: "build failed",
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	resp, body := env.get(t, "/api/v1/summary?window=30m")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var summary alerting.Summary
	decodeData(t, body, &summary)
	if summary.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", summary.TotalCount)
	}

	resp, _ = env.get(t, "/api/v1/summary?window=banana")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid window status = %d, want 400", resp.StatusCode)
	}
}

func TestTargetEndpoints(t *testing.T) {
	ctx := context.Background()
	env := newAPIEnv(t)

	if err := env.tracker.Persist(ctx, &models.TargetState{
		Target:          "acme-api",
		PendingUpdatePR: "pr-41",
		ReleaseNotified: true,
		UpdatedAt:       time.Now().UTC(),
	}); err != nil {
		t.Fatalf("persist state: %v", err)
	}

	resp, body := env.get(t, "/api/v1/targets")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var states []*models.TargetState
	decodeData(t, body, &states)
	if len(states) != 1 || states[0].PendingUpdatePR != "pr-41" {
		t.Errorf("targets = %+v", states)
	}

	resp, _ = env.post(t, "/api/v1/targets/acme-api/clear-pending-pr")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	state, _ := env.tracker.Load(ctx, "acme-api")
	if state.PendingUpdatePR != "" {
		t.Error("pending PR should be cleared")
	}

	resp, _ = env.post(t, "/api/v1/targets/acme-api/release-published")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("release-published status = %d", resp.StatusCode)
	}
	state, _ = env.tracker.Load(ctx, "acme-api")
	if state.ReleaseNotified {
		t.Error("release notified flag should be cleared")
	}

	resp, _ = env.post(t, "/api/v1/targets/unknown/clear-pending-pr")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown target status = %d, want 404", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.get(t, "/api/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status map[string]json.RawMessage
	decodeData(t, body, &status)
	if _, ok := status["events"]; !ok {
		t.Error("status should include event store stats")
	}
	var build config.Info
	if err := json.Unmarshal(status["build"], &build); err != nil {
		t.Fatalf("decode build info: %v", err)
	}
	if build.Version == "" || build.GoVersion == "" {
		t.Errorf("build info = %+v, want version and go version set", build)
	}
	if _, ok := status["rate_limit"]; !ok {
		t.Error("status should include rate limit stats")
	}
}
