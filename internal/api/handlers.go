package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/eventstore"
	"github.com/good-yellow-bee/repowatch/internal/models"
	"github.com/good-yellow-bee/repowatch/internal/notifier"
	"github.com/good-yellow-bee/repowatch/internal/poller"
	"github.com/good-yellow-bee/repowatch/internal/storage"
	"github.com/good-yellow-bee/repowatch/internal/tracker"
	"github.com/good-yellow-bee/repowatch/pkg/config"
)

// defaultSummaryWindow is used when the summary request names no window.
const defaultSummaryWindow = time.Hour

// Handler handles admin API endpoints.
type Handler struct {
	events     *eventstore.Store
	records    storage.AlertRecordRepository
	tracker    *tracker.Tracker
	orch       *poller.Orchestrator
	gate       *alerting.Gate
	dispatcher *notifier.Dispatcher
	db         healthChecker
}

// NewHandler creates a handler over the injected stores.
func NewHandler(events *eventstore.Store, records storage.AlertRecordRepository, trk *tracker.Tracker, orch *poller.Orchestrator, gate *alerting.Gate, dispatcher *notifier.Dispatcher, db healthChecker) *Handler {
	return &Handler{
		events:     events,
		records:    records,
		tracker:    trk,
		orch:       orch,
		gate:       gate,
		dispatcher: dispatcher,
		db:         db,
	}
}

// Health reports process and database health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, errCodeInternalError, "database unavailable")
			return
		}
	}
	jsonOK(w, map[string]string{"status": "ok"})
}

// ListEvents returns events matching the query filters in
// chronological order.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := storage.EventFilter{
		Source: r.URL.Query().Get("source"),
	}

	if sev := r.URL.Query().Get("severity"); sev != "" {
		s := models.Severity(sev)
		if !s.Valid() {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid severity")
			return
		}
		filter.Severity = s
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid since timestamp, want RFC3339")
			return
		}
		filter.Since = t
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "query events failed")
		return
	}
	jsonOK(w, events)
}

// RecordEvent ingests one observed event into the bounded log. The
// event counts toward windowed threshold alerting on the next
// evaluation.
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Severity string         `json:"severity"`
		Source   string         `json:"source"`
		Message  string         `json:"message"`
		Context  map[string]any `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Source == "" || req.Message == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "source and message are required")
		return
	}
	if req.Severity != "" && !models.Severity(req.Severity).Valid() {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid severity")
		return
	}

	event := models.NewEvent(req.Source, req.Message, models.ParseSeverity(req.Severity))
	if req.Context != nil {
		event.Context = req.Context
	}

	stored, err := h.events.Record(r.Context(), event)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "record event failed")
		return
	}
	jsonOK(w, stored)
}

// AcknowledgeEvent marks one event acknowledged.
func (h *Handler) AcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.events.Acknowledge(r.Context(), id)
	if err == eventstore.ErrEventNotFound {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "event not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "acknowledge failed")
		return
	}
	jsonOK(w, event)
}

// Summary computes windowed counts over the current event log.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if ws := r.URL.Query().Get("window"); ws != "" {
		d, err := time.ParseDuration(ws)
		if err != nil || d <= 0 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid window duration")
			return
		}
		window = d
	}

	events, err := h.events.Query(r.Context(), storage.EventFilter{})
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "query events failed")
		return
	}

	summary := alerting.Summarize(events, time.Now(), window, nil)
	jsonOK(w, summary)
}

// ListAlertRecords returns the fingerprint -> last-fired mapping,
// most recent first.
func (h *Handler) ListAlertRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.List(r.Context(), 100)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "query alert records failed")
		return
	}
	jsonOK(w, records)
}

// ListTargets returns the stored state for every known target.
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	states, err := h.tracker.List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "query target states failed")
		return
	}
	jsonOK(w, states)
}

// ClearPendingPR clears the pending update PR for a target. Called by
// the collaborator when the PR is merged or closed.
func (h *Handler) ClearPendingPR(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	err := h.tracker.ClearPendingPR(r.Context(), target)
	if err != nil {
		if storage.IsPersistenceError(err) {
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "clear pending PR failed")
			return
		}
		jsonError(w, http.StatusNotFound, errCodeNotFound, "unknown target")
		return
	}
	jsonOK(w, map[string]string{"target": target, "pending_update_pr": ""})
}

// ReleasePublished resets the sticky release-notified flag for a target.
func (h *Handler) ReleasePublished(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	err := h.tracker.OnReleasePublished(r.Context(), target)
	if err != nil {
		if storage.IsPersistenceError(err) {
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "release published failed")
			return
		}
		jsonError(w, http.StatusNotFound, errCodeNotFound, "unknown target")
		return
	}
	jsonOK(w, map[string]any{"target": target, "release_notified": false})
}

// Status reports runtime statistics from all components.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"build":  config.Current(),
		"events": h.events.Stats(),
	}
	if h.orch != nil {
		status["poller"] = h.orch.Stats()
		status["targets"] = h.orch.Targets()
	}
	if h.gate != nil {
		status["alerting"] = h.gate.Stats()
	}
	if h.dispatcher != nil {
		status["rate_limit"] = h.dispatcher.RateLimitStats()
	}
	jsonOK(w, status)
}
