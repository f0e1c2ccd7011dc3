// Package api serves the repowatch admin API: event queries and
// acknowledgment, window summaries, alert records, target state, and
// the collaborator hooks for clearing a pending PR and announcing a
// published release.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Server serves the admin API.
type Server struct {
	server  *http.Server
	handler *Handler
	addr    string
}

// NewServer creates the admin API server.
func NewServer(addr string, h *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", h.ListEvents)
		r.Post("/events", h.RecordEvent)
		r.Post("/events/{id}/acknowledge", h.AcknowledgeEvent)
		r.Get("/summary", h.Summary)
		r.Get("/alerts", h.ListAlertRecords)
		r.Get("/targets", h.ListTargets)
		r.Post("/targets/{target}/clear-pending-pr", h.ClearPendingPR)
		r.Post("/targets/{target}/release-published", h.ReleasePublished)
		r.Get("/status", h.Status)
	})

	return &Server{
		addr:    addr,
		handler: h,
		server: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the API server.
func (s *Server) Start() error {
	log.Printf("api server listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("shutting down api server")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}

// healthChecker pings the underlying database.
type healthChecker interface {
	PingContext(ctx context.Context) error
}

var _ healthChecker = (*sql.DB)(nil)
