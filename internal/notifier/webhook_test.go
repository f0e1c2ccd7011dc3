package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
	"github.com/good-yellow-bee/repowatch/internal/models"
)

func TestWebhookConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  WebhookConfig
		wantErr bool
	}{
		{"valid https", WebhookConfig{URL: "https://hooks.example.com/x"}, false},
		{"valid http", WebhookConfig{URL: "http://localhost:9000/hook"}, false},
		{"missing url", WebhookConfig{}, true},
		{"bad scheme", WebhookConfig{URL: "ftp://example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWebhookNotifier(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewWebhookNotifier error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookSend(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	if sink.Name() != "webhook" {
		t.Errorf("default name = %q, want webhook", sink.Name())
	}

	firedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := &alerting.Notification{
		Fingerprint: "fp-1",
		Severity:    models.SeverityError,
		Message:     "build failed",
		Count:       12,
		Threshold:   10,
		Window:      time.Hour,
		FiredAt:     firedAt,
		Events: []*models.Event{
			{ID: "ev-1", Timestamp: firedAt, Severity: models.SeverityError, Source: "ci", Message: "build failed"},
		},
	}
	if err := sink.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}

	if received.Fingerprint != "fp-1" || received.Severity != "error" || received.Count != 12 {
		t.Errorf("payload = %+v", received)
	}
	if received.FiredAt != firedAt.Format(time.RFC3339) {
		t.Errorf("fired_at = %q", received.FiredAt)
	}
	if len(received.Events) != 1 || received.Events[0].ID != "ev-1" {
		t.Errorf("events = %+v", received.Events)
	}
}

func TestWebhookSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	sink, err := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	if err := sink.Send(context.Background(), testNotification()); err == nil {
		t.Error("non-2xx response should be an error")
	}
}

func TestWebhookSendUnreachable(t *testing.T) {
	sink, err := NewWebhookNotifier(WebhookConfig{
		URL:     "http://127.0.0.1:1", // nothing listens here
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewWebhookNotifier: %v", err)
	}
	if err := sink.Send(context.Background(), testNotification()); err == nil {
		t.Error("unreachable endpoint should be an error")
	}
}
