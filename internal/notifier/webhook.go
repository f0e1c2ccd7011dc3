package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
)

// WebhookConfig holds webhook sink configuration.
type WebhookConfig struct {
	// Name identifies the sink; defaults to "webhook".
	Name string
	// URL is the webhook endpoint.
	URL string
	// Timeout bounds each delivery (default: 30s).
	Timeout time.Duration
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("webhook URL must be http(s)")
	}
	return nil
}

// WebhookNotifier posts notifications as JSON to a webhook endpoint.
type WebhookNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(config WebhookConfig) (*WebhookNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if config.Name == "" {
		config.Name = "webhook"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &WebhookNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Name returns the configured sink name.
func (w *WebhookNotifier) Name() string {
	return w.config.Name
}

// Send posts the notification to the webhook endpoint.
func (w *WebhookNotifier) Send(ctx context.Context, n *alerting.Notification) error {
	payload := webhookPayload{
		Fingerprint: n.Fingerprint,
		Severity:    string(n.Severity),
		Message:     n.Message,
		Count:       n.Count,
		Threshold:   n.Threshold,
		Window:      n.Window.String(),
		FiredAt:     n.FiredAt.Format(time.RFC3339),
	}
	for _, e := range n.Events {
		payload.Events = append(payload.Events, webhookEvent{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Severity:  string(e.Severity),
			Source:    e.Source,
			Message:   e.Message,
		})
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for the webhook notifier.
func (w *WebhookNotifier) Close() error {
	return nil
}

// webhookPayload is the JSON body posted to the webhook.
type webhookPayload struct {
	Fingerprint string         `json:"fingerprint"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Count       int            `json:"count,omitempty"`
	Threshold   int            `json:"threshold,omitempty"`
	Window      string         `json:"window,omitempty"`
	FiredAt     string         `json:"fired_at"`
	Events      []webhookEvent `json:"events,omitempty"`
}

type webhookEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}
