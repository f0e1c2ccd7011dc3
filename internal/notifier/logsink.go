package notifier

import (
	"context"
	"log"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
)

// LogNotifier writes notifications to the process log. Used as the
// default sink when no webhook is configured.
type LogNotifier struct{}

// NewLogNotifier creates a new log notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Name returns "log".
func (l *LogNotifier) Name() string {
	return "log"
}

// Send writes the notification to the process log.
func (l *LogNotifier) Send(ctx context.Context, n *alerting.Notification) error {
	log.Printf("ALERT [%s] %s (fingerprint=%s count=%d)",
		n.Severity, n.Message, n.Fingerprint, n.Count)
	return nil
}

// Close is a no-op for the log notifier.
func (l *LogNotifier) Close() error {
	return nil
}
