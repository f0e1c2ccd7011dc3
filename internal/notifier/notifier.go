// Package notifier provides notification dispatching for fired alerts
// and newly detected conditions.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/good-yellow-bee/repowatch/internal/alerting"
)

// Notifier is the interface for all notification sinks.
type Notifier interface {
	// Name returns the sink name (e.g. "webhook", "log").
	Name() string
	// Send delivers one notification.
	Send(ctx context.Context, n *alerting.Notification) error
	// Close releases any resources.
	Close() error
}

// ErrRateLimited is returned when a notification is dropped due to rate
// limiting.
var ErrRateLimited = errors.New("notification rate limited")

// DispatchError wraps a sink delivery failure. The orchestrator logs it
// and leaves the condition's state unadvanced, so it is retried on the
// next cycle.
type DispatchError struct {
	Sink string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Sink, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsDispatchError reports whether err is (or wraps) a DispatchError.
func IsDispatchError(err error) bool {
	var de *DispatchError
	return errors.As(err, &de)
}

// Dispatcher fans a notification out to every registered sink.
// It implements alerting.Dispatcher.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	limiter   *RateLimiter
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate
// limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers: make(map[string]Notifier),
		limiter:   NewRateLimiter(config),
	}
}

// Register adds a sink to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Unregister removes a sink.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.notifiers, name)
}

// Get returns a sink by name.
func (d *Dispatcher) Get(name string) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[name]
	return n, ok
}

// Dispatch sends a notification to every registered sink. It returns
// ErrRateLimited when the notification is dropped by rate limiting, and
// an aggregate error when any sink fails, so callers can decide whether
// to advance state.
func (d *Dispatcher) Dispatch(ctx context.Context, n *alerting.Notification) error {
	if d.limiter != nil && !d.limiter.Allow() {
		return ErrRateLimited
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var errs []error
	for name, sink := range d.notifiers {
		if err := sink.Send(ctx, n); err != nil {
			errs = append(errs, &DispatchError{Sink: name, Err: err})
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.limiter == nil {
		return RateLimitStats{}
	}
	return d.limiter.Stats()
}

// Close closes all registered sinks.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
