package notifier

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool          // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// RateLimiter bounds the notification rate using a token bucket that
// refills at MaxPerWindow tokens per Window with a burst of
// MaxPerWindow.
type RateLimiter struct {
	limiter *rate.Limiter
	enabled bool
	allowed atomic.Int64
	dropped atomic.Int64
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	perSecond := float64(config.MaxPerWindow) / config.Window.Seconds()
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), config.MaxPerWindow),
		enabled: config.Enabled,
	}
}

// Allow checks if a notification is allowed under the rate limit.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}

	if r.limiter.Allow() {
		r.allowed.Add(1)
		return true
	}
	r.dropped.Add(1)
	return false
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Allowed: r.allowed.Load(),
		Dropped: r.dropped.Load(),
		Enabled: r.enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	// Allowed is the total number of notifications allowed through.
	Allowed int64 `json:"allowed"`

	// Dropped is the total number of notifications dropped.
	Dropped int64 `json:"dropped"`

	// Enabled reports whether rate limiting is active.
	Enabled bool `json:"enabled"`
}
