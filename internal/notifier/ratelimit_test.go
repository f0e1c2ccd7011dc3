package notifier

import (
	"testing"
	"time"
)

func TestRateLimiterBurst(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{
		MaxPerWindow: 3,
		Window:       time.Hour,
		Enabled:      true,
	})

	for i := 0; i < 3; i++ {
		if !r.Allow() {
			t.Fatalf("call %d should be allowed within the burst", i)
		}
	}
	if r.Allow() {
		t.Fatal("call beyond the burst should be dropped")
	}

	stats := r.Stats()
	if stats.Allowed != 3 || stats.Dropped != 1 {
		t.Errorf("stats = %+v, want 3 allowed, 1 dropped", stats)
	}
	if !stats.Enabled {
		t.Error("stats should report the limiter enabled")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{
		MaxPerWindow: 1,
		Window:       time.Hour,
		Enabled:      false,
	})

	for i := 0; i < 50; i++ {
		if !r.Allow() {
			t.Fatal("disabled limiter should allow everything")
		}
	}
	if r.Stats().Dropped != 0 {
		t.Error("disabled limiter should never drop")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	// Zero values fall back to defaults rather than a zero-rate limiter.
	r := NewRateLimiter(RateLimitConfig{Enabled: true})
	if !r.Allow() {
		t.Error("defaulted limiter should allow the first call")
	}
}
