package httpx

import (
	"testing"
	"time"
)

func TestMemoryRateLimiterAllowsWithinLimit(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		decision := limiter.Allow("ip:10.0.0.1", 3, time.Minute)
		if !decision.allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}

	decision := limiter.Allow("ip:10.0.0.1", 3, time.Minute)
	if decision.allowed {
		t.Fatalf("fourth request should be denied")
	}
	if decision.count != 3 {
		t.Fatalf("expected count 3, got %d", decision.count)
	}
}

func TestMemoryRateLimiterIsolatesKeys(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	defer limiter.Close()

	if !limiter.Allow("ip:10.0.0.1", 1, time.Minute).allowed {
		t.Fatalf("first key should be allowed")
	}
	if limiter.Allow("ip:10.0.0.1", 1, time.Minute).allowed {
		t.Fatalf("first key should now be exhausted")
	}
	if !limiter.Allow("ip:10.0.0.2", 1, time.Minute).allowed {
		t.Fatalf("second key must not share the first key's window")
	}
}

func TestMemoryRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	defer limiter.Close()

	window := 20 * time.Millisecond
	if !limiter.Allow("ip:10.0.0.1", 1, window).allowed {
		t.Fatalf("first request should be allowed")
	}
	if limiter.Allow("ip:10.0.0.1", 1, window).allowed {
		t.Fatalf("second request should hit the limit")
	}

	time.Sleep(window + 10*time.Millisecond)
	if !limiter.Allow("ip:10.0.0.1", 1, window).allowed {
		t.Fatalf("request after window expiry should be allowed")
	}
}

func TestMemoryRateLimiterCloseIsIdempotent(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	limiter.Close()
	limiter.Close()
}

func TestRateMetricKey(t *testing.T) {
	if got := rateMetricKey("ip:10.0.0.1"); got != "ip" {
		t.Fatalf("expected ip, got %q", got)
	}
	if got := rateMetricKey("global"); got != "other" {
		t.Fatalf("expected other, got %q", got)
	}
}
