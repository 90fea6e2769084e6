package memory

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiterWithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: expected allow, got %v %v", i+1, ok, err)
		}
	}
	if ok, _ := limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute); ok {
		t.Fatalf("4th call should be denied")
	}

	// Other keys have their own window.
	if ok, _ := limiter.Allow(ctx, "login:5.6.7.8", 3, time.Minute); !ok {
		t.Fatalf("different key should be allowed")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute); ok {
		t.Fatalf("window boundary is inclusive; expected deny at exactly 60s")
	}

	now = now.Add(time.Millisecond)
	if ok, _ := limiter.Allow(ctx, "login:1.2.3.4", 3, time.Minute); !ok {
		t.Fatalf("expected allow after window elapsed")
	}
}

func TestRateLimiterDeniedCallsDoNotExtendWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	limiter := NewRateLimiterWithClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = limiter.Allow(ctx, "k", 1, time.Second)
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		if ok, _ := limiter.Allow(ctx, "k", 1, time.Second); ok {
			t.Fatalf("expected deny inside window")
		}
	}
	now = start.Add(1001 * time.Millisecond)
	if ok, _ := limiter.Allow(ctx, "k", 1, time.Second); !ok {
		t.Fatalf("window should reset relative to its start")
	}
}
