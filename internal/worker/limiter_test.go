package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_PerKeyBuckets(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("encyclopedic") {
		t.Fatal("first request should pass")
	}
	if limiter.Allow("encyclopedic") {
		t.Error("expected bucket for encyclopedic to be exhausted")
	}
	if !limiter.Allow("academic") {
		t.Error("expected independent bucket for academic")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("general_search") {
			t.Fatalf("request %d rejected by unlimited limiter", i)
		}
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(100, 10)
	limiter.SetRate("broad_search", 0.1, 1)

	if !limiter.Allow("broad_search") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("broad_search") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("general_search") {
		t.Errorf("other key should pass")
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewLimiter(0.01, 1)
	_ = limiter.Wait(context.Background(), "academic")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "academic"); err == nil {
		t.Error("expected wait to fail when the deadline is shorter than the refill")
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)

	start := time.Now()
	if err := limiter.WaitWithDelay(context.Background(), "page_fetch", 50*time.Millisecond); err != nil {
		t.Fatalf("WaitWithDelay failed: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Errorf("expected delay >= 50ms")
	}
}
