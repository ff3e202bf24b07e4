package middleware

import (
	"testing"
	"time"
)

func TestKeyedLimiterAllowsBurstThenBlocks(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(2, time.Minute, 2, time.Hour)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("login:10.0.0.1") || !limiter.Allow("login:10.0.0.1") {
		t.Fatal("expected burst to be allowed")
	}
	if limiter.Allow("login:10.0.0.1") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("login:10.0.0.2") {
		t.Fatal("expected other keys to be unaffected")
	}

	now = now.Add(30 * time.Second)
	if !limiter.Allow("login:10.0.0.1") {
		t.Fatal("expected a token to refill after half the window")
	}
}

func TestKeyedLimiterForgetsIdleKeys(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(10, time.Minute, 1, time.Minute)
	limiter.WithNowFunc(func() time.Time { return now })

	limiter.Allow("a")
	limiter.Allow("b")
	if limiter.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", limiter.Len())
	}

	now = now.Add(2 * time.Minute)
	limiter.Allow("c")
	if limiter.Len() != 1 {
		t.Fatalf("expected idle keys to be swept, got %d", limiter.Len())
	}
}
