package vhauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckRateDeniesAfterPolicy(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(t, testConfig(), clock)
	engine.roll = func() float64 { return 1 }
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := engine.CheckRate(ctx, RateLogin, "10.0.0.1", "alice@example.org")
		if err != nil || !d.Allowed {
			t.Fatalf("attempt %d: expected allowed, got %+v err=%v", i, d, err)
		}
		if d.Count != i {
			t.Fatalf("attempt %d: expected count %d, got %d", i, i, d.Count)
		}
	}

	d, err := engine.CheckRate(ctx, RateLogin, "10.0.0.1", "alice@example.org")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if d.Allowed || d.RetryAfterSeconds != int((15*time.Minute).Seconds()) {
		t.Fatalf("unexpected denial: %+v", d)
	}

	// other identifiers and IPs have their own windows
	if _, err := engine.CheckRate(ctx, RateLogin, "10.0.0.1", "bob@example.org"); err != nil {
		t.Fatalf("other identifier should be allowed: %v", err)
	}
	if _, err := engine.CheckRate(ctx, RateLogin, "10.0.0.2", "alice@example.org"); err != nil {
		t.Fatalf("other ip should be allowed: %v", err)
	}

	clock.Advance(15*time.Minute + time.Second)
	if _, err := engine.CheckRate(ctx, RateLogin, "10.0.0.1", "alice@example.org"); err != nil {
		t.Fatalf("expected window to lapse, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}

func TestResetRateAndStatus(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newTestClock())
	engine.roll = func() float64 { return 1 }
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := engine.CheckRate(ctx, RateRegister, "10.0.0.1", ""); err != nil && i < 3 {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	st, err := engine.RateStatus(ctx, "10.0.0.1", "", RateRegister)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !st.Blocked || st.MaxAttempts != 3 {
		t.Fatalf("expected blocked status, got %+v", st)
	}

	if err := engine.ResetRate(ctx, "10.0.0.1", "", RateRegister); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	st, err = engine.RateStatus(ctx, "10.0.0.1", "", RateRegister)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.Blocked || st.Attempts != 0 {
		t.Fatalf("expected clean status after reset, got %+v", st)
	}
}

func TestCheckRateUnknownAction(t *testing.T) {
	engine := newTestEngine(t, testConfig(), newTestClock())
	if _, err := engine.CheckRate(context.Background(), RateAction("upload"), "10.0.0.1", ""); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRateLimitSharedThroughRedis(t *testing.T) {
	clock := newTestClock()
	engine, _ := newRedisTestEngine(t, testConfig(), clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := engine.CheckRate(ctx, RateRefresh, "10.0.0.1", "sess"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := engine.CheckRate(ctx, RateRefresh, "10.0.0.1", "sess"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestMaybeSweepRateHonorsProbability(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(t, testConfig(), clock)
	ctx := context.Background()

	engine.roll = func() float64 { return 1 }
	if _, err := engine.CheckRate(ctx, RateAPI, "10.0.0.1", ""); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	clock.Advance(2 * time.Hour)

	engine.roll = func() float64 { return 0 }
	engine.MaybeSweepRate(ctx)
	if got := engine.MetricsSnapshot().Counters[MetricRateEntriesSwept]; got != 1 {
		t.Fatalf("expected one swept window, got %d", got)
	}
}
