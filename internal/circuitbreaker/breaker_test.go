package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_InitialState(t *testing.T) {
	b := New("svc", DefaultConfig())
	if b.State() != Closed {
		t.Errorf("expected initial state closed, got %s", b.State())
	}
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := New("svc", Config{FailureThreshold: 3, MinimumCalls: 1})
	for i := 0; i < 10; i++ {
		err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.State() != Closed {
		t.Errorf("expected state to remain closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterMinimumCallsAndThreshold(t *testing.T) {
	b := New("svc", Config{FailureThreshold: 3, MinimumCalls: 3})
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error { return boom })
	}
	if b.State() != Closed {
		t.Fatalf("expected closed before minimum_calls reached, got %s", b.State())
	}

	_ = b.Call(context.Background(), func(ctx context.Context) error { return boom })
	if b.State() != Open {
		t.Fatalf("expected open once failure_threshold and minimum_calls both met, got %s", b.State())
	}
}

func TestBreaker_OpenRejectsUntilRecoveryTimeout(t *testing.T) {
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("svc", Config{FailureThreshold: 1, MinimumCalls: 1, RecoveryTimeout: 10 * time.Second})
	b.now = func() time.Time { return cur }

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if b.State() != Open {
		t.Fatalf("expected open after single failure at threshold 1")
	}

	err := b.Call(context.Background(), func(ctx context.Context) error { return nil })
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenError while recovery_timeout has not elapsed, got %v", err)
	}

	cur = cur.Add(11 * time.Second)
	err = b.Call(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected half-open probe to succeed and close the breaker: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after a successful half-open probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("svc", Config{FailureThreshold: 1, MinimumCalls: 1, RecoveryTimeout: 10 * time.Second})
	b.now = func() time.Time { return cur }

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	cur = cur.Add(11 * time.Second)

	err := b.Call(context.Background(), func(ctx context.Context) error { return errors.New("still broken") })
	if err == nil {
		t.Fatalf("expected the probe's own error to propagate")
	}
	if b.State() != Open {
		t.Fatalf("expected a failed half-open probe to reopen the breaker, got %s", b.State())
	}
}

func TestBreaker_HalfOpenMaxCallsLimitsConcurrentProbes(t *testing.T) {
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("svc", Config{FailureThreshold: 1, MinimumCalls: 1, RecoveryTimeout: 10 * time.Second, HalfOpenMaxCalls: 1})
	b.now = func() time.Time { return cur }

	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	cur = cur.Add(11 * time.Second)

	b.mu.Lock()
	b.transitionToHalfOpen()
	b.halfOpenInflight = 1
	b.mu.Unlock()

	err := b.before()
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected a second concurrent half-open probe to be rejected, got %v", err)
	}
}

func TestRegistry_ReturnsSameInstanceForName(t *testing.T) {
	r := NewRegistry(DefaultConfig(), nil)
	a := r.Get("composio_api")
	b := r.Get("composio_api")
	if a != b {
		t.Fatalf("expected registry to return a singleton per name")
	}
}

func TestRegistry_AppliesPerDependencyOverride(t *testing.T) {
	r := NewRegistry(DefaultConfig(), map[string]Config{
		"composio_api": {FailureThreshold: 1, MinimumCalls: 1},
	})
	b := r.Get("composio_api")
	_ = b.Call(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if b.State() != Open {
		t.Fatalf("expected override's low threshold to trip the breaker on first failure")
	}
}
