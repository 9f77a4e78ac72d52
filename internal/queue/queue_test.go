package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

func TestClassifyPriority(t *testing.T) {
	cases := map[lucy.Tier]lucy.Priority{
		lucy.TierFast:     lucy.PriorityHigh,
		lucy.TierFrontier: lucy.PriorityLow,
		lucy.TierDefault:  lucy.PriorityNormal,
		lucy.TierCode:     lucy.PriorityNormal,
	}
	for tier, want := range cases {
		if got := ClassifyPriority(tier); got != want {
			t.Errorf("ClassifyPriority(%s) = %v, want %v", tier, got, want)
		}
	}
}

func TestQueue_RejectsOverTenantDepth(t *testing.T) {
	q := New(1)
	ok := true
	for i := 0; i < maxPerTenantDepth; i++ {
		ok = q.Enqueue("tenant-a", lucy.PriorityNormal, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}, "req")
		if !ok {
			t.Fatalf("enqueue %d should have succeeded before hitting the per-tenant limit", i)
		}
	}
	if q.Enqueue("tenant-a", lucy.PriorityNormal, func(ctx context.Context) error { return nil }, "overflow") {
		t.Fatalf("expected enqueue to be rejected once per-tenant depth limit is reached")
	}
}

func TestQueue_ProcessesHighPriorityBeforeLow(t *testing.T) {
	q := New(1)
	var mu sync.Mutex
	var order []string

	q.Enqueue("t1", lucy.PriorityLow, func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		return nil
	}, "low-1")
	q.Enqueue("t1", lucy.PriorityHigh, func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		return nil
	}, "high-1")

	q.Start()
	defer q.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(order) == 2
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "high" {
		t.Fatalf("order = %v, want high processed first", order)
	}
}

func TestQueue_HandlerPanicDoesNotKillWorker(t *testing.T) {
	q := New(1)
	q.Start()
	defer q.Stop()

	q.Enqueue("t1", lucy.PriorityNormal, func(ctx context.Context) error {
		panic("boom")
	}, "panicking")

	var ran atomic.Bool
	q.Enqueue("t1", lucy.PriorityNormal, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}, "after-panic")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !ran.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	if !ran.Load() {
		t.Fatalf("expected the worker to keep processing after a handler panic")
	}
}

func TestQueue_SnapshotReflectsBusyThreshold(t *testing.T) {
	q := New(2)
	for i := 0; i < 5; i++ {
		q.Enqueue("t1", lucy.PriorityNormal, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}, "req")
	}
	snap := q.Snapshot()
	if !snap.IsBusy {
		t.Fatalf("expected is_busy when size (%d) > 2*workers (%d)", snap.Size, 2*q.workers)
	}
	q.Stop()
}
