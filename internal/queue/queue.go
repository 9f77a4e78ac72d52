// Package queue implements the priority request queue of spec §4.G:
// a single heap ordered by (priority, enqueue time), per-tenant admission
// control, and a fixed worker pool. Adapted from the teacher's
// internal/infra/workers.go (generic WorkerPool: context-cancelable,
// wait-group-tracked goroutine pool) and internal/infra/queue.go (lane
// draining under a mutex/cond, wait-time logging callback).
package queue

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

const (
	defaultWorkers       = 10
	maxPerTenantDepth     = 50
	maxTotalDepth         = 200
	pullTimeout           = 5 * time.Second
)

// ClassifyPriority maps a routing tier to a queue priority (spec §4.G).
func ClassifyPriority(tier lucy.Tier) lucy.Priority {
	switch tier {
	case lucy.TierFast:
		return lucy.PriorityHigh
	case lucy.TierFrontier:
		return lucy.PriorityLow
	default:
		return lucy.PriorityNormal
	}
}

// Handler processes one queued request. Panics and errors are both logged
// by the worker loop and never propagate (spec §4.G: "workers are resilient").
type Handler func(ctx context.Context) error

type item struct {
	tenant    string
	priority  lucy.Priority
	handler   Handler
	requestID string
	enqueued  time.Time
	index     int
}

// priorityHeap orders items by (priority, enqueue_ts), both ascending —
// PriorityHigh (0) before PriorityNormal (1) before PriorityLow (2), and
// within a priority, FIFO by enqueue time.
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].enqueued.Before(h[j].enqueued)
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *priorityHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Metrics is the diagnostic snapshot named in spec §4.G.
type Metrics struct {
	Size              int
	TotalEnqueued     int64
	TotalProcessed    int64
	TotalRejected     int64
	ProcessedByPriority map[lucy.Priority]int64
	PerTenantDepth    map[string]int
	IsBusy            bool
}

// Queue is the priority request queue plus its worker pool.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	heap priorityHeap

	tenantDepth map[string]int
	workers     int

	totalEnqueued       int64
	totalProcessed      int64
	totalRejected       int64
	processedByPriority map[lucy.Priority]int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	draining bool

	log *slog.Logger
}

// New creates a queue with the given worker count (spec §4.G default: 10).
func New(workers int) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		heap:                priorityHeap{},
		tenantDepth:         make(map[string]int),
		workers:             workers,
		processedByPriority: make(map[lucy.Priority]int64),
		ctx:                 ctx,
		cancel:              cancel,
		log:                 slog.Default().With("component", "queue"),
	}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.heap)
	return q
}

// Start launches the worker pool.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Enqueue admits a request if tenant and total depth limits allow it.
func (q *Queue) Enqueue(tenant string, priority lucy.Priority, handler Handler, requestID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tenantDepth[tenant] >= maxPerTenantDepth || len(q.heap) >= maxTotalDepth {
		q.totalRejected++
		return false
	}

	heap.Push(&q.heap, &item{
		tenant:    tenant,
		priority:  priority,
		handler:   handler,
		requestID: requestID,
		enqueued:  time.Now(),
	})
	q.tenantDepth[tenant]++
	q.totalEnqueued++
	q.cond.Signal()
	return true
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		it, ok := q.pull()
		if !ok {
			if q.isDraining() {
				return
			}
			continue
		}

		waited := time.Since(it.enqueued)
		if waited > time.Second {
			q.log.Warn("request waited in queue", "request_id", it.requestID, "tenant", it.tenant, "waited_ms", waited.Milliseconds())
		}

		q.invoke(it)

		q.mu.Lock()
		q.tenantDepth[it.tenant]--
		if q.tenantDepth[it.tenant] <= 0 {
			delete(q.tenantDepth, it.tenant)
		}
		q.totalProcessed++
		q.processedByPriority[it.priority]++
		q.mu.Unlock()
	}
}

// invoke runs handler, recovering from any panic so worker goroutines never die.
func (q *Queue) invoke(it *item) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("queue handler panicked", "request_id", it.requestID, "panic", r)
		}
	}()
	if err := it.handler(q.ctx); err != nil {
		q.log.Error("queue handler failed", "request_id", it.requestID, "error", err)
	}
}

// pull waits up to pullTimeout for an item, returning ok=false if the queue
// is draining and empty, or the timeout elapses with nothing to do (in which
// case the worker loop simply tries again).
func (q *Queue) pull() (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	timer := time.AfterFunc(pullTimeout, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()

	deadline := time.Now().Add(pullTimeout)
	for len(q.heap) == 0 && !q.draining {
		if !time.Now().Before(deadline) {
			return nil, false
		}
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil, false
	}
	return heap.Pop(&q.heap).(*item), true
}

func (q *Queue) isDraining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Stop cancels all workers and drains, blocking until every worker exits.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.draining = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}

// Snapshot returns the diagnostic metrics named in spec §4.G.
func (q *Queue) Snapshot() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	perTenant := make(map[string]int, len(q.tenantDepth))
	for k, v := range q.tenantDepth {
		perTenant[k] = v
	}
	byPriority := make(map[lucy.Priority]int64, len(q.processedByPriority))
	for k, v := range q.processedByPriority {
		byPriority[k] = v
	}

	size := len(q.heap)
	return Metrics{
		Size:                size,
		TotalEnqueued:       q.totalEnqueued,
		TotalProcessed:      q.totalProcessed,
		TotalRejected:       q.totalRejected,
		ProcessedByPriority: byPriority,
		PerTenantDepth:      perTenant,
		IsBusy:              size > 2*q.workers,
	}
}
