// Package tasks implements the BackgroundTask + TaskManager lifecycle of
// spec §4.H: long-running agent work that would otherwise block a chat
// thread runs as a cooperatively cancellable goroutine instead, posting an
// acknowledgement and a final result through a ChatClient. Grounded on
// _examples/original_source/src/lucy/core/task_manager.py (no teacher file
// covers this — the teacher's own internal/tasks package is a distributed,
// CockroachDB-backed cron executor for a different problem, see DESIGN.md)
// but structured with the teacher's concurrency idioms: mutex-guarded state
// (internal/circuitbreaker), context cancellation and panic recovery
// (internal/queue).
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/lucy/internal/lucyerr"
	"github.com/haasonsaas/lucy/internal/messagepool"
	"github.com/haasonsaas/lucy/internal/metrics"
)

// State is a BackgroundTask lifecycle state. Terminal states are sinks:
// Completed, Failed, and Cancelled never transition again.
type State string

const (
	StatePending      State = "pending"
	StateAcknowledged State = "acknowledged"
	StateWorking      State = "working"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

func (s State) isTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) isActive() bool {
	switch s {
	case StatePending, StateAcknowledged, StateWorking:
		return true
	default:
		return false
	}
}

const (
	// maxConcurrentPerTenant is the hard per-tenant concurrency cap (spec §3 invariant).
	maxConcurrentPerTenant = 5
	// maxTaskDuration is the 4-hour safety net; the supervisor governs real duration.
	maxTaskDuration = 14400 * time.Second
	// maxRetainedTerminal is how many terminal tasks are kept in memory (LRU-pruned).
	maxRetainedTerminal = 20
)

// Handler does the actual background work and returns the final response
// text to post to the thread. It must observe ctx cancellation promptly;
// the BackgroundTask's cancellation is cooperative, never forced.
type Handler func(ctx context.Context) (string, error)

// ChatClient posts messages to a thread. Implemented by the channel-specific
// adapters under internal/workspace.
type ChatClient interface {
	PostMessage(ctx context.Context, channelID, threadID, text string) (messageID string, err error)
}

// BackgroundTask is one long-running piece of work bound to a chat thread.
type BackgroundTask struct {
	TaskID       string
	TenantID     string
	ChannelID    string
	ThreadID     string
	Description  string
	ResultText   string
	ErrorText    string
	StartedAt    time.Time
	CompletedAt  time.Time
	ProgressAnchorMsgID string

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// State returns the task's current lifecycle state.
func (t *BackgroundTask) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *BackgroundTask) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.isTerminal() {
		return
	}
	t.state = s
}

// Manager tracks background tasks across all tenants, enforcing the
// per-tenant concurrency cap and pruning old terminal tasks.
type Manager struct {
	mu          sync.Mutex
	tasks       map[string]*BackgroundTask
	tenantCount map[string]int
	pool        *messagepool.Pool
	metrics     *metrics.Collector
	log         *slog.Logger
	now         func() time.Time
}

// NewManager creates a Manager whose pool-sampled acknowledgement, error,
// and deadline messages come from pool, and whose terminal-state
// transitions populate collector's tasks_total{status} counter and
// task_latency_ms histogram (spec §4.D), which internal/slo's
// task_p95_latency_ms SLO and /health/slo's total_tasks read from.
func NewManager(pool *messagepool.Pool, collector *metrics.Collector) *Manager {
	return &Manager{
		tasks:       make(map[string]*BackgroundTask),
		tenantCount: make(map[string]int),
		pool:        pool,
		metrics:     collector,
		log:         slog.Default().With("component", "task-manager"),
		now:         time.Now,
	}
}

// StartTask admits a new background task if the tenant is under its
// concurrency cap, posts an acknowledgement, and spawns handler under the
// MAX_TASK_DURATION safety cap. It returns lucyerr.KindLimitExceeded if the
// tenant already has maxConcurrentPerTenant tasks in flight.
func (m *Manager) StartTask(ctx context.Context, tenant, channelID, threadID, description string, handler Handler, chat ChatClient) (*BackgroundTask, error) {
	m.mu.Lock()
	if m.tenantCount[tenant] >= maxConcurrentPerTenant {
		m.mu.Unlock()
		return nil, lucyerr.New(lucyerr.KindLimitExceeded, fmt.Sprintf("tenant %s already has %d background tasks running", tenant, maxConcurrentPerTenant))
	}
	m.tenantCount[tenant]++
	m.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(context.Background(), maxTaskDuration)
	task := &BackgroundTask{
		TaskID:      "task_" + uuid.NewString(),
		TenantID:    tenant,
		ChannelID:   channelID,
		ThreadID:    threadID,
		Description: description,
		StartedAt:   m.now(),
		state:       StatePending,
		cancel:      cancel,
	}

	m.mu.Lock()
	m.tasks[task.TaskID] = task
	m.mu.Unlock()

	if chat != nil {
		if msgID, err := chat.PostMessage(ctx, channelID, threadID, m.pool.Sample(messagepool.TaskAck)); err != nil {
			m.log.Warn("task ack post failed", "task_id", task.TaskID, "error", err)
		} else {
			task.ProgressAnchorMsgID = msgID
		}
	}
	task.setState(StateAcknowledged)

	go m.run(taskCtx, cancel, task, handler, chat)

	m.log.Info("background task started", "task_id", task.TaskID, "tenant", tenant, "description", truncate(description, 100))
	return task, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, task *BackgroundTask, handler Handler, chat ChatClient) {
	defer cancel()
	defer m.finish(task)

	task.setState(StateWorking)

	resultCh := make(chan taskOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- taskOutcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		text, err := handler(ctx)
		resultCh <- taskOutcome{text: text, err: err}
	}()

	select {
	case out := <-resultCh:
		m.complete(ctx, task, out, chat)
	case <-ctx.Done():
		m.timeoutOrCancel(ctx, task, chat)
	}
}

type taskOutcome struct {
	text string
	err  error
}

func (m *Manager) complete(ctx context.Context, task *BackgroundTask, out taskOutcome, chat ChatClient) {
	task.mu.Lock()
	task.CompletedAt = m.now()
	task.mu.Unlock()

	if out.err != nil {
		task.ErrorText = out.err.Error()
		task.setState(StateFailed)
		m.recordTerminal(task, StateFailed)
		m.log.Error("background task failed", "task_id", task.TaskID, "error", out.err)
		m.postIfPresent(ctx, task, chat, m.pool.Sample(messagepool.TaskError))
		return
	}

	task.ResultText = out.text
	task.setState(StateCompleted)
	elapsed := task.CompletedAt.Sub(task.StartedAt)
	m.recordTerminal(task, StateCompleted)
	m.log.Info("background task completed", "task_id", task.TaskID, "tenant", task.TenantID, "elapsed_s", elapsed.Seconds())
	if out.text != "" {
		m.postIfPresent(ctx, task, chat, out.text)
	}
}

// recordTerminal populates tasks_total{status} and task_latency_ms (spec
// §4.D) once a task reaches a terminal state. Skipped when no collector was
// wired (e.g. a test that doesn't care about metrics).
func (m *Manager) recordTerminal(task *BackgroundTask, status State) {
	if m.metrics == nil {
		return
	}
	m.metrics.TasksTotal.Inc("status", string(status))
	elapsedMS := float64(task.CompletedAt.Sub(task.StartedAt).Milliseconds())
	m.metrics.ObserveTaskLatency(elapsedMS)
}

// timeoutOrCancel distinguishes the 14400s safety net from an explicit
// cancel_task call: both cancel the same context, so the reason is read off
// ctx.Err() (DeadlineExceeded vs Canceled).
func (m *Manager) timeoutOrCancel(ctx context.Context, task *BackgroundTask, chat ChatClient) {
	task.mu.Lock()
	task.CompletedAt = m.now()
	task.mu.Unlock()

	if ctx.Err() == context.DeadlineExceeded {
		task.ErrorText = "task hit 4h safety limit"
		task.setState(StateFailed)
		m.recordTerminal(task, StateFailed)
		m.log.Error("background task safety net", "task_id", task.TaskID, "duration_limit_s", maxTaskDuration.Seconds())
		m.postIfPresent(ctx, task, chat, m.pool.Sample(messagepool.TaskDeadline))
		return
	}

	task.setState(StateCancelled)
	m.recordTerminal(task, StateCancelled)
	m.log.Info("background task cancelled", "task_id", task.TaskID)
}

func (m *Manager) postIfPresent(ctx context.Context, task *BackgroundTask, chat ChatClient, text string) {
	if chat == nil || text == "" {
		return
	}
	// Use a detached context: the task's own context is already
	// cancelled/expired by the time we post the final message.
	if _, err := chat.PostMessage(context.Background(), task.ChannelID, task.ThreadID, text); err != nil {
		m.log.Warn("task result post failed", "task_id", task.TaskID, "error", err)
	}
}

func (m *Manager) finish(task *BackgroundTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenantCount[task.TenantID]--
	if m.tenantCount[task.TenantID] <= 0 {
		delete(m.tenantCount, task.TenantID)
	}
	m.pruneLocked()
}

// CancelTask signals a running task's cancellation token. It returns false
// if the task is unknown or already in a terminal state.
func (m *Manager) CancelTask(taskID string) bool {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if task.State().isTerminal() {
		return false
	}
	task.cancel()
	return true
}

// GetTask returns a task by id, or nil if unknown.
func (m *Manager) GetTask(taskID string) *BackgroundTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[taskID]
}

// GetActiveForThread returns the task currently bound to threadID, if any,
// used to short-circuit new requests that belong to an in-flight job.
func (m *Manager) GetActiveForThread(threadID string) *BackgroundTask {
	if threadID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ThreadID == threadID && t.State().isActive() {
			return t
		}
	}
	return nil
}

// pruneLocked keeps at most maxRetainedTerminal terminal tasks, evicting
// the oldest-completed first. Callers must hold m.mu.
func (m *Manager) pruneLocked() {
	var terminal []*BackgroundTask
	for _, t := range m.tasks {
		if t.State().isTerminal() {
			terminal = append(terminal, t)
		}
	}
	if len(terminal) <= maxRetainedTerminal {
		return
	}
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].CompletedAt.Before(terminal[j].CompletedAt) })
	for _, t := range terminal[:len(terminal)-maxRetainedTerminal] {
		delete(m.tasks, t.TaskID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
