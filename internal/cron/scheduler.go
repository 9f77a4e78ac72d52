// Package cron implements the CronScheduler of spec §4.L: on startup it
// enumerates every tenant from the WorkspaceStore, loads each tenant's
// crons/*/task.json definitions, and fires them on a robfig/cron/v3
// schedule that invokes the AgentOrchestrator in cron execution mode with
// accumulated learnings appended to the job's instruction. Grounded on the
// teacher's internal/cron/scheduler.go (Option-style construction wrapping
// a single cron engine, execution bookkeeping, reload/trigger-now
// entrypoints) narrowed from its message/webhook/agent/custom job taxonomy
// down to the source's single job shape (_examples/original_source/
// src/lucy/core/cron_scheduler.py) plus a fixed-interval, agent-free sync
// job per tenant.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/lucy/internal/config"
	"github.com/haasonsaas/lucy/internal/workspace"
)

// cronParser accepts a standard 5-field POSIX cron expression (spec §6) plus
// the "@every"/"@hourly"-style descriptors the teacher's own parser allows,
// used here only for the internal sync job's fixed interval.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// JobSpec is the on-disk shape of crons/<slug>/task.json (spec §6).
type JobSpec struct {
	Path        string `json:"path"`
	Cron        string `json:"cron"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Job is one loaded, schedulable cron job (spec §3's CronJob).
type Job struct {
	TenantID    string
	Slug        string
	Path        string
	CronExpr    string
	Title       string
	Description string
}

func (j Job) key() string { return j.TenantID + "/" + j.Slug }

// Runner invokes the agent orchestrator in cron execution mode for one job
// firing, returning the final response text (spec §4.L: "invoke the
// AgentOrchestrator in cron execution mode").
type Runner interface {
	RunCron(ctx context.Context, tenantID, instruction string) (string, error)
}

// RunnerFunc adapts a function to a Runner.
type RunnerFunc func(ctx context.Context, tenantID, instruction string) (string, error)

// RunCron calls f.
func (f RunnerFunc) RunCron(ctx context.Context, tenantID, instruction string) (string, error) {
	return f(ctx, tenantID, instruction)
}

// firingTimeout bounds one cron job's orchestrator call so a stuck job
// never blocks the scheduler's single tick goroutine indefinitely.
const firingTimeout = 5 * time.Minute

// Scheduler discovers per-tenant cron jobs from a workspace.StoreFactory and
// fires them on a single underlying robfig/cron/v3 engine. "Coalesce missed
// runs" and "single instance per job" (spec §4.L) come from the engine's
// own next-run computation (a missed tick is simply not replayed, it waits
// for the next scheduled time) plus cron.SkipIfStillRunning.
type Scheduler struct {
	mu        sync.Mutex
	engine    *cron.Cron
	stores    workspace.StoreFactory
	runner    Runner
	log       *slog.Logger
	syncEvery time.Duration
	entries   map[string]cron.EntryID
	jobs      map[string]Job
}

// NewScheduler assembles a Scheduler from its dependencies.
func NewScheduler(stores workspace.StoreFactory, runner Runner, cfg config.CronConfig) *Scheduler {
	log := slog.Default().With("component", "cron")
	engine := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		),
	)
	syncEvery := cfg.SyncInterval
	if syncEvery <= 0 {
		syncEvery = 10 * time.Minute
	}
	return &Scheduler{
		engine:    engine,
		stores:    stores,
		runner:    runner,
		log:       log,
		syncEvery: syncEvery,
		entries:   make(map[string]cron.EntryID),
		jobs:      make(map[string]Job),
	}
}

// Start enumerates every tenant, registers their cron jobs plus a
// fixed-interval sync job each, and starts the underlying engine.
func (s *Scheduler) Start(ctx context.Context) error {
	tenants, err := s.stores.Tenants(ctx)
	if err != nil {
		return fmt.Errorf("enumerate tenants: %w", err)
	}
	for _, tenantID := range tenants {
		jobs, err := s.loadTenantJobs(ctx, tenantID)
		if err != nil {
			s.log.Warn("tenant cron load failed", "tenant_id", tenantID, "error", err)
			continue
		}
		for _, job := range jobs {
			if err := s.registerJob(job); err != nil {
				s.log.Warn("cron job skipped", "tenant_id", tenantID, "slug", job.Slug, "error", err)
			}
		}
		s.registerSyncJob(tenantID)
	}
	s.engine.Start()
	return nil
}

// Stop stops accepting new fires; in-flight jobs run to completion (spec
// §5: "CronScheduler shutdown stops accepting fires; in-flight jobs
// complete"), then returns once the engine context confirms they have.
func (s *Scheduler) Stop() {
	<-s.engine.Stop().Done()
}

// ReloadTenant removes and re-registers every cron job for one tenant
// atomically under the scheduler's lock (spec §4.L: "removes and
// re-registers jobs for one tenant atomically").
func (s *Scheduler) ReloadTenant(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	for key, id := range s.entries {
		if strings.HasPrefix(key, tenantID+"/") {
			s.engine.Remove(id)
			delete(s.entries, key)
			delete(s.jobs, key)
		}
	}
	s.mu.Unlock()

	jobs, err := s.loadTenantJobs(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("reload tenant %q: %w", tenantID, err)
	}
	for _, job := range jobs {
		if err := s.registerJob(job); err != nil {
			s.log.Warn("cron job skipped on reload", "tenant_id", tenantID, "slug", job.Slug, "error", err)
		}
	}
	s.registerSyncJob(tenantID)
	return nil
}

// TriggerNow runs a named job immediately, out of its regular schedule
// (spec §4.L: "runs a named job immediately out-of-schedule").
func (s *Scheduler) TriggerNow(ctx context.Context, tenantID, path string) error {
	s.mu.Lock()
	var target *Job
	for _, j := range s.jobs {
		if j.TenantID == tenantID && j.Path == path {
			jobCopy := j
			target = &jobCopy
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("cron job not found: tenant=%s path=%s", tenantID, path)
	}
	s.fire(ctx, *target)
	return nil
}

// Jobs returns a snapshot of every currently registered cron job.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *Scheduler) loadTenantJobs(ctx context.Context, tenantID string) ([]Job, error) {
	store := s.stores.Store(tenantID)
	keys, err := store.List(ctx, "crons")
	if err != nil {
		return nil, err
	}
	var jobs []Job
	for _, key := range keys {
		if !strings.HasSuffix(key, "/task.json") {
			continue
		}
		slug := strings.TrimSuffix(strings.TrimPrefix(key, "crons/"), "/task.json")
		data, ok, err := store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var spec JobSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			s.log.Warn("cron job spec invalid", "tenant_id", tenantID, "slug", slug, "error", err)
			continue
		}
		jobs = append(jobs, Job{
			TenantID:    tenantID,
			Slug:        slug,
			Path:        spec.Path,
			CronExpr:    spec.Cron,
			Title:       spec.Title,
			Description: spec.Description,
		})
	}
	return jobs, nil
}

func (s *Scheduler) registerJob(job Job) error {
	schedule, err := cronParser.Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("parse cron expression for %s: %w", job.key(), err)
	}
	id := s.engine.Schedule(schedule, cron.FuncJob(func() {
		s.fire(context.Background(), job)
	}))
	s.mu.Lock()
	s.entries[job.key()] = id
	s.jobs[job.key()] = job
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) registerSyncJob(tenantID string) {
	schedule, err := cronParser.Parse(fmt.Sprintf("@every %s", s.syncEvery))
	if err != nil {
		s.log.Warn("sync job schedule invalid", "tenant_id", tenantID, "error", err)
		return
	}
	key := "sync/" + tenantID
	s.mu.Lock()
	if _, exists := s.entries[key]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	id := s.engine.Schedule(schedule, cron.FuncJob(func() {
		s.syncTenant(tenantID)
	}))
	s.mu.Lock()
	s.entries[key] = id
	s.mu.Unlock()
}

// syncTenant performs the lightweight, agent-free per-tenant sync job
// (spec §4.L: "a direct I/O task (chat history backfill)"), recorded here
// as advancing the tenant's last-sync watermark; the actual chat-history
// fetch is a chat-platform concern out of this module's scope (spec §1).
func (s *Scheduler) syncTenant(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store := s.stores.Store(tenantID)
	if err := workspace.SetLastSync(ctx, store, time.Now()); err != nil {
		s.log.Warn("tenant sync failed", "tenant_id", tenantID, "error", err)
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(ctx, firingTimeout)
	defer cancel()

	store := s.stores.Store(job.TenantID)
	learnings, _, err := store.Get(ctx, workspace.CronLearningsPath(job.Slug))
	if err != nil {
		s.log.Warn("cron learnings read failed", "tenant_id", job.TenantID, "slug", job.Slug, "error", err)
	}
	instruction := job.Description + "\n\n## Accumulated Learnings\n" + strings.TrimSpace(string(learnings))

	start := time.Now()
	result, runErr := s.runner.RunCron(ctx, job.TenantID, instruction)
	line := outcomeLine(job, start, result, runErr)

	if err := store.Append(ctx, workspace.CronExecutionLogPath(job.Slug), line); err != nil {
		s.log.Warn("cron execution log append failed", "tenant_id", job.TenantID, "slug", job.Slug, "error", err)
	}
	if err := store.Append(ctx, workspace.ActivityLogPath(), line); err != nil {
		s.log.Warn("activity log append failed", "tenant_id", job.TenantID, "error", err)
	}
	// Failures are logged, not retried inline; the next scheduled fire
	// proceeds normally (spec §4.L).
	if runErr != nil {
		s.log.Warn("cron job failed", "tenant_id", job.TenantID, "slug", job.Slug, "error", runErr)
	}
}

func outcomeLine(job Job, start time.Time, result string, err error) string {
	entry := struct {
		Tenant   string  `json:"tenant_id"`
		Slug     string  `json:"slug"`
		Title    string  `json:"title"`
		At       string  `json:"at"`
		Duration float64 `json:"duration_s"`
		OK       bool    `json:"ok"`
		Result   string  `json:"result,omitempty"`
		Error    string  `json:"error,omitempty"`
	}{
		Tenant:   job.TenantID,
		Slug:     job.Slug,
		Title:    job.Title,
		At:       start.UTC().Format(time.RFC3339),
		Duration: time.Since(start).Seconds(),
		OK:       err == nil,
		Result:   truncate(result, 2000),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		return fmt.Sprintf("cron job %s/%s failed to serialize outcome: %v", job.TenantID, job.Slug, marshalErr)
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…(trimmed)"
}
