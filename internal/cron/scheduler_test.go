package cron_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/lucy/internal/config"
	"github.com/haasonsaas/lucy/internal/cron"
	"github.com/haasonsaas/lucy/internal/workspace"
)

func writeJob(t *testing.T, store workspace.Store, slug string, spec cron.JobSpec) {
	t.Helper()
	data, err := json.Marshal(spec)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), workspace.CronTaskPath(slug), data))
}

func TestSchedulerLoadsAndFiresTenantJobs(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	store := factory.Store("tenant-a")
	writeJob(t, store, "daily-report", cron.JobSpec{
		Path:        "daily-report",
		Cron:        "@every 1h",
		Title:       "Daily report",
		Description: "Summarize yesterday's activity.",
	})

	fired := make(chan string, 1)
	runner := cron.RunnerFunc(func(_ context.Context, tenantID, instruction string) (string, error) {
		fired <- tenantID
		return "ok: " + instruction, nil
	})

	sched := cron.NewScheduler(factory, runner, config.CronConfig{SyncInterval: time.Hour})
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	jobs := sched.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, "tenant-a", jobs[0].TenantID)
	require.Equal(t, "daily-report", jobs[0].Slug)

	require.NoError(t, sched.TriggerNow(context.Background(), "tenant-a", "daily-report"))
	select {
	case tenantID := <-fired:
		require.Equal(t, "tenant-a", tenantID)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}

	data, ok, err := store.Get(context.Background(), workspace.CronExecutionLogPath("daily-report"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(data), "daily-report")

	activity, ok, err := store.Get(context.Background(), workspace.ActivityLogPath())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, string(activity), "tenant-a")
}

func TestSchedulerSkipsInvalidJobSpec(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	store := factory.Store("tenant-b")
	require.NoError(t, store.Put(context.Background(), workspace.CronTaskPath("broken"), []byte("not json")))

	runner := cron.RunnerFunc(func(_ context.Context, _, _ string) (string, error) {
		t.Fatal("runner should never be called for an invalid job spec")
		return "", nil
	})

	sched := cron.NewScheduler(factory, runner, config.CronConfig{SyncInterval: time.Hour})
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	require.Empty(t, sched.Jobs())
}

func TestReloadTenantReplacesJobs(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	store := factory.Store("tenant-c")
	writeJob(t, store, "job-one", cron.JobSpec{Path: "job-one", Cron: "@every 1h", Description: "first"})

	runner := cron.RunnerFunc(func(_ context.Context, _, _ string) (string, error) { return "", nil })
	sched := cron.NewScheduler(factory, runner, config.CronConfig{SyncInterval: time.Hour})
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()
	require.Len(t, sched.Jobs(), 1)

	writeJob(t, store, "job-two", cron.JobSpec{Path: "job-two", Cron: "@every 2h", Description: "second"})
	require.NoError(t, sched.ReloadTenant(context.Background(), "tenant-c"))

	jobs := sched.Jobs()
	require.Len(t, jobs, 2)
}

func TestTriggerNowUnknownJobErrors(t *testing.T) {
	factory, err := workspace.NewFileStoreFactory(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)
	runner := cron.RunnerFunc(func(_ context.Context, _, _ string) (string, error) { return "", nil })
	sched := cron.NewScheduler(factory, runner, config.CronConfig{SyncInterval: time.Hour})
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	err = sched.TriggerNow(context.Background(), "nobody", "missing")
	require.Error(t, err)
}
