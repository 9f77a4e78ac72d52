package slo

import (
	"testing"

	"github.com/haasonsaas/lucy/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestEvaluateInsufficientDataBelowMinimum(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	c.Inc("tool_calls_total")
	c.Inc("tool_calls_total")

	report := New().Evaluate(c.Snapshot())
	if report.Overall != StatusPass {
		t.Errorf("overall = %v, want PASS when nothing has enough samples", report.Overall)
	}
	for _, r := range report.Results {
		if r.Status != StatusInsufficientData {
			t.Errorf("%s: status = %v, want INSUFFICIENT_DATA", r.Name, r.Status)
		}
		if r.Message != "Insufficient data" {
			t.Errorf("%s: message = %q", r.Name, r.Message)
		}
	}
}

func TestEvaluateToolSuccessRatePass(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	for i := 0; i < 100; i++ {
		c.Inc("tool_calls_total")
	}
	c.Inc("tool_errors_total")

	report := New().Evaluate(c.Snapshot())
	result := findResult(t, report, "tool_success_rate")
	if result.Status != StatusPass {
		t.Errorf("status = %v, want PASS (99%% success)", result.Status)
	}
	if result.Measured < 98.9 || result.Measured > 99.1 {
		t.Errorf("measured = %v, want ~99", result.Measured)
	}
}

func TestEvaluateToolSuccessRateFail(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	for i := 0; i < 20; i++ {
		c.Inc("tool_calls_total")
	}
	for i := 0; i < 5; i++ {
		c.Inc("tool_errors_total")
	}

	report := New().Evaluate(c.Snapshot())
	if report.Overall != StatusFail {
		t.Errorf("overall = %v, want FAIL", report.Overall)
	}
	result := findResult(t, report, "tool_success_rate")
	if result.Status != StatusFail {
		t.Errorf("status = %v, want FAIL (75%% success < 99%%)", result.Status)
	}
}

func TestEvaluateLatencyPercentiles(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	for i := 0; i < 10; i++ {
		c.ObserveToolLatency(100)
	}
	for i := 0; i < 10; i++ {
		c.ObserveToolRetrievalLatency(50)
	}
	for i := 0; i < 10; i++ {
		c.ObserveTaskLatency(1000)
	}

	report := New().Evaluate(c.Snapshot())
	for _, name := range []string{"tool_p95_latency_ms", "tool_retrieval_p95_ms", "task_p95_latency_ms"} {
		if result := findResult(t, report, name); result.Status != StatusPass {
			t.Errorf("%s: status = %v, want PASS", name, result.Status)
		}
	}
}

func TestEvaluateLatencyFailsAboveThreshold(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	for i := 0; i < 10; i++ {
		c.ObserveToolLatency(20000)
	}

	report := New().Evaluate(c.Snapshot())
	result := findResult(t, report, "tool_p95_latency_ms")
	if result.Status != StatusFail {
		t.Errorf("status = %v, want FAIL", result.Status)
	}
}

func TestEvaluateTotalTasksSumsAllLabels(t *testing.T) {
	c := metrics.NewCollector(prometheus.NewRegistry())
	c.TasksTotal.Inc("tenant-a", "completed")
	c.TasksTotal.Inc("tenant-a", "failed")
	c.TasksTotal.Inc("tenant-b", "completed")

	report := New().Evaluate(c.Snapshot())
	if report.TotalTasks != 3 {
		t.Errorf("TotalTasks = %d, want 3", report.TotalTasks)
	}
}

func findResult(t *testing.T, report Report, name string) Result {
	t.Helper()
	for _, r := range report.Results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q", name)
	return Result{}
}
