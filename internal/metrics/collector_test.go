package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_IncMirrorsToPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Inc("tool_calls_total")
	c.Inc("tool_calls_total")

	snap := c.Snapshot()
	if snap.Counters["tool_calls_total"] != 2 {
		t.Fatalf("internal counter = %d, want 2", snap.Counters["tool_calls_total"])
	}
	if count := testutil.CollectAndCount(c.promCounters["tool_calls_total"]); count != 1 {
		t.Fatalf("expected 1 registered series, got %d", count)
	}
}

func TestCollector_LabeledCountersSnapshotIndependently(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ToolErrorsByType.Inc("gmail_send_message", "timeout")
	c.ToolErrorsByType.Inc("gmail_send_message", "timeout")
	c.TasksTotal.Inc("status", "completed")

	snap := c.Snapshot()
	if snap.Labeled["tool_errors_by_type"]["gmail_send_message"]["timeout"] != 2 {
		t.Fatalf("expected 2 timeout errors for gmail_send_message")
	}
	if snap.Labeled["tasks_total"]["status"]["completed"] != 1 {
		t.Fatalf("expected 1 completed task")
	}
}

func TestCollector_ObserveToolLatencyFeedsBothSystems(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveToolLatency(42)
	snap := c.Snapshot()
	if snap.Histograms["tool_latency_ms"].Count != 1 {
		t.Fatalf("expected 1 sample in internal histogram")
	}
	if count := testutil.CollectAndCount(c.promHistograms["tool_latency_ms"]); count != 1 {
		t.Fatalf("expected 1 registered histogram series, got %d", count)
	}
}
