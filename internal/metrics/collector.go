package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LabeledCounter is a two-level map of monotonic counters, guarded by a
// single lock (spec §4.D: "labeled counters: two-level maps").
type LabeledCounter struct {
	mu     sync.Mutex
	counts map[string]map[string]int64
}

func newLabeledCounter() *LabeledCounter {
	return &LabeledCounter{counts: make(map[string]map[string]int64)}
}

// Inc increments the counter for (label, sublabel).
func (l *LabeledCounter) Inc(label, sublabel string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[label] == nil {
		l.counts[label] = make(map[string]int64)
	}
	l.counts[label][sublabel]++
}

// Snapshot returns a deep copy of the counter map.
func (l *LabeledCounter) Snapshot() map[string]map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]map[string]int64, len(l.counts))
	for label, inner := range l.counts {
		innerCopy := make(map[string]int64, len(inner))
		for k, v := range inner {
			innerCopy[k] = v
		}
		out[label] = innerCopy
	}
	return out
}

// Collector is the request control plane's metrics surface (spec §4.D).
// It holds plain counters, labeled counters, and fixed-bucket histograms,
// each also mirrored onto a prometheus.Registerer for /metrics scraping.
type Collector struct {
	mu        sync.Mutex
	counters  map[string]int64
	startedAt time.Time

	promCounters map[string]*prometheus.CounterVec

	ToolErrorsByType *LabeledCounter
	UnknownToolNames *LabeledCounter
	TasksTotal       *LabeledCounter

	ToolLatencyMS          *Histogram
	LLMTurnLatencyMS       *Histogram
	TaskLatencyMS          *Histogram
	ToolRetrievalLatencyMS *Histogram

	promHistograms map[string]*prometheus.HistogramVec
}

// counterNames are the plain, unlabeled monotonic counters named in spec §4.D.
var counterNames = []string{
	"tool_calls_total",
	"tool_errors_total",
	"tool_loops_total",
	"unknown_tool_calls_total",
	"no_text_fallbacks_total",
	"calendar_fallbacks_total",
}

// NewCollector builds and registers every named series against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the default
// registry across package-level test runs.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		counters:     make(map[string]int64, len(counterNames)),
		startedAt:    time.Now(),
		promCounters: make(map[string]*prometheus.CounterVec, len(counterNames)),

		ToolErrorsByType: newLabeledCounter(),
		UnknownToolNames: newLabeledCounter(),
		TasksTotal:       newLabeledCounter(),

		ToolLatencyMS:          NewHistogram(),
		LLMTurnLatencyMS:       NewHistogram(),
		TaskLatencyMS:          NewHistogram(),
		ToolRetrievalLatencyMS: NewHistogram(),

		promHistograms: make(map[string]*prometheus.HistogramVec, 4),
	}

	factory := promauto.With(reg)
	for _, name := range counterNames {
		c.promCounters[name] = factory.NewCounterVec(
			prometheus.CounterOpts{Name: "lucy_" + name, Help: "Lucy internal counter: " + name},
			nil,
		)
	}

	buckets := append(append([]float64{}, bucketBoundsMS...))
	histNames := []string{"tool_latency_ms", "llm_turn_latency_ms", "task_latency_ms", "tool_retrieval_latency_ms"}
	for _, name := range histNames {
		c.promHistograms[name] = factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "lucy_" + name, Help: "Lucy internal histogram: " + name, Buckets: buckets},
			nil,
		)
	}

	return c
}

// Inc increments a named plain counter (must be one of counterNames).
func (c *Collector) Inc(name string) {
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
	if pc, ok := c.promCounters[name]; ok {
		pc.WithLabelValues().Inc()
	}
}

// ObserveToolLatency records a tool call's latency in milliseconds.
func (c *Collector) ObserveToolLatency(ms float64) {
	c.ToolLatencyMS.Observe(ms)
	c.promHistograms["tool_latency_ms"].WithLabelValues().Observe(ms)
}

// ObserveLLMTurnLatency records one LLM turn's latency in milliseconds.
func (c *Collector) ObserveLLMTurnLatency(ms float64) {
	c.LLMTurnLatencyMS.Observe(ms)
	c.promHistograms["llm_turn_latency_ms"].WithLabelValues().Observe(ms)
}

// ObserveTaskLatency records a background task's end-to-end latency in milliseconds.
func (c *Collector) ObserveTaskLatency(ms float64) {
	c.TaskLatencyMS.Observe(ms)
	c.promHistograms["task_latency_ms"].WithLabelValues().Observe(ms)
}

// ObserveToolRetrievalLatency records a capability-index lookup's latency in milliseconds.
func (c *Collector) ObserveToolRetrievalLatency(ms float64) {
	c.ToolRetrievalLatencyMS.Observe(ms)
	c.promHistograms["tool_retrieval_latency_ms"].WithLabelValues().Observe(ms)
}

// Snapshot is the deep-copied view returned by Collector.Snapshot.
type Snapshot struct {
	Counters   map[string]int64
	Labeled    map[string]map[string]map[string]int64
	Histograms map[string]HistogramSnapshot
	UptimeS    float64
}

// Snapshot returns a deep-copied view of every series plus process uptime
// (spec §4.D: "snapshot returns a deep-copied map-of-maps plus uptime").
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}
	c.mu.Unlock()

	return Snapshot{
		Counters: counters,
		Labeled: map[string]map[string]map[string]int64{
			"tool_errors_by_type": c.ToolErrorsByType.Snapshot(),
			"unknown_tool_names":  c.UnknownToolNames.Snapshot(),
			"tasks_total":         c.TasksTotal.Snapshot(),
		},
		Histograms: map[string]HistogramSnapshot{
			"tool_latency_ms":           c.ToolLatencyMS.Snapshot(),
			"llm_turn_latency_ms":       c.LLMTurnLatencyMS.Snapshot(),
			"task_latency_ms":           c.TaskLatencyMS.Snapshot(),
			"tool_retrieval_latency_ms": c.ToolRetrievalLatencyMS.Snapshot(),
		},
		UptimeS: time.Since(c.startedAt).Seconds(),
	}
}
