// Package slo implements the SLOEvaluator of spec §4.M: a static table of
// reliability targets measured against a metrics snapshot, each gated by a
// minimum sample count so a quiet process doesn't report false failures.
// Grounded on _examples/original_source/src/lucy/core/slo.py (no teacher
// file evaluates SLOs; the measured-value math reuses
// internal/metrics.HistogramSnapshot.Percentile, already adapted from the
// teacher's internal/observability/metrics.go).
package slo

import (
	"log/slog"

	"github.com/haasonsaas/lucy/internal/metrics"
)

// Direction is which way a measured value must compare to its threshold to pass.
type Direction string

const (
	DirectionMin Direction = "min" // measured must be >= threshold
	DirectionMax Direction = "max" // measured must be <= threshold
)

// Target is one named SLO definition.
type Target struct {
	Name        string
	Description string
	Threshold   float64
	Direction   Direction
	Unit        string
	// MinSamples is the minimum number of underlying observations required
	// before this SLO is evaluated rather than reported "insufficient data".
	MinSamples int64
}

// Targets is the static table of spec §4.M's known SLOs.
var Targets = []Target{
	{Name: "tool_success_rate", Description: "Share of tool calls that complete without error", Threshold: 99.0, Direction: DirectionMin, Unit: "%", MinSamples: 10},
	{Name: "no_text_fallback_rate", Description: "Share of turns that fall back to a templated no-text response", Threshold: 0.5, Direction: DirectionMax, Unit: "%", MinSamples: 10},
	{Name: "unknown_tool_rate", Description: "Share of tool calls naming an unrecognized tool", Threshold: 0.1, Direction: DirectionMax, Unit: "%", MinSamples: 10},
	{Name: "tool_p95_latency_ms", Description: "95th percentile tool call latency", Threshold: 8000, Direction: DirectionMax, Unit: "ms", MinSamples: 5},
	{Name: "tool_retrieval_p95_ms", Description: "95th percentile capability index retrieval latency", Threshold: 500, Direction: DirectionMax, Unit: "ms", MinSamples: 5},
	{Name: "task_p95_latency_ms", Description: "95th percentile background task end-to-end latency", Threshold: 30000, Direction: DirectionMax, Unit: "ms", MinSamples: 5},
}

// Status is the evaluated outcome of one Target.
type Status string

const (
	StatusPass             Status = "PASS"
	StatusFail             Status = "FAIL"
	StatusInsufficientData Status = "INSUFFICIENT_DATA"
)

// Result is one Target's evaluated outcome against a metrics snapshot.
type Result struct {
	Name        string
	Description string
	Threshold   float64
	Direction   Direction
	Measured    float64
	Status      Status
	Message     string
}

// Report is the overall evaluation, matching the GET /health/slo response
// shape of spec §6.
type Report struct {
	Overall        Status
	TotalTasks     int64
	TotalToolCalls int64
	UptimeS        float64
	Results        []Result
}

// Evaluator computes SLO results from a metrics.Collector snapshot.
type Evaluator struct {
	log *slog.Logger
}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{log: slog.Default().With("component", "slo")}
}

// Evaluate computes every Target's Result from snap, logging a structured
// slo_breach line for each failure (spec §4.M).
func (e *Evaluator) Evaluate(snap metrics.Snapshot) Report {
	toolCalls := snap.Counters["tool_calls_total"]
	toolErrors := snap.Counters["tool_errors_total"]
	noTextFallbacks := snap.Counters["no_text_fallbacks_total"]
	unknownTools := snap.Counters["unknown_tool_calls_total"]

	toolLatency := snap.Histograms["tool_latency_ms"]
	retrievalLatency := snap.Histograms["tool_retrieval_latency_ms"]
	taskLatency := snap.Histograms["task_latency_ms"]

	var totalTasks int64
	for _, count := range snap.Labeled["tasks_total"] {
		for _, v := range count {
			totalTasks += v
		}
	}

	results := make([]Result, 0, len(Targets))
	overall := StatusPass
	for _, target := range Targets {
		result := e.evaluateOne(target, toolCalls, toolErrors, noTextFallbacks, unknownTools, toolLatency, retrievalLatency, taskLatency, totalTasks)
		results = append(results, result)
		if result.Status == StatusFail {
			overall = StatusFail
			e.log.Warn("slo_breach", "name", result.Name, "measured", result.Measured, "threshold", result.Threshold, "direction", result.Direction)
		}
	}

	return Report{
		Overall:        overall,
		TotalTasks:     totalTasks,
		TotalToolCalls: toolCalls,
		UptimeS:        snap.UptimeS,
		Results:        results,
	}
}

func (e *Evaluator) evaluateOne(
	target Target,
	toolCalls, toolErrors, noTextFallbacks, unknownTools int64,
	toolLatency, retrievalLatency, taskLatency metrics.HistogramSnapshot,
	totalTasks int64,
) Result {
	result := Result{
		Name:        target.Name,
		Description: target.Description,
		Threshold:   target.Threshold,
		Direction:   target.Direction,
	}

	var samples int64
	var measured float64

	switch target.Name {
	case "tool_success_rate":
		samples = toolCalls
		if toolCalls > 0 {
			measured = 100 * float64(toolCalls-toolErrors) / float64(toolCalls)
		}
	case "no_text_fallback_rate":
		samples = toolCalls
		if toolCalls > 0 {
			measured = 100 * float64(noTextFallbacks) / float64(toolCalls)
		}
	case "unknown_tool_rate":
		samples = toolCalls
		if toolCalls > 0 {
			measured = 100 * float64(unknownTools) / float64(toolCalls)
		}
	case "tool_p95_latency_ms":
		samples = toolLatency.Count
		measured = toolLatency.Percentile(95)
	case "tool_retrieval_p95_ms":
		samples = retrievalLatency.Count
		measured = retrievalLatency.Percentile(95)
	case "task_p95_latency_ms":
		samples = taskLatency.Count
		measured = taskLatency.Percentile(95)
	}

	if samples < target.MinSamples {
		result.Status = StatusInsufficientData
		result.Message = "Insufficient data"
		return result
	}

	result.Measured = measured
	passed := false
	switch target.Direction {
	case DirectionMin:
		passed = measured >= target.Threshold
	case DirectionMax:
		passed = measured <= target.Threshold
	}
	if passed {
		result.Status = StatusPass
		result.Message = "within target"
	} else {
		result.Status = StatusFail
		result.Message = "breached target"
	}
	return result
}
