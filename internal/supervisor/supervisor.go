// Package supervisor implements the plan generator and progress evaluator of
// spec §4.J: a cheap-tier LLM call produces a structured plan for complex
// requests, and a periodic single-letter classifier call decides whether the
// orchestrator's turn loop should continue, get guidance, replan, escalate
// model tier, ask the user, or abort. Grounded on
// _examples/original_source/src/lucy/core/supervisor.py (no teacher file
// implements a plan/checkpoint/evaluate loop; the teacher's closest analogue
// is its own single-shot LLM calls in internal/agent/loop.go, whose
// constrained-call idiom this package reuses: build a tight system prompt,
// call the model, parse a narrow expected shape, fail closed on parse error).
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

// complexIntents is the set of intents for which a plan is worth generating
// (spec §4.J: "triggered only for intents in a complex set").
var complexIntents = map[string]bool{
	"data":           true,
	"document":       true,
	"code":           true,
	"code_reasoning": true,
	"tool_use":       true,
	"research":       true,
	"monitoring":     true,
}

// minWordsForPlan is the message-length threshold that, combined with a
// complex intent, triggers plan generation.
const minWordsForPlan = 8

// Step is one planned action within a Plan.
type Step struct {
	Number        int      `json:"number"`
	Description   string   `json:"description"`
	ExpectedTools []string `json:"expected_tools"`
}

// Plan is the structured output of plan generation.
type Plan struct {
	Goal            string `json:"goal"`
	Steps           []Step `json:"steps"`
	SuccessCriteria string `json:"success_criteria"`
}

// Decision is one of the six single-letter evaluation outcomes.
type Decision string

const (
	DecisionContinue  Decision = "C"
	DecisionIntervene Decision = "I"
	DecisionReplan    Decision = "R"
	DecisionEscalate  Decision = "E"
	DecisionAsk       Decision = "A"
	DecisionAbort     Decision = "X"
)

func parseDecision(raw string) (Decision, bool) {
	letter := strings.ToUpper(strings.TrimSpace(raw))
	if len(letter) > 1 {
		// Tolerate a one-word answer like "Continue" by taking the first letter.
		letter = letter[:1]
	}
	switch Decision(letter) {
	case DecisionContinue, DecisionIntervene, DecisionReplan, DecisionEscalate, DecisionAsk, DecisionAbort:
		return Decision(letter), true
	default:
		return "", false
	}
}

// EvaluateInput is the compact structured summary fed to the evaluator call
// (spec §4.J: "plan text, last three turns, error totals, consecutive-error
// count, elapsed, current model, response length, intent").
type EvaluateInput struct {
	PlanText          string
	LastThreeTurns    []string
	ErrorTotal        int
	ConsecutiveErrors int
	ElapsedS          float64
	CurrentModel      string
	ResponseLength    int
	Intent            string
}

// Supervisor generates plans and evaluates in-progress turn loops, calling
// out to the cheapest-tier model for both.
type Supervisor struct {
	llm        lucy.LLMClient
	cheapModel string
	log        *slog.Logger
}

// New creates a Supervisor. cheapModel is the model identifier used for both
// plan generation and checkpoint evaluation (spec: "cheapest tier").
func New(llm lucy.LLMClient, cheapModel string) *Supervisor {
	return &Supervisor{
		llm:        llm,
		cheapModel: cheapModel,
		log:        slog.Default().With("component", "supervisor"),
	}
}

// ShouldPlan reports whether intent/message qualify for plan generation.
func ShouldPlan(intent, message string) bool {
	if !complexIntents[intent] {
		return false
	}
	return len(strings.Fields(message)) > minWordsForPlan
}

// GeneratePlan produces a Plan for a complex request, or nil if the request
// doesn't qualify, the LLM call fails, or the response doesn't parse as the
// expected constrained format (spec: "Nil on simple tasks or parse failure").
func (s *Supervisor) GeneratePlan(ctx context.Context, intent, message string) *Plan {
	if !ShouldPlan(intent, message) {
		return nil
	}

	system := "You are a planning assistant. Given a user request, respond with ONLY a JSON object " +
		`of the shape {"goal":string,"steps":[{"number":int,"description":string,"expected_tools":[string]}],"success_criteria":string}. ` +
		"No prose, no markdown fences."

	resp, err := s.llm.CreateMessage(ctx, lucy.LLMRequest{
		Model:  s.cheapModel,
		System: system,
		Messages: []lucy.LLMMessage{
			{Role: "user", Content: message},
		},
		MaxTokens: 800,
	})
	if err != nil {
		s.log.Warn("plan generation call failed", "error", err, "intent", intent)
		return nil
	}

	var plan Plan
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &plan); err != nil {
		s.log.Warn("plan generation parse failed", "error", err)
		return nil
	}
	if plan.Goal == "" || len(plan.Steps) == 0 {
		return nil
	}
	return &plan
}

// extractJSON trims whitespace and a possible markdown code fence from a
// model response so a strict json.Unmarshal can still succeed.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// CheckpointDue reports whether a checkpoint evaluation should run this turn
// (spec §4.J: "since_last_check ≥ 60s OR turn > 1 ∧ turn % 3 == 0").
func CheckpointDue(lastCheck, now time.Time, turn int) bool {
	sinceLastCheck := now.Sub(lastCheck)
	if sinceLastCheck >= 60*time.Second {
		return true
	}
	return turn > 1 && turn%3 == 0
}

// Evaluate asks the cheap-tier model to classify progress as one of
// C/I/R/E/A/X. A call or parse failure defaults to DecisionContinue, the
// fail-safe choice that never aborts work on a supervisor hiccup.
func (s *Supervisor) Evaluate(ctx context.Context, in EvaluateInput) Decision {
	system := "You monitor an in-progress AI agent task. Respond with exactly one letter: " +
		"C (continue), I (intervene with guidance), R (replan), E (escalate to a stronger model), " +
		"A (ask the user a clarifying question), or X (abort). No other text."

	summary := fmt.Sprintf(
		"intent=%s model=%s elapsed_s=%.1f errors=%d consecutive_errors=%d response_length=%d\nplan:\n%s\nrecent turns:\n%s",
		in.Intent, in.CurrentModel, in.ElapsedS, in.ErrorTotal, in.ConsecutiveErrors, in.ResponseLength,
		in.PlanText, strings.Join(in.LastThreeTurns, "\n---\n"),
	)

	resp, err := s.llm.CreateMessage(ctx, lucy.LLMRequest{
		Model:  s.cheapModel,
		System: system,
		Messages: []lucy.LLMMessage{
			{Role: "user", Content: summary},
		},
		MaxTokens: 10,
	})
	if err != nil {
		s.log.Warn("checkpoint evaluation call failed", "error", err)
		return DecisionContinue
	}

	decision, ok := parseDecision(resp.Text)
	if !ok {
		s.log.Warn("checkpoint evaluation parse failed", "raw", resp.Text)
		return DecisionContinue
	}
	return decision
}
