package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

type fakeLLM struct {
	text string
	err  error
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req lucy.LLMRequest) (*lucy.LLMResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &lucy.LLMResponse{Text: f.text}, nil
}

func TestShouldPlanRequiresComplexIntentAndLength(t *testing.T) {
	if ShouldPlan("simple", "write some code to do this specific thing please") {
		t.Errorf("simple intent should not qualify for planning")
	}
	if ShouldPlan("code", "fix it") {
		t.Errorf("short message should not qualify for planning")
	}
	if !ShouldPlan("code", "please refactor the authentication module to use the new token format") {
		t.Errorf("complex intent with >8 words should qualify for planning")
	}
}

func TestGeneratePlanParsesJSON(t *testing.T) {
	llm := &fakeLLM{text: `{"goal":"Refactor auth","steps":[{"number":1,"description":"Survey callers","expected_tools":["lucy_read_file"]}],"success_criteria":"Tests pass"}`}
	s := New(llm, "cheap-model")

	plan := s.GeneratePlan(context.Background(), "code", "please refactor the authentication module across the whole service")
	if plan == nil {
		t.Fatalf("expected a plan")
	}
	if plan.Goal != "Refactor auth" {
		t.Errorf("goal = %q", plan.Goal)
	}
	if len(plan.Steps) != 1 || plan.Steps[0].Description != "Survey callers" {
		t.Errorf("unexpected steps: %+v", plan.Steps)
	}
}

func TestGeneratePlanStripsCodeFence(t *testing.T) {
	llm := &fakeLLM{text: "```json\n{\"goal\":\"g\",\"steps\":[{\"number\":1,\"description\":\"d\",\"expected_tools\":[]}],\"success_criteria\":\"c\"}\n```"}
	s := New(llm, "cheap-model")

	plan := s.GeneratePlan(context.Background(), "research", "please research the current market landscape thoroughly and in detail")
	if plan == nil {
		t.Fatalf("expected a plan despite the code fence")
	}
}

func TestGeneratePlanNilOnSimpleTask(t *testing.T) {
	llm := &fakeLLM{text: `{"goal":"g","steps":[{"number":1,"description":"d"}],"success_criteria":"c"}`}
	s := New(llm, "cheap-model")

	if plan := s.GeneratePlan(context.Background(), "greeting", "hello there"); plan != nil {
		t.Errorf("expected nil plan for a non-complex intent, got %+v", plan)
	}
}

func TestGeneratePlanNilOnParseFailure(t *testing.T) {
	llm := &fakeLLM{text: "not json at all"}
	s := New(llm, "cheap-model")

	plan := s.GeneratePlan(context.Background(), "code", "please refactor the authentication module across all of the services")
	if plan != nil {
		t.Errorf("expected nil plan on parse failure, got %+v", plan)
	}
}

func TestCheckpointDueByElapsed(t *testing.T) {
	now := time.Now()
	lastCheck := now.Add(-61 * time.Second)
	if !CheckpointDue(lastCheck, now, 1) {
		t.Errorf("expected checkpoint due after 60s elapsed")
	}
}

func TestCheckpointDueByTurnCadence(t *testing.T) {
	now := time.Now()
	if !CheckpointDue(now, now, 3) {
		t.Errorf("expected checkpoint due on turn 3")
	}
	if CheckpointDue(now, now, 2) {
		t.Errorf("turn 2 should not trigger a cadence checkpoint")
	}
	if CheckpointDue(now, now, 1) {
		t.Errorf("turn 1 should never trigger a cadence checkpoint (turn > 1 required)")
	}
}

func TestEvaluateParsesSingleLetter(t *testing.T) {
	llm := &fakeLLM{text: "E"}
	s := New(llm, "cheap-model")
	decision := s.Evaluate(context.Background(), EvaluateInput{Intent: "code", CurrentModel: "m"})
	if decision != DecisionEscalate {
		t.Errorf("decision = %v, want E", decision)
	}
}

func TestEvaluateDefaultsToContinueOnCallError(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	s := New(llm, "cheap-model")
	decision := s.Evaluate(context.Background(), EvaluateInput{})
	if decision != DecisionContinue {
		t.Errorf("decision = %v, want C on call failure", decision)
	}
}

func TestEvaluateDefaultsToContinueOnParseFailure(t *testing.T) {
	llm := &fakeLLM{text: "???"}
	s := New(llm, "cheap-model")
	decision := s.Evaluate(context.Background(), EvaluateInput{})
	if decision != DecisionContinue {
		t.Errorf("decision = %v, want C on parse failure", decision)
	}
}
