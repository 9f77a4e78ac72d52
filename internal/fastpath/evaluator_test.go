package fastpath

import (
	"strings"
	"testing"

	"github.com/haasonsaas/lucy/internal/messagepool"
)

func newTestEvaluator() *Evaluator {
	return New(messagepool.DefaultPools())
}

func TestEvaluate_DetectsGreetings(t *testing.T) {
	e := newTestEvaluator()
	greetings := []string{"hi", "hey", "hello", "Hi Lucy!", "good morning"}
	for _, g := range greetings {
		result := e.Evaluate(g, 0, false)
		if !result.IsFast {
			t.Errorf("Evaluate(%q).IsFast = false, want true", g)
		}
	}
}

func TestEvaluate_ComplexMessagesAreNotFast(t *testing.T) {
	e := newTestEvaluator()
	complex := []string{
		"can you pull together a comprehensive research report on our competitors",
		"I need you to draft a proposal and send it to the team",
		"what's the status of the deployment pipeline from yesterday",
	}
	for _, m := range complex {
		result := e.Evaluate(m, 0, false)
		if result.IsFast {
			t.Errorf("Evaluate(%q).IsFast = true, want false", m)
		}
	}
}

func TestEvaluate_ThreadContinuationNeverFastPaths(t *testing.T) {
	e := newTestEvaluator()
	result := e.Evaluate("hi", 3, true)
	if result.IsFast {
		t.Fatalf("expected thread continuation to bypass fast-path, got %+v", result)
	}
	if result.Reason != "thread_continuation" {
		t.Fatalf("Reason = %q, want thread_continuation", result.Reason)
	}
}

func TestEvaluate_StatusCheckReturnsResponse(t *testing.T) {
	e := newTestEvaluator()
	result := e.Evaluate("are you there?", 0, false)
	if !result.IsFast || result.ResponseText == "" {
		t.Fatalf("expected a fast, non-empty status response, got %+v", result)
	}
}

func TestEvaluate_HelpReturnsIntegrationsMention(t *testing.T) {
	e := newTestEvaluator()
	result := e.Evaluate("help", 0, false)
	if !result.IsFast || !strings.Contains(strings.ToLower(result.ResponseText), "integrations") {
		t.Fatalf("expected a fast help response mentioning integrations, got %+v", result)
	}
}

func TestEvaluate_ZeroThreadDepthWithContextStillFastPaths(t *testing.T) {
	e := newTestEvaluator()
	result := e.Evaluate("hi", 0, true)
	if !result.IsFast {
		t.Fatalf("thread_depth=0 should not block fast-path even if has_thread_context is true")
	}
}
