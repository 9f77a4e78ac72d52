// Package fastpath implements the pure fast-path classifier of spec §4.F:
// a sub-millisecond check that answers trivial greetings, status checks,
// and help requests without ever reaching the LLM. No teacher file covers
// this (the teacher routes every inbound message through its agent loop),
// so the rule set is grounded on
// _examples/original_source/round3_tests.py's evaluate_fast_path
// expectations (greeting detection, thread-continuation bypass, status and
// help phrasing) implemented fresh in Go.
package fastpath

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/lucy/internal/messagepool"
)

// Result is the outcome of evaluating one message for fast-path handling.
type Result struct {
	IsFast       bool
	ResponseText string
	Reason       string
}

var mentionPattern = regexp.MustCompile(`<@[^>]+>|@\w+`)

var greetingWords = map[string]bool{
	"hi": true, "hey": true, "hello": true, "yo": true, "sup": true,
	"morning": true, "afternoon": true, "evening": true, "good": true,
	"howdy": true, "greetings": true,
}

var statusPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^are you there\??$`),
	regexp.MustCompile(`^you (up|there)\??$`),
	regexp.MustCompile(`^(still )?(around|here)\??$`),
	regexp.MustCompile(`^you good\??$`),
}

var helpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^help$`),
	regexp.MustCompile(`^what can you do\??$`),
	regexp.MustCompile(`^what do you do\??$`),
	regexp.MustCompile(`^how (do|can) (i|you) use (you|this)\??$`),
}

// Evaluator evaluates messages against the fast-path rule set, drawing
// canned responses from a shared message pool.
type Evaluator struct {
	pool *messagepool.Pool
}

// New creates an Evaluator backed by pool.
func New(pool *messagepool.Pool) *Evaluator {
	return &Evaluator{pool: pool}
}

// Evaluate is a pure function (aside from the pool's own random sampling):
// thread continuations never fast-path, then greeting/status/help patterns
// are checked in order.
func (e *Evaluator) Evaluate(messageText string, threadDepth int, hasThreadContext bool) Result {
	if threadDepth > 0 && hasThreadContext {
		return Result{IsFast: false, Reason: "thread_continuation"}
	}

	normalized := normalize(messageText)
	if normalized == "" {
		return Result{IsFast: false, Reason: "empty"}
	}

	if isGreeting(normalized) {
		return Result{IsFast: true, ResponseText: e.pool.Sample(messagepool.Greeting), Reason: "greeting"}
	}
	if matchesAny(normalized, statusPatterns) {
		return Result{IsFast: true, ResponseText: e.pool.Sample(messagepool.StatusCheck), Reason: "status_check"}
	}
	if matchesAny(normalized, helpPatterns) {
		return Result{IsFast: true, ResponseText: e.pool.Sample(messagepool.Help), Reason: "help"}
	}

	return Result{IsFast: false, Reason: "no_match"}
}

func normalize(text string) string {
	stripped := mentionPattern.ReplaceAllString(text, "")
	return strings.ToLower(strings.TrimSpace(stripped))
}

func isGreeting(normalized string) bool {
	tokens := strings.Fields(strings.Trim(normalized, "!.?"))
	if len(tokens) == 0 || len(tokens) > 3 {
		return false
	}
	for _, tok := range tokens {
		tok = strings.Trim(tok, "!.,?")
		if greetingWords[tok] {
			return true
		}
	}
	return false
}

func matchesAny(normalized string, patterns []*regexp.Regexp) bool {
	trimmed := strings.TrimRight(normalized, "!.")
	for _, p := range patterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}
