// Package router computes the RouteDecision of spec §3 — {tier, intent,
// model_identifier} — for one inbound message, ahead of queue admission.
// Grounded on the teacher's internal/agent/routing/heuristic.go
// (regex-tag classifier over the last user message, falling back to a
// length heuristic) generalized from its {code, reasoning, quick} tag set
// to the full intent vocabulary the Supervisor's "complex" set names
// (spec §4.J: data, document, code, code_reasoning, tool_use, research,
// monitoring) plus a catch-all "chat" intent, each mapped to one of the
// four LLM tiers.
package router

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/lucy/internal/config"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

var (
	codeBlockPattern  = regexp.MustCompile("```")
	codeVerbPattern   = regexp.MustCompile(`(?i)\b(function|class|def|package|import|bug|stack trace|traceback|compile|refactor|unit test)\b`)
	codeReasonPattern = regexp.MustCompile(`(?i)\b(why (is|does|did) (this|it|that)|debug|root cause|explain this code|step through)\b`)
	docPattern        = regexp.MustCompile(`(?i)\b(write up|draft|document|report|proposal|memo|spec|summary of)\b`)
	dataPattern       = regexp.MustCompile(`(?i)\b(spreadsheet|csv|rows?|columns?|pivot|chart|dataset|aggregate)\b`)
	toolUsePattern    = regexp.MustCompile(`(?i)\b(schedule|send|create (a|an) (event|invite|task)|file a ticket|add to|remove from)\b`)
	researchPattern   = regexp.MustCompile(`(?i)\b(research|compare|competitors?|market analysis|find out about|look into)\b`)
	monitorPattern    = regexp.MustCompile(`(?i)\b(alert|monitor|status of|is .* down|incident|on[- ]call)\b`)
)

// intentModels maps an intent to the tier it should run at. Intents not
// present here default to TierDefault.
var intentTiers = map[string]lucy.Tier{
	"code":           lucy.TierCode,
	"code_reasoning": lucy.TierCode,
	"document":       lucy.TierFrontier,
	"data":           lucy.TierDefault,
	"tool_use":       lucy.TierDefault,
	"research":       lucy.TierFrontier,
	"monitoring":     lucy.TierDefault,
	"chat":           lucy.TierFast,
}

// Classify assigns a RouteDecision to one message's text, using cfg to
// resolve the tier's configured model identifier.
func Classify(text string, cfg config.LLMConfig) lucy.RouteDecision {
	trimmed := strings.TrimSpace(text)
	wordCount := len(strings.Fields(trimmed))
	intent := classifyIntent(trimmed)
	tier := intentTiers[intent]
	if tier == "" {
		tier = lucy.TierDefault
	}
	if wordCount <= 6 && intent == "chat" {
		tier = lucy.TierFast
	}

	return lucy.RouteDecision{
		Tier:      tier,
		Intent:    intent,
		Model:     modelForTier(tier, cfg),
		WordCount: wordCount,
	}
}

func classifyIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case codeBlockPattern.MatchString(text) || codeVerbPattern.MatchString(lower):
		if codeReasonPattern.MatchString(lower) {
			return "code_reasoning"
		}
		return "code"
	case codeReasonPattern.MatchString(lower):
		return "code_reasoning"
	case docPattern.MatchString(lower):
		return "document"
	case dataPattern.MatchString(lower):
		return "data"
	case monitorPattern.MatchString(lower):
		return "monitoring"
	case researchPattern.MatchString(lower):
		return "research"
	case toolUsePattern.MatchString(lower):
		return "tool_use"
	default:
		return "chat"
	}
}

func modelForTier(tier lucy.Tier, cfg config.LLMConfig) string {
	switch tier {
	case lucy.TierFast:
		return cfg.ModelFast
	case lucy.TierCode:
		return cfg.ModelCode
	case lucy.TierFrontier:
		return cfg.ModelFrontier
	default:
		return cfg.ModelDefault
	}
}
