package format

import (
	"regexp"
	"strings"
)

// internalTagPattern strips any <thinking>/<scratchpad>-style tags a model
// sometimes leaks into its final answer; these are planning artifacts, never
// user-facing content (spec §4.K: "internal-content stripper").
var internalTagPattern = regexp.MustCompile(`(?is)<(thinking|scratchpad|internal|planning|self_critique|reflection)>.*?</(thinking|scratchpad|internal|planning|self_critique|reflection)>`)

// metaReferentialPattern matches paragraphs that talk about the response
// itself rather than answering the user ("The previous response...",
// "Self-correction:...") — leftover commentary from a model's own
// self-revision pass.
var metaReferentialPattern = regexp.MustCompile(`(?im)^(the previous response|self[- ]correction:|upon reflection,|let me reconsider).*$`)

// qualityGateMarkerPattern matches bracketed quality-gate annotations a
// model sometimes emits around its own answer, e.g. "[QUALITY CHECK:
// PASSED]" or "[VERIFIED]".
var qualityGateMarkerPattern = regexp.MustCompile(`(?i)\[(quality check|verified|self-review)[^\]]*\]`)

var blankLineRun = regexp.MustCompile(`\n{3,}`)

// StripInternalContent removes any internal reasoning tags, meta-referential
// commentary, and quality-gate markers a model response leaked, trimming the
// surrounding whitespace left behind.
func StripInternalContent(text string) string {
	stripped := internalTagPattern.ReplaceAllString(text, "")
	stripped = metaReferentialPattern.ReplaceAllString(stripped, "")
	stripped = qualityGateMarkerPattern.ReplaceAllString(stripped, "")
	stripped = blankLineRun.ReplaceAllString(stripped, "\n\n")
	return strings.TrimSpace(stripped)
}

// toneReplacements maps robotic/template phrases the tone validator replaces
// with a neutral equivalent (spec §4.K: "replace a fixed set of
// robotic/template phrases... with neutral phrases; delete filler").
var toneReplacements = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`(?i)i wasn't able to`), "I couldn't"},
	{regexp.MustCompile(`(?i)could you try rephrasing\??`), "can you give me more detail?"},
	{regexp.MustCompile(`(?i)hit a snag`), "ran into an issue"},
	{regexp.MustCompile(`(?i)great question!?`), ""},
	{regexp.MustCompile(`(?i)as an ai language model,?`), ""},
	{regexp.MustCompile(`(?i)i'm just an ai,?`), ""},
	{regexp.MustCompile(`(?i)i don't have the ability to`), "I can't"},
	{regexp.MustCompile(`(?i)i'm happy to help!?`), ""},
	{regexp.MustCompile(`(?i)i hope this helps!?`), ""},
}

// toneFlags are the same robotic phrasings ToneIssues reports, kept for
// callers that only want to log rather than rewrite.
var toneFlags = []string{
	"as an ai language model",
	"i don't have the ability to",
	"i'm just an ai",
	"i wasn't able to",
	"could you try rephrasing",
	"hit a snag",
	"great question",
}

// ToneIssues returns the tone flags matched in text, for logging alongside
// the turn.
func ToneIssues(text string) []string {
	lower := strings.ToLower(text)
	var issues []string
	for _, flag := range toneFlags {
		if strings.Contains(lower, flag) {
			issues = append(issues, flag)
		}
	}
	return issues
}

// ReplaceRoboticPhrases rewrites known robotic/template phrasings to neutral
// text and collapses the whitespace left behind by deleted filler.
func ReplaceRoboticPhrases(text string) string {
	out := text
	for _, r := range toneReplacements {
		out = r.pattern.ReplaceAllString(out, r.replace)
	}
	out = regexp.MustCompile(`[ \t]{2,}`).ReplaceAllString(out, " ")
	out = regexp.MustCompile(`(?m)^[ \t]+`).ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// internalPathPattern matches filesystem-looking paths a model sometimes
// echoes from tool output (e.g. "/internal/agent/loop.go", "workspace/foo.json").
var internalPathPattern = regexp.MustCompile(`(?:/|\b)(?:internal|workspace|crons|skills)/[\w./-]+`)

// allCapsToolPattern matches SCREAMING_SNAKE_CASE tool identifiers, e.g.
// COMPOSIO_GMAIL_SEND_EMAIL or MULTI_EXECUTE.
var allCapsToolPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+){1,}\b`)

// brokenURLPattern matches a markdown link whose target is empty, a bare
// placeholder, or truncated mid-token.
var brokenURLPattern = regexp.MustCompile(`\[([^\]]*)\]\(\s*(?:#|javascript:void\(0\)|)\s*\)`)

// internalKeywords are process-internal terms that should never reach a
// user-visible response.
var internalKeywords = []string{
	"lucy_custom_", "composio_", "system prompt", "tool_call_id", "token_bucket",
}

// humanizeTable maps a known internal tool-name fragment to the natural
// phrase a user should see instead.
var humanizeTable = map[string]string{
	"SEND_EMAIL":      "sending an email",
	"LIST_EVENTS":     "checking your calendar",
	"CREATE_EVENT":    "creating a calendar event",
	"SEARCH_MESSAGES": "searching messages",
	"FETCH":           "fetching data",
}

// Sanitize removes internal paths, internal keywords, and SCREAMING_SNAKE
// tool-name leakage from a model's final text, humanizing recognizable tool
// names and replacing broken links with a placeholder (spec §4.K: "strip
// internal paths, internal file names, known internal keywords, all-caps
// tool-name patterns; humanize known tool names... remove broken URLs").
func Sanitize(text string) string {
	out := internalPathPattern.ReplaceAllString(text, "")
	for _, kw := range internalKeywords {
		out = regexp.MustCompile(`(?i)`+regexp.QuoteMeta(kw)).ReplaceAllString(out, "")
	}
	out = allCapsToolPattern.ReplaceAllStringFunc(out, func(tok string) string {
		for frag, phrase := range humanizeTable {
			if strings.Contains(tok, frag) {
				return phrase
			}
		}
		return ""
	})
	out = brokenURLPattern.ReplaceAllString(out, "(link unavailable)")
	out = blankLineRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

var (
	boldPattern   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	linkPattern   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

// ConvertMarkdown rewrites common Markdown-isms into the plainer chat-format
// conventions of channels that don't render full Markdown: bold markers
// become single asterisks, headers become an emphasized line, and links
// become "text (url)" instead of bracket-paren syntax (spec §4.K: "Markdown
// → chat-format conversion").
func ConvertMarkdown(text string) string {
	out := boldPattern.ReplaceAllString(text, "*$1*")
	out = headerPattern.ReplaceAllString(out, "*$1*")
	out = linkPattern.ReplaceAllString(out, "$1 ($2)")
	out = blankLineRun.ReplaceAllString(out, "\n\n")
	return out
}

// dataSignalPattern flags responses that are mostly raw data (numbers,
// bullet lists) without any interpretive language.
var dataSignalPattern = regexp.MustCompile(`\d`)

// interpretationSignals are words that indicate the response already offers
// analysis rather than a bare data dump.
var interpretationSignals = []string{
	"because", "recommend", "suggest", "compared to", "means that", "so you",
	"this indicates", "worth noting", "in other words",
}

// NeedsEnrichment heuristically flags a response that surfaces data without
// any interpretation, comparison, or recommendation — a candidate for the
// optional depth-enhancer turn (spec §4.K: "if response contains data
// signals but no interpretation/comparison/recommendation signals").
func NeedsEnrichment(text string) bool {
	if !dataSignalPattern.MatchString(text) {
		return false
	}
	lower := strings.ToLower(text)
	for _, sig := range interpretationSignals {
		if strings.Contains(lower, sig) {
			return false
		}
	}
	return len(text) > 40
}

// ForChannel runs the full output post-processing pipeline for one channel:
// sanitize, Markdown-to-chat conversion (including the channel's table
// mode), robotic-phrase replacement, and internal-content stripping, in the
// order spec §4.K lists them.
func ForChannel(text, channel string) string {
	out := Sanitize(text)
	out = ConvertMarkdown(out)
	out = ConvertTables(out, DefaultTableModeForChannel(channel))
	out = ReplaceRoboticPhrases(out)
	out = StripInternalContent(out)
	return out
}
