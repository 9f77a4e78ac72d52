// Package toolindex implements the BM25 capability index of spec §4.E:
// a per-workspace, in-memory lexical index over tool descriptors that
// returns the K most relevant tools for a query in well under a
// millisecond. There is no direct teacher file to adapt — the teacher's
// internal/rag/index/manager.go is a vector/embedding pipeline, a
// different retrieval family entirely — so this package is grounded
// instead on _examples/original_source/src/lucy/retrieval/capability_index.py,
// the pre-distillation implementation this spec was written from, kept
// in the teacher's general package idiom (small focused files, exported
// constructor + behavior methods, a process-level registry type).
package toolindex

import (
	"regexp"
	"strings"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		"a an the and or of to in for on with by at is are was were be been " +
			"this that it its they their them what which who when where how") {
		stopWords[w] = true
	}
}

// querySynonyms is a static concept-word expansion table consulted at
// query time only; the index itself never stores synonyms.
var querySynonyms = map[string][]string{
	"meeting":  {"calendar", "event", "events"},
	"meetings": {"calendar", "events", "list"},
	"schedule": {"calendar", "events", "list"},
	"email":    {"mail", "gmail", "message", "fetch"},
	"emails":   {"mail", "gmail", "messages", "fetch"},
	"inbox":    {"mail", "gmail", "messages", "fetch"},
	"ticket":   {"issue"},
	"tickets":  {"issues"},
	"bug":      {"issue"},
	"task":     {"issue", "todo"},
	"tasks":    {"issues", "todos"},
	"file":     {"drive", "document", "find"},
	"files":    {"drive", "documents", "find", "list"},
	"pr":       {"pull", "request"},
	"repo":     {"repository"},
	"repos":    {"repositories"},
	"next":     {"list", "find", "get", "upcoming"},
	"show":     {"list", "find", "get", "fetch"},
	"check":    {"list", "find", "get", "fetch"},
	"what":     {"list", "get", "find"},
	"search":   {"find", "list", "query"},
	"find":     {"search", "list", "get"},
	"recent":   {"fetch", "list", "latest"},
	"latest":   {"fetch", "list", "recent"},
}

var splitSep = regexp.MustCompile(`[_\s\-/]+`)
var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

var alphaOnly = regexp.MustCompile(`^[a-zA-Z]+$`)

// Tokenize converts a tool name or description into BM25 tokens: split on
// separators and CamelCase boundaries, lowercase, drop short/non-alphabetic/
// stop-word tokens, and additionally emit every valid prefix/suffix split of
// any remaining long token (both halves alphabetic and >= 3 chars).
func Tokenize(text string) []string {
	parts := splitSep.Split(text, -1)

	var rough []string
	for _, part := range parts {
		spaced := camelBoundary.ReplaceAllString(part, "$1 $2")
		rough = append(rough, strings.Fields(strings.ToLower(spaced))...)
	}

	var tokens []string
	for _, t := range rough {
		if len(t) <= 1 || !alphaOnly.MatchString(t) || stopWords[t] {
			continue
		}
		tokens = append(tokens, t)
	}

	var expanded []string
	for _, tok := range tokens {
		expanded = append(expanded, tok)
		expanded = append(expanded, compoundSplits(tok)...)
	}
	return expanded
}

// compoundSplits generates every split of tok where both halves are
// alphabetic and at least 3 characters long, for tokens long enough (>= 6
// chars) to plausibly be a compound word (e.g. "googlecalendar").
func compoundSplits(tok string) []string {
	if len(tok) < 6 {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for i := 3; i <= len(tok)-3; i++ {
		left, right := tok[:i], tok[i:]
		if len(left) < 3 || len(right) < 3 {
			continue
		}
		if !alphaOnly.MatchString(left) || !alphaOnly.MatchString(right) {
			continue
		}
		for _, p := range [2]string{left, right} {
			if p != tok && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// ExpandQuery appends synonym tokens for any recognized concept word,
// deduplicating the result while preserving first-seen order.
func ExpandQuery(tokens []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range tokens {
		add(t)
	}
	for _, t := range tokens {
		for _, syn := range querySynonyms[t] {
			add(syn)
		}
	}
	return out
}

// InferAppSlug extracts the generic app-slug prefix of a tool name: the
// substring before the first underscore, lowercased (spec §4.E).
func InferAppSlug(toolName string) string {
	name := strings.ToLower(toolName)
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		return name[:idx]
	}
	return name
}
