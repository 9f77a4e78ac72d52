package format

import "testing"

func TestStripInternalContentRemovesThinkingTags(t *testing.T) {
	in := "<thinking>let me reason about this</thinking>Here is your answer."
	got := StripInternalContent(in)
	if got != "Here is your answer." {
		t.Errorf("got %q", got)
	}
}

func TestStripInternalContentNoTagsUnchanged(t *testing.T) {
	in := "Plain answer, no tags."
	if got := StripInternalContent(in); got != in {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestToneIssuesFlagsKnownPhrases(t *testing.T) {
	issues := ToneIssues("As an AI language model, I can't do that.")
	if len(issues) == 0 {
		t.Errorf("expected at least one tone issue flagged")
	}
}

func TestToneIssuesCleanTextNoFlags(t *testing.T) {
	if issues := ToneIssues("Sure, here's the summary you asked for."); len(issues) != 0 {
		t.Errorf("expected no tone issues, got %v", issues)
	}
}

func TestForChannelStripsAndConvertsTables(t *testing.T) {
	in := "<thinking>internal</thinking>| a | b |\n|---|---|\n| 1 | 2 |"
	got := ForChannel(in, "slack")
	if got == in {
		t.Errorf("expected ForChannel to transform input")
	}
}
