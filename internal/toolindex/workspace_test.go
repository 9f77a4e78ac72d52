package toolindex

import (
	"testing"
	"time"

	"github.com/haasonsaas/lucy/pkg/lucy"
)

func sampleTools() []lucy.ToolDescriptor {
	return []lucy.ToolDescriptor{
		{Name: "gmail_send_message", AppSlug: "gmail", Description: "Send an email message"},
		{Name: "gmail_list_messages", AppSlug: "gmail", Description: "List recent messages in the inbox"},
		{Name: "calendar_create_event", AppSlug: "calendar", Description: "Create a calendar event"},
		{Name: "calendar_list_events", AppSlug: "calendar", Description: "List upcoming calendar events"},
		{Name: "github_create_issue", AppSlug: "github", Description: "File a new issue in a repository"},
	}
}

func TestWorkspaceIndex_AddToolsSkipsDuplicates(t *testing.T) {
	idx := NewWorkspaceIndex("ws1")
	added := idx.AddTools(sampleTools())
	if added != 5 {
		t.Fatalf("AddTools() = %d, want 5", added)
	}
	added = idx.AddTools(sampleTools())
	if added != 0 {
		t.Fatalf("AddTools() on re-add = %d, want 0", added)
	}
	if idx.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", idx.Size())
	}
}

func TestWorkspaceIndex_RetrieveRanksRelevantToolsFirst(t *testing.T) {
	idx := NewWorkspaceIndex("ws1")
	idx.AddTools(sampleTools())

	result := idx.Retrieve("send an email", 3, nil)
	if len(result.Tools) == 0 {
		t.Fatalf("expected at least one result")
	}
	if result.Tools[0].Name != "gmail_send_message" {
		t.Fatalf("top result = %s, want gmail_send_message", result.Tools[0].Name)
	}
}

func TestWorkspaceIndex_RetrieveEmptyQueryFallsBackToUsage(t *testing.T) {
	idx := NewWorkspaceIndex("ws1")
	idx.AddTools(sampleTools())
	idx.RecordUsage("github_create_issue")
	idx.RecordUsage("github_create_issue")

	result := idx.Retrieve("", 1, nil)
	if len(result.Tools) != 1 || result.Tools[0].Name != "github_create_issue" {
		t.Fatalf("empty-query fallback = %+v, want github_create_issue first", result.Tools)
	}
}

func TestWorkspaceIndex_RetrieveAppFilterExcludesOtherApps(t *testing.T) {
	idx := NewWorkspaceIndex("ws1")
	idx.AddTools(sampleTools())

	result := idx.Retrieve("list", 10, map[string]bool{"calendar": true})
	for _, tool := range result.Tools {
		if tool.AppSlug != "calendar" {
			t.Fatalf("app filter leaked a non-calendar tool: %s", tool.Name)
		}
	}
}

func TestWorkspaceIndex_MinPerAppGuaranteesRepresentation(t *testing.T) {
	idx := NewWorkspaceIndex("ws1")
	idx.AddTools(sampleTools())

	result := idx.Retrieve("list", 2, map[string]bool{"gmail": true, "calendar": true, "github": true})
	apps := map[string]bool{}
	for _, tool := range result.Tools {
		apps[tool.AppSlug] = true
	}
	if len(apps) < 2 {
		t.Fatalf("expected phase-1 per-app floor to surface multiple apps, got %v", apps)
	}
}

func TestWorkspaceIndex_IsStale(t *testing.T) {
	cur := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	idx := NewWorkspaceIndex("ws1")
	idx.now = func() time.Time { return cur }
	if !idx.IsStale() {
		t.Fatalf("a never-indexed workspace should report stale")
	}
	idx.AddTools(sampleTools())
	if idx.IsStale() {
		t.Fatalf("freshly indexed workspace should not be stale")
	}
	cur = cur.Add(301 * time.Second)
	if !idx.IsStale() {
		t.Fatalf("workspace should be stale after exceeding the TTL")
	}
}
