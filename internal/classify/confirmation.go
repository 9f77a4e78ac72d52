package classify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

// exemptTools never gate regardless of action type: discovery calls and
// Lucy's own read-only introspection tools (spec §4.I: "Exempt tool set").
var exemptTools = map[string]bool{
	"lucy_list_crons":             true,
	"lucy_list_heartbeats":        true,
	"lucy_search_slack_history":   true,
	"lucy_get_channel_history":    true,
	"lucy_web_search":             true,
	"lucy_read_file":              true,
	"lucy_list_files":             true,
	"COMPOSIO_SEARCH_TOOLS":       true,
	"COMPOSIO_GET_TOOL_SCHEMAS":   true,
	"COMPOSIO_MANAGE_CONNECTIONS": true,
}

// implicitConsentTools never gate either: the user asked for the artifact by
// name, so generating it carries no additional surprise (spec §4.I:
// "Implicit-consent set (user-requested artifact generators)").
var implicitConsentTools = map[string]bool{
	"lucy_generate_pdf":  true,
	"lucy_generate_excel": true,
	"lucy_generate_docx":  true,
	"lucy_generate_pptx":  true,
	"lucy_generate_image": true,
}

// PendingAction is a tool call paused for explicit user approval.
type PendingAction struct {
	ActionID    string
	ToolName    string
	Parameters  map[string]any
	Description string
	ActionType  lucy.ActionType
	TenantID    string
	CreatedAt   time.Time
	Resolved    bool
	Approved    bool
}

// Block is one element of the generated approve/cancel UI, shaped after a
// chat platform's block-kit JSON (section text, or an actions block with
// two buttons carrying approve:<id>/cancel:<id> values).
type Block struct {
	Type string
	Text string
	// Buttons is populated only on the final "actions" block.
	Buttons []Button
}

// Button is one interactive element within an actions Block.
type Button struct {
	Text  string
	Style string // "primary", "danger", or "" for default
	Value string // "approve:<action_id>" or "cancel:<action_id>"
}

// GateResult is what ConfirmationGate.Evaluate returns for one tool call.
type GateResult struct {
	// Gated is true when the caller must pause and wait for resolution.
	Gated  bool
	Action *PendingAction
	Blocks []Block
}

// ConfirmationGate decides whether a classified tool call needs explicit
// user approval before it runs, and tracks pending actions until resolved
// (spec §4.I). Grounded on the same original_source action-classifier
// module as Classifier; no teacher file implements chat approval gating
// for tool calls (see DESIGN.md).
type ConfirmationGate struct {
	mu      sync.Mutex
	pending map[string]*PendingAction
	now     func() time.Time
}

// NewConfirmationGate returns an empty gate.
func NewConfirmationGate() *ConfirmationGate {
	return &ConfirmationGate{
		pending: make(map[string]*PendingAction),
		now:     time.Now,
	}
}

// Evaluate decides whether toolName/actionType needs approval before
// execution. cronMode is true when the call originates from a scheduled
// cron firing rather than an interactive chat turn (spec §4.I: "During
// cron execution: WRITE auto-approved, DESTRUCTIVE still gated").
func (g *ConfirmationGate) Evaluate(tenantID, toolName string, parameters map[string]any, actionType lucy.ActionType, description string, cronMode bool) GateResult {
	if exemptTools[toolName] || implicitConsentTools[toolName] {
		return GateResult{Gated: false}
	}
	if actionType == lucy.ActionRead {
		return GateResult{Gated: false}
	}
	if cronMode && actionType == lucy.ActionWrite {
		return GateResult{Gated: false}
	}

	action := &PendingAction{
		ActionID:    "act_" + uuid.NewString(),
		ToolName:    toolName,
		Parameters:  parameters,
		Description: description,
		ActionType:  actionType,
		TenantID:    tenantID,
		CreatedAt:   g.now(),
	}

	g.mu.Lock()
	g.pending[action.ActionID] = action
	g.mu.Unlock()

	return GateResult{
		Gated:  true,
		Action: action,
		Blocks: buildBlocks(action),
	}
}

// buildBlocks renders the approve/cancel UI of spec §6: a description
// section, an additional warning header for destructive actions, and an
// actions block with two buttons carrying approve:<id>/cancel:<id> values.
func buildBlocks(action *PendingAction) []Block {
	var blocks []Block
	if action.ActionType == lucy.ActionDestructive {
		blocks = append(blocks, Block{
			Type: "header",
			Text: "⚠️ This action cannot be undone",
		})
	}
	blocks = append(blocks, Block{
		Type: "section",
		Text: action.Description,
	})
	blocks = append(blocks, Block{
		Type: "actions",
		Buttons: []Button{
			{Text: "Approve", Style: "primary", Value: "approve:" + action.ActionID},
			{Text: "Cancel", Style: "danger", Value: "cancel:" + action.ActionID},
		},
	})
	return blocks
}

// Resolve marks a pending action approved or cancelled. It returns an error
// if the action is unknown or already resolved.
func (g *ConfirmationGate) Resolve(actionID string, approved bool) (*PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	action, ok := g.pending[actionID]
	if !ok {
		return nil, fmt.Errorf("unknown pending action %q", actionID)
	}
	if action.Resolved {
		return nil, fmt.Errorf("pending action %q already resolved", actionID)
	}
	action.Resolved = true
	action.Approved = approved
	return action, nil
}

// Get returns a pending action by id, or nil if unknown.
func (g *ConfirmationGate) Get(actionID string) *PendingAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[actionID]
}

// Prune removes resolved actions older than maxAge, bounding memory growth.
func (g *ConfirmationGate) Prune(maxAge time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-maxAge)
	removed := 0
	for id, action := range g.pending {
		if action.Resolved && action.CreatedAt.Before(cutoff) {
			delete(g.pending, id)
			removed++
		}
	}
	return removed
}
