// Package tools implements the integration-wrapper registration contract
// named in spec §1's Non-goals ("custom per-integration wrappers (only
// their registration contract is specified)"): a named executor is
// registered once per tool at startup, then dispatched by name when the
// AgentOrchestrator calls one during a turn. Grounded on the teacher's
// internal/agent tool-call dispatch (a name-keyed map of handlers with a
// not-registered error path), narrowed to the static registration/lookup
// surface this module owns; the wrappers themselves (Composio-style
// integration calls, remote exec, document generation) are out of scope.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/lucy/internal/lucyerr"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

// Executor runs one tool call to completion and is what a per-integration
// wrapper implements to register itself.
type Executor interface {
	Execute(ctx context.Context, call lucy.ToolCall) (lucy.ToolResult, error)
}

// ExecutorFunc adapts a function to an Executor.
type ExecutorFunc func(ctx context.Context, call lucy.ToolCall) (lucy.ToolResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, call lucy.ToolCall) (lucy.ToolResult, error) {
	return f(ctx, call)
}

// Registry is a name-keyed table of registered tool executors. It
// satisfies orchestrator.ToolExecutor, dispatching each call to the
// executor registered under its name.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds name to executor, overwriting any prior registration.
// Called at startup once per wrapper-declared tool (spec §1).
func (r *Registry) Register(name string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = executor
}

// Execute dispatches call to its registered executor. An unregistered tool
// name produces a KindUnknownTool error rather than a panic, so the caller
// can apply spec §7's unknown_tool policy (feed "tool not available" back
// to the LLM, count globally) instead of the generic tool-error path.
func (r *Registry) Execute(ctx context.Context, call lucy.ToolCall) (lucy.ToolResult, error) {
	r.mu.RLock()
	executor, ok := r.executors[call.Name]
	r.mu.RUnlock()
	if !ok {
		result := lucy.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    fmt.Sprintf("tool %q is not available", call.Name),
			IsError:    true,
		}
		return result, lucyerr.New(lucyerr.KindUnknownTool, fmt.Sprintf("tool %q is not registered", call.Name))
	}
	return executor.Execute(ctx, call)
}

// Names returns every currently registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	return names
}
