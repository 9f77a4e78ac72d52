package lucy

import "context"

// LLMMessage is one turn in a conversation sent to an LLMClient.
type LLMMessage struct {
	Role        string // "system", "user", "assistant", or "tool"
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// LLMRequest is the provider-agnostic completion request shape, modeled on
// the teacher's agent.CompletionRequest so a real SDK client (Anthropic,
// OpenAI) satisfies LLMClient without adaptation.
type LLMRequest struct {
	Model     string
	System    string
	Messages  []LLMMessage
	Tools     []ToolDescriptor
	MaxTokens int
}

// LLMResponse is the non-streaming completion result: either assistant text,
// or one or more requested tool calls (never both empty unless the provider
// errored).
type LLMResponse struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// LLMClient is the opaque model-calling dependency the orchestrator and
// supervisor both depend on. The concrete client (Anthropic, OpenAI) is out
// of scope for this module; CreateMessage's shape mirrors
// agent.LLMProvider.Complete's request/response pairing, collapsed to a
// single non-streaming call since the control plane only needs a final
// result per turn, not incremental tokens.
type LLMClient interface {
	CreateMessage(ctx context.Context, req LLMRequest) (*LLMResponse, error)
}
