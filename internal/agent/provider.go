// Package agent implements the turn orchestrator: the bounded tool-calling
// loop that drives an LLM against the tool registry, splits its final text
// into bubbles, and streams the result through an event sink.
package agent

import (
	"context"
	"encoding/json"
)

// ToolCall is one function-call request surfaced by the LLM in an assistant
// message.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// CompletionMessage is one message in the chat-completion request/response
// wire shape: user/assistant/system/tool roles, optionally carrying tool
// calls (assistant) or a tool result (tool, keyed by ToolCallID).
type CompletionMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDeclaration is the shape handed to the LLM for function calling.
type ToolDeclaration struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CompletionRequest is one round-trip request to an LLM provider.
type CompletionRequest struct {
	Model    string
	Messages []CompletionMessage
	Tools    []ToolDeclaration
}

// CompletionResult is the assistant message returned by a completion
// round-trip: text content and/or tool calls to dispatch.
type CompletionResult struct {
	Content   string
	ToolCalls []ToolCall
}

// LLMProvider is the abstract Chat Completion endpoint the turn orchestrator
// drives. Implementations must be safe for concurrent use: distinct turns
// may call Complete concurrently.
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}
