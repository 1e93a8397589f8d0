package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shrimp/shrimp/internal/agent"
)

func TestConvertToOpenAIMessages(t *testing.T) {
	messages := []agent.CompletionMessage{
		{Role: "system", Content: "You are a helpful assistant"},
		{Role: "user", Content: "Hello"},
		{
			Role:    "assistant",
			Content: "",
			ToolCalls: []agent.ToolCall{
				{ID: "call_123", Name: "get_weather", Input: json.RawMessage(`{"location":"NYC"}`)},
			},
		},
		{Role: "tool", Content: "Sunny, 72F", ToolCallID: "call_123"},
	}

	got := convertToOpenAIMessages(messages)
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	if got[2].ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("expected tool call name to survive conversion, got %+v", got[2].ToolCalls[0])
	}
	if got[3].ToolCallID != "call_123" {
		t.Fatalf("expected tool result to carry its call id, got %q", got[3].ToolCallID)
	}
}

func TestConvertToOpenAITools(t *testing.T) {
	decls := []agent.ToolDeclaration{
		{
			Name:        "test_tool",
			Description: "A test tool",
			Schema:      json.RawMessage(`{"type":"object","properties":{"arg":{"type":"string"}}}`),
		},
	}

	got := convertToOpenAITools(decls)
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	if got[0].Function.Name != "test_tool" {
		t.Fatalf("expected name test_tool, got %v", got[0].Function.Name)
	}
}

func TestConvertToOpenAIToolsFallsBackOnBadSchema(t *testing.T) {
	decls := []agent.ToolDeclaration{
		{Name: "broken", Description: "d", Schema: json.RawMessage(`not json`)},
	}
	got := convertToOpenAITools(decls)
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	params, ok := got[0].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Fatalf("expected fallback object schema, got %+v", got[0].Function.Parameters)
	}
}

func TestProviderName(t *testing.T) {
	provider := NewOpenAIProvider("", "")
	if got := provider.Name(); got != "openai" {
		t.Errorf("Name() = %v, want openai", got)
	}
}

func TestCompleteFailsWithoutAPIKey(t *testing.T) {
	provider := NewOpenAIProvider("", "")
	_, err := provider.Complete(context.Background(), &agent.CompletionRequest{
		Model:    "gpt-4.1-mini",
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("expected error without an API key")
	}
}

func TestIsRetryableClassifiesCommonFailures(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"rate limit", errString("rate limit exceeded"), true},
		{"429", errString("HTTP 429"), true},
		{"server error", errString("HTTP 500"), true},
		{"invalid key", errString("invalid api key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.wantRetry {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.wantRetry)
			}
		})
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errString(s string) error { return stringError(s) }
