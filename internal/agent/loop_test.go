package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shrimp/shrimp/internal/storage"
	"github.com/shrimp/shrimp/internal/tools"
	"github.com/shrimp/shrimp/pkg/models"
)

// fakeProvider returns a scripted sequence of completions, one per call to Complete.
type fakeProvider struct {
	results []*CompletionResult
	errs    []error
	calls   int
	seen    [][]CompletionMessage
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	i := f.calls
	f.calls++
	f.seen = append(f.seen, req.Messages)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.results) {
		return &CompletionResult{Content: "Done."}, nil
	}
	return f.results[i], nil
}

// echoTool just echoes its raw arguments back as output.
type echoTool struct{}

func (echoTool) Name() string               { return "echo" }
func (echoTool) Description() string        { return "echoes input" }
func (echoTool) Schema() json.RawMessage    { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	return rawArgs, true
}

type failingTool struct{}

func (failingTool) Name() string            { return "fail" }
func (failingTool) Description() string     { return "always fails" }
func (failingTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (failingTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	b, _ := json.Marshal(map[string]string{"error": "boom"})
	return b, false
}

func newTestOrchestrator(t *testing.T, provider LLMProvider) (*Orchestrator, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	mem := tools.NewMemoryStore(t.TempDir() + "/memory.json")
	reg := tools.NewRegistry(echoTool{}, failingTool{})
	return &Orchestrator{
		Store:        store,
		Tools:        reg,
		Provider:     provider,
		Memory:       mem,
		DefaultModel: "gpt-test",
	}, store
}

type recordingSink struct {
	events []models.TurnEvent
}

func (r *recordingSink) Emit(e models.TurnEvent) { r.events = append(r.events, e) }

func TestRunTurnRejectsEmptyMessage(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeProvider{})
	_, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "   "}, nil)
	if err == nil {
		t.Fatal("expected error for blank message")
	}
	var merr *models.Error
	if !errors.As(err, &merr) || merr.Kind != models.KindBadRequest {
		t.Fatalf("expected KindBadRequest, got %v", err)
	}
}

func TestRunTurnNoToolCallsProducesBubbles(t *testing.T) {
	provider := &fakeProvider{results: []*CompletionResult{
		{Content: "First paragraph.\n\nSecond paragraph."},
	}}
	orch, store := newTestOrchestrator(t, provider)
	sink := &recordingSink{}

	result, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "hello"}, sink)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.Bubbles) != 2 {
		t.Fatalf("expected 2 bubbles, got %v", result.Bubbles)
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one LLM call with no tool calls, got %d", provider.calls)
	}

	msgs, err := store.ListMessages(context.Background(), result.ConversationID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 1 user + 2 assistant messages, got %d", len(msgs))
	}

	assertEventOrder(t, sink.events)
}

func TestRunTurnDispatchesToolCallsAndPersistsRecords(t *testing.T) {
	provider := &fakeProvider{results: []*CompletionResult{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "echo", Input: json.RawMessage(`{"x":1}`)}}},
		{Content: "All done."},
	}}
	orch, store := newTestOrchestrator(t, provider)
	sink := &recordingSink{}

	result, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "run echo"}, sink)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 LLM calls (one with tool call, one final), got %d", provider.calls)
	}

	calls, err := store.ListToolCalls(context.Background(), result.ConversationID)
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call record, got %d", len(calls))
	}
	if calls[0].Status != models.ToolCallSuccess {
		t.Fatalf("expected success status, got %v", calls[0].Status)
	}

	assertEventOrder(t, sink.events)
}

func TestRunTurnToolFailureStillCompletesLoop(t *testing.T) {
	provider := &fakeProvider{results: []*CompletionResult{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "fail", Input: json.RawMessage(`{}`)}}},
		{Content: "Handled the failure."},
	}}
	orch, store := newTestOrchestrator(t, provider)

	result, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "trigger failure"}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	calls, err := store.ListToolCalls(context.Background(), result.ConversationID)
	if err != nil {
		t.Fatalf("ListToolCalls: %v", err)
	}
	if len(calls) != 1 || calls[0].Status != models.ToolCallError {
		t.Fatalf("expected one errored tool call record, got %+v", calls)
	}
}

func TestRunTurnStopsAtMaxIterationsWithoutInfiniteLoop(t *testing.T) {
	var results []*CompletionResult
	for i := 0; i < maxLoopIterations+4; i++ {
		results = append(results, &CompletionResult{
			ToolCalls: []ToolCall{{ID: "call", Name: "echo", Input: json.RawMessage(`{}`)}},
		})
	}
	provider := &fakeProvider{results: results}
	orch, _ := newTestOrchestrator(t, provider)

	_, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "loop forever"}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if provider.calls != maxLoopIterations {
		t.Fatalf("expected exactly %d LLM calls, got %d", maxLoopIterations, provider.calls)
	}
}

func TestRunTurnStripsThinkTags(t *testing.T) {
	provider := &fakeProvider{results: []*CompletionResult{
		{Content: "<think>internal reasoning</think>Visible reply."},
	}}
	orch, _ := newTestOrchestrator(t, provider)

	result, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "hi"}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.Bubbles) != 1 || result.Bubbles[0] != "Visible reply." {
		t.Fatalf("expected think tag stripped, got %v", result.Bubbles)
	}
}

func TestRunTurnFallsBackToDoneWhenAssistantProducesNoText(t *testing.T) {
	provider := &fakeProvider{results: []*CompletionResult{{Content: ""}}}
	orch, _ := newTestOrchestrator(t, provider)

	result, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "hi"}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.Bubbles) != 1 || result.Bubbles[0] != "Done." {
		t.Fatalf("expected fallback bubble, got %v", result.Bubbles)
	}
}

func TestRunTurnUpstreamErrorIsWrapped(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("connection refused")}}
	orch, _ := newTestOrchestrator(t, provider)

	_, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "hi"}, nil)
	var merr *models.Error
	if !errors.As(err, &merr) || merr.Kind != models.KindUpstreamError {
		t.Fatalf("expected KindUpstreamError, got %v", err)
	}
}

func TestRunTurnRewritesReplyContext(t *testing.T) {
	provider := &fakeProvider{results: []*CompletionResult{
		{Content: "first reply"},
		{Content: "second reply"},
	}}
	orch, store := newTestOrchestrator(t, provider)

	first, err := orch.RunTurn(context.Background(), RunTurnInput{Message: "original question"}, nil)
	if err != nil {
		t.Fatalf("first RunTurn: %v", err)
	}

	_, err = orch.RunTurn(context.Background(), RunTurnInput{
		ConversationID:   first.ConversationID,
		Message:          "follow up",
		ReplyToMessageID: first.MessageIDs[0],
	}, nil)
	if err != nil {
		t.Fatalf("second RunTurn: %v", err)
	}

	lastReq := provider.seen[len(provider.seen)-1]
	var found bool
	for _, m := range lastReq {
		if m.Role == "user" && m.Content != "" && containsAll(m.Content, "Context from replied message", "original question", "follow up") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a user message with rewritten reply context, got %+v", lastReq)
	}

	if _, err := store.GetConversation(context.Background(), first.ConversationID); err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// assertEventOrder checks the ordering guarantee from the turn orchestrator's
// contract: a conversation event first, each tool call's started event before
// any of its output or finished events, at most one finished event per call,
// and an assistant_done event last.
func assertEventOrder(t *testing.T, events []models.TurnEvent) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	if events[0].Type != models.EventConversation {
		t.Fatalf("expected first event to be conversation, got %v", events[0].Type)
	}
	if events[len(events)-1].Type != models.EventAssistantDone {
		t.Fatalf("expected last event to be assistant_done, got %v", events[len(events)-1].Type)
	}

	started := map[string]bool{}
	finished := map[string]bool{}
	for _, e := range events {
		switch e.Type {
		case models.EventToolCallStarted:
			started[e.ToolCallID] = true
		case models.EventToolCallOutput:
			if !started[e.ToolCallID] {
				t.Fatalf("tool_call_output before tool_call_started for %s", e.ToolCallID)
			}
		case models.EventToolCallFinished:
			if !started[e.ToolCallID] {
				t.Fatalf("tool_call_finished before tool_call_started for %s", e.ToolCallID)
			}
			if finished[e.ToolCallID] {
				t.Fatalf("tool call %s finished twice", e.ToolCallID)
			}
			finished[e.ToolCallID] = true
		}
	}
}
