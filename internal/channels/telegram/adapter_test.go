package telegram

import (
	"context"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/internal/storage"
	"github.com/shrimp/shrimp/internal/tools"
)

type stubProvider struct {
	content string
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResult, error) {
	return &agent.CompletionResult{Content: s.content}, nil
}

type fakeBotClient struct {
	sent []string
}

func (f *fakeBotClient) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	f.sent = append(f.sent, params.Text)
	return &tgmodels.Message{}, nil
}

func newTestAdapter(t *testing.T, content string) (*Adapter, *fakeBotClient, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	orch := &agent.Orchestrator{
		Store:        store,
		Tools:        tools.NewRegistry(),
		Provider:     &stubProvider{content: content},
		Memory:       tools.NewMemoryStore(t.TempDir() + "/memory.json"),
		DefaultModel: "gpt-test",
	}
	a := New(Config{Token: "unused", Model: "gpt-test"}, orch, nil)
	client := &fakeBotClient{}
	a.bot = client
	a.running = true
	return a, client, store
}

func TestHandleUpdateIgnoresCommandMessages(t *testing.T) {
	a, client, _ := newTestAdapter(t, "reply")
	a.handleUpdate(context.Background(), nil, &tgmodels.Update{
		Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 1}, Text: "/start"},
	})
	if len(client.sent) != 0 {
		t.Fatalf("expected command to be ignored, got sent messages %v", client.sent)
	}
}

func TestHandleUpdateIgnoresEmptyMessages(t *testing.T) {
	a, client, _ := newTestAdapter(t, "reply")
	a.handleUpdate(context.Background(), nil, &tgmodels.Update{
		Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 1}, Text: ""},
	})
	if len(client.sent) != 0 {
		t.Fatalf("expected empty message to be ignored, got %v", client.sent)
	}
}

func TestHandleUpdateRunsTurnAndRepliesWithBubbles(t *testing.T) {
	a, client, store := newTestAdapter(t, "First paragraph.\n\nSecond paragraph.")
	a.handleUpdate(context.Background(), nil, &tgmodels.Update{
		Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 42}, Text: "hello there"},
	})
	if len(client.sent) != 2 {
		t.Fatalf("expected 2 reply bubbles, got %v", client.sent)
	}
	if client.sent[0] != "First paragraph." || client.sent[1] != "Second paragraph." {
		t.Fatalf("unexpected bubble contents: %v", client.sent)
	}

	convs, err := store.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected exactly one conversation to be created, got %d", len(convs))
	}
}

func TestHandleUpdateReusesConversationForSameChat(t *testing.T) {
	a, _, store := newTestAdapter(t, "ack")
	upd := func() *tgmodels.Update {
		return &tgmodels.Update{Message: &tgmodels.Message{Chat: tgmodels.Chat{ID: 7}, Text: "hi"}}
	}
	a.handleUpdate(context.Background(), nil, upd())
	a.handleUpdate(context.Background(), nil, upd())

	convs, err := store.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected the second message to reuse the channel link's conversation, got %d conversations", len(convs))
	}
}

func TestStatusReportsAuthenticatedWhenBotClientSet(t *testing.T) {
	a, _, _ := newTestAdapter(t, "reply")
	status := a.Status()
	if !status.Authenticated {
		t.Fatal("expected Authenticated=true once a bot client is set")
	}
	if status.Channel != "telegram" {
		t.Fatalf("expected channel=telegram, got %q", status.Channel)
	}
}
