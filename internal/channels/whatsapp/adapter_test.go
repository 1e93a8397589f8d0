package whatsapp

import (
	"context"
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

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

func newTestAdapter(t *testing.T, content string) (*Adapter, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	orch := &agent.Orchestrator{
		Store:        store,
		Tools:        tools.NewRegistry(),
		Provider:     &stubProvider{content: content},
		Memory:       tools.NewMemoryStore(t.TempDir() + "/memory.json"),
		DefaultModel: "gpt-test",
	}
	a := New(Config{SessionPath: t.TempDir() + "/session.db", Model: "gpt-test"}, orch, nil)
	a.running = true
	return a, store
}

func TestExtractTextFromConversation(t *testing.T) {
	msg := &waE2E.Message{Conversation: proto.String("hello there")}
	if got := extractText(msg); got != "hello there" {
		t.Fatalf("extractText() = %q, want %q", got, "hello there")
	}
}

func TestExtractTextFromExtendedTextMessage(t *testing.T) {
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("reply body")}}
	if got := extractText(msg); got != "reply body" {
		t.Fatalf("extractText() = %q, want %q", got, "reply body")
	}
}

func TestExtractTextIgnoresOtherMessageTypes(t *testing.T) {
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("a photo")}}
	if got := extractText(msg); got != "" {
		t.Fatalf("extractText() = %q, want empty for non-text message", got)
	}
}

func TestDeliverRunsTurnAndSendsEachBubble(t *testing.T) {
	a, store := newTestAdapter(t, "First paragraph.\n\nSecond paragraph.")
	var sent []string
	a.sendFunc = func(ctx context.Context, externalChatID, text string) error {
		sent = append(sent, text)
		return nil
	}

	a.deliver(context.Background(), "123@s.whatsapp.net", "hello")

	if len(sent) != 2 {
		t.Fatalf("expected 2 reply bubbles, got %v", sent)
	}
	if sent[0] != "First paragraph." || sent[1] != "Second paragraph." {
		t.Fatalf("unexpected bubble contents: %v", sent)
	}

	convs, err := store.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected exactly one conversation, got %d", len(convs))
	}
}

func TestDeliverReusesConversationForSameChat(t *testing.T) {
	a, store := newTestAdapter(t, "ack")
	a.sendFunc = func(ctx context.Context, externalChatID, text string) error { return nil }

	a.deliver(context.Background(), "555@s.whatsapp.net", "first")
	a.deliver(context.Background(), "555@s.whatsapp.net", "second")

	convs, err := store.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected the second message to reuse the channel link's conversation, got %d", len(convs))
	}
}

func TestDeliverNoOpsWithoutSendFunc(t *testing.T) {
	a, _ := newTestAdapter(t, "ack")
	a.sendFunc = nil
	a.deliver(context.Background(), "nobody@s.whatsapp.net", "hi")
}

func TestStatusReportsQRCodeBeforeAuthentication(t *testing.T) {
	a, _ := newTestAdapter(t, "ack")
	a.qrCode = "2@abc..."
	status := a.Status()
	if status.Authenticated {
		t.Fatal("expected Authenticated=false before pairing completes")
	}
	if status.QRCode != "2@abc..." {
		t.Fatalf("expected QR code to surface in status, got %q", status.QRCode)
	}
	if status.Channel != "whatsapp" {
		t.Fatalf("expected channel=whatsapp, got %q", status.Channel)
	}
}
