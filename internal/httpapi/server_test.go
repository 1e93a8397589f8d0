package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func newTestServer(t *testing.T, content string) (*Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	orch := &agent.Orchestrator{
		Store:        store,
		Tools:        tools.NewRegistry(),
		Provider:     &stubProvider{content: content},
		Memory:       tools.NewMemoryStore(t.TempDir() + "/memory.json"),
		DefaultModel: "gpt-test",
	}
	return &Server{Orchestrator: orch, DefaultModel: "gpt-test"}, store
}

func TestHandleConversationsCreateAndList(t *testing.T) {
	s, _ := newTestServer(t, "hi")
	mux := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/conversations = %d, body %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/conversations = %d", rec.Code)
	}
	var convs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &convs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
}

func TestHandleConversationByIDRename(t *testing.T) {
	s, store := newTestServer(t, "hi")
	conv, err := store.CreateConversation(context.Background(), "gpt-test", "New chat")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	body := bytes.NewBufferString(`{"title":"Renamed"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/conversations/"+conv.ID, body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH /api/conversations/:id = %d, body %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/conversations/"+conv.ID, nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var payload struct {
		Conversation struct {
			Title string `json:"title"`
		} `json:"conversation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Conversation.Title != "Renamed" {
		t.Fatalf("expected title Renamed, got %q", payload.Conversation.Title)
	}
}

func TestHandleConversationByIDRenameRejectsEmptyTitle(t *testing.T) {
	s, store := newTestServer(t, "hi")
	conv, _ := store.CreateConversation(context.Background(), "gpt-test", "New chat")

	body := bytes.NewBufferString(`{"title":""}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/conversations/"+conv.ID, body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty title, got %d", rec.Code)
	}
}

func TestHandleChatStreamEmitsDoneFrame(t *testing.T) {
	s, _ := newTestServer(t, "Hello there.")
	body := bytes.NewBufferString(`{"message":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/chat/stream = %d, body %s", rec.Code, rec.Body)
	}
	out := rec.Body.String()
	if !strings.Contains(out, `"type":"conversation"`) {
		t.Fatalf("expected a conversation frame, got %s", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Fatalf("expected stream to end with [DONE], got %s", out)
	}
}

func TestHandleChatStreamRejectsEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t, "hi")
	body := bytes.NewBufferString(`{"message":"   "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	out := rec.Body.String()
	if !strings.Contains(out, `"type":"error"`) {
		t.Fatalf("expected an error frame for empty message, got %s", out)
	}
}

func TestHandleJobsRunsTrigger(t *testing.T) {
	s, _ := newTestServer(t, "The answer is <final_result>42</final_result>.")
	body := bytes.NewBufferString(`{"message":"what is the answer?","trigger":"api"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/jobs = %d, body %s", rec.Code, rec.Body)
	}
	var payload struct {
		FinalResult string `json:"finalResult"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.FinalResult != "42" {
		t.Fatalf("expected finalResult=42, got %q", payload.FinalResult)
	}
}

func TestHandleHealthz(t *testing.T) {
	s, _ := newTestServer(t, "hi")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", rec.Code)
	}
}

func TestHandleRuntimeReportsDefaults(t *testing.T) {
	s, _ := newTestServer(t, "hi")
	s.DBPath = "/tmp/shrimp.db"
	req := httptest.NewRequest(http.MethodGet, "/api/runtime", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/runtime = %d", rec.Code)
	}
	var payload struct {
		DefaultModel string `json:"defaultModel"`
		DBPath       string `json:"dbPath"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.DefaultModel != "gpt-test" || payload.DBPath != "/tmp/shrimp.db" {
		t.Fatalf("unexpected runtime payload: %+v", payload)
	}
}
