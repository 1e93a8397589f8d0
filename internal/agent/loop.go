package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shrimp/shrimp/internal/metrics"
	"github.com/shrimp/shrimp/internal/storage"
	"github.com/shrimp/shrimp/internal/tools"
	"github.com/shrimp/shrimp/pkg/models"
)

const (
	maxLoopIterations   = 8
	toolOutputPreviewLen = 800
	tokenChunkSize      = 20
	tokenDelay          = 14 * time.Millisecond
	bubbleDelay         = 120 * time.Millisecond
	replyPreviewLen     = 180
	titlePreviewLen     = 60
	attachmentExcerptLen = 5000
)

var (
	thinkBlock     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	strayThinkTags = regexp.MustCompile(`(?i)</?think>`)
)

// Orchestrator drives the bounded tool-calling loop described in the turn
// orchestrator contract: resolve the conversation, append the user message,
// round-trip with the LLM and tool registry up to maxLoopIterations times,
// then split and stream the resulting bubbles.
type Orchestrator struct {
	Store         storage.Store
	Tools         *tools.Registry
	Provider      LLMProvider
	Memory        *tools.MemoryStore
	DefaultModel  string
	AllowedModels map[string]bool

	// Metrics is optional; when set, turn/tool/LLM outcomes and latencies are
	// recorded against it. Nil disables instrumentation entirely.
	Metrics *metrics.Metrics
}

// RunTurnInput is the turn orchestrator's request shape.
type RunTurnInput struct {
	ConversationID   string
	Message          string
	Model            string
	ReplyToMessageID string
	Attachments      []models.Attachment
}

// RunTurnResult is the turn orchestrator's response shape.
type RunTurnResult struct {
	ConversationID string
	MessageIDs     []string
	Bubbles        []string
}

// RunTurn executes one turn. sink may be nil, in which case events are discarded.
func (o *Orchestrator) RunTurn(ctx context.Context, in RunTurnInput, sink EventSink) (result *RunTurnResult, err error) {
	if sink == nil {
		sink = NopSink{}
	}
	if o.Metrics != nil {
		start := time.Now()
		defer func() { o.Metrics.ObserveTurn(err == nil, time.Since(start)) }()
	}

	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, models.NewError(models.KindBadRequest, "message must not be empty")
	}

	model := o.DefaultModel
	if in.Model != "" && (len(o.AllowedModels) == 0 || o.AllowedModels[in.Model]) {
		model = in.Model
	}

	conv, err := o.Store.UpsertConversation(ctx, in.ConversationID, model)
	if err != nil {
		return nil, err
	}
	sink.Emit(models.TurnEvent{Type: models.EventConversation, ConversationID: conv.ID})

	userMsg, err := o.Store.AddMessage(ctx, conv.ID, models.RoleUser, message, models.AddMessageOptions{
		ReplyToID:   in.ReplyToMessageID,
		Attachments: in.Attachments,
	})
	if err != nil {
		return nil, err
	}
	messageIDs := []string{userMsg.ID}

	if conv.Title == models.DefaultConversationTitle {
		if _, err := o.Store.SetConversationTitleIfDefault(ctx, conv.ID, compactPreview(message, titlePreviewLen)); err != nil {
			return nil, err
		}
	}

	persisted, err := o.Store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	memoryItems, err := o.Memory.List()
	if err != nil {
		return nil, err
	}

	workingMessages := append(
		[]CompletionMessage{{Role: "system", Content: BuildSystemPrompt(memoryItems)}},
		buildHistory(persisted)...,
	)

	declarations := o.Tools.Declarations()
	toolDecls := make([]ToolDeclaration, len(declarations))
	for i, d := range declarations {
		toolDecls[i] = ToolDeclaration{Name: d.Name, Description: d.Description, Schema: d.Schema}
	}

	var finalAssistantText strings.Builder

	for iteration := 0; iteration < maxLoopIterations; iteration++ {
		llmStart := time.Now()
		completion, err := o.Provider.Complete(ctx, &CompletionRequest{
			Model:    model,
			Messages: workingMessages,
			Tools:    toolDecls,
		})
		if o.Metrics != nil {
			o.Metrics.ObserveLLMRequest(model, err == nil, time.Since(llmStart))
		}
		if err != nil {
			return nil, models.WrapError(models.KindUpstreamError, err)
		}

		content := stripThinkTags(completion.Content)

		if len(completion.ToolCalls) == 0 {
			finalAssistantText.WriteString(content)
			break
		}

		workingMessages = append(workingMessages, CompletionMessage{
			Role:      "assistant",
			Content:   content,
			ToolCalls: completion.ToolCalls,
		})
		if content != "" {
			finalAssistantText.WriteString(content)
		}

		for _, tc := range completion.ToolCalls {
			rec, err := o.Store.AddToolCall(ctx, conv.ID, tc.Name, string(tc.Input))
			if err != nil {
				return nil, err
			}
			sink.Emit(models.TurnEvent{
				Type:           models.EventToolCallStarted,
				ConversationID: conv.ID,
				ToolCallID:     rec.ID,
				ToolName:       tc.Name,
			})

			args := tc.Input
			if !json.Valid(args) {
				args = json.RawMessage(`{}`)
			}
			toolStart := time.Now()
			output, ok := o.Tools.Dispatch(ctx, tc.Name, args)
			if o.Metrics != nil {
				o.Metrics.ObserveToolCall(tc.Name, ok, time.Since(toolStart))
			}

			if _, err := o.Store.CompleteToolCall(ctx, rec.ID, ok, string(output)); err != nil {
				return nil, err
			}
			sink.Emit(models.TurnEvent{
				Type:           models.EventToolCallOutput,
				ConversationID: conv.ID,
				ToolCallID:     rec.ID,
				Output:         truncate(string(output), toolOutputPreviewLen),
			})
			sink.Emit(models.TurnEvent{
				Type:           models.EventToolCallFinished,
				ConversationID: conv.ID,
				ToolCallID:     rec.ID,
				OK:             ok,
				Output:         string(output),
			})

			workingMessages = append(workingMessages, CompletionMessage{
				Role:       "tool",
				Content:    string(output),
				ToolCallID: tc.ID,
			})
		}
	}

	bubbleTexts := SplitBubbles(finalAssistantText.String())
	if len(bubbleTexts) == 0 {
		bubbleTexts = []string{"Done."}
	}

	bubbleGroupID := uuid.NewString()
	for i, text := range bubbleTexts {
		msg, err := o.Store.AddMessage(ctx, conv.ID, models.RoleAssistant, text, models.AddMessageOptions{BubbleGroupID: bubbleGroupID})
		if err != nil {
			return nil, err
		}
		messageIDs = append(messageIDs, msg.ID)

		sink.Emit(models.TurnEvent{Type: models.EventAssistantBubbleStart, ConversationID: conv.ID, BubbleID: msg.ID})
		emitTokens(sink, conv.ID, msg.ID, text)

		if i < len(bubbleTexts)-1 {
			time.Sleep(bubbleDelay)
		}
	}

	sink.Emit(models.TurnEvent{Type: models.EventAssistantDone, ConversationID: conv.ID, MessageIDs: messageIDs})

	return &RunTurnResult{ConversationID: conv.ID, MessageIDs: messageIDs, Bubbles: bubbleTexts}, nil
}

func emitTokens(sink EventSink, conversationID, bubbleID, text string) {
	runes := []rune(text)
	for i := 0; i < len(runes); i += tokenChunkSize {
		if i > 0 {
			time.Sleep(tokenDelay)
		}
		end := i + tokenChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		sink.Emit(models.TurnEvent{
			Type:           models.EventToken,
			ConversationID: conversationID,
			BubbleID:       bubbleID,
			Token:          string(runes[i:end]),
		})
	}
}

func stripThinkTags(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	return strayThinkTags.ReplaceAllString(s, "")
}

// buildHistory converts persisted messages into completion messages,
// rewriting replied-to user messages and summarizing attachments inline.
func buildHistory(persisted []*models.Message) []CompletionMessage {
	byID := make(map[string]*models.Message, len(persisted))
	for _, m := range persisted {
		byID[m.ID] = m
	}

	history := make([]CompletionMessage, 0, len(persisted))
	for _, m := range persisted {
		content := m.Content
		if m.Role == models.RoleUser {
			content = renderUserContent(m, byID)
		}
		history = append(history, CompletionMessage{Role: string(m.Role), Content: content})
	}
	return history
}

func renderUserContent(m *models.Message, byID map[string]*models.Message) string {
	content := m.Content
	if len(m.Attachments) > 0 {
		content = content + "\n\n" + renderAttachments(m.Attachments)
	}
	if m.ReplyToID == "" {
		return content
	}
	preview := ""
	if replied, ok := byID[m.ReplyToID]; ok {
		preview = compactPreview(replied.Content, replyPreviewLen)
	}
	return fmt.Sprintf("Context from replied message: %q\n\nUser reply: %s", preview, content)
}

func renderAttachments(attachments []models.Attachment) string {
	var b strings.Builder
	for _, a := range attachments {
		if a.Kind == models.AttachmentImage {
			fmt.Fprintf(&b, "[%s: image file attached by user]\n", a.Name)
			continue
		}
		excerpt := truncate(a.Excerpt, attachmentExcerptLen)
		fmt.Fprintf(&b, "[%s]\n%s\n", a.Name, excerpt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// compactPreview collapses whitespace runs to single spaces and truncates to n characters.
func compactPreview(s string, n int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	return truncate(collapsed, n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
