// Package storage defines the typed persistence capability the rest of the
// core consumes: conversations, messages, tool-call records, channel links,
// and trigger runs, backed by a local embedded relational store with
// cascaded deletes.
package storage

import (
	"context"

	"github.com/shrimp/shrimp/pkg/models"
)

// Store is the persistence interface consumed by the turn orchestrator, the
// tool registry, the channel adapters, and the trigger-run executor. Every
// operation either returns the produced entity (or nothing) or fails with a
// *models.Error tagged models.KindStorageError, except RenameConversation,
// which rejects an empty title with models.KindBadRequest.
type Store interface {
	ListConversations(ctx context.Context) ([]*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, model, title string) (*models.Conversation, error)
	// UpsertConversation creates a conversation if id is empty or unknown;
	// otherwise it bumps the existing conversation's model and updatedAt.
	UpsertConversation(ctx context.Context, id, model string) (*models.Conversation, error)
	RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error)
	// SetConversationTitleIfDefault renames only if the current title equals
	// models.DefaultConversationTitle.
	SetConversationTitleIfDefault(ctx context.Context, id, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, conversationID string, role models.Role, content string, opts models.AddMessageOptions) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	AddToolCall(ctx context.Context, conversationID, toolName, arguments string) (*models.ToolCallRecord, error)
	CompleteToolCall(ctx context.Context, id string, ok bool, output string) (*models.ToolCallRecord, error)
	ListToolCalls(ctx context.Context, conversationID string) ([]*models.ToolCallRecord, error)

	GetOrCreateChannelConversation(ctx context.Context, channel models.ChannelKind, externalChatID, model string) (*models.Conversation, error)

	CreateTriggerRun(ctx context.Context, trigger models.TriggerKind, instruction, model, payload string) (*models.TriggerRun, error)
	CompleteTriggerRun(ctx context.Context, id string, ok bool, output, finalResult, errMsg string) (*models.TriggerRun, error)
	SetTriggerRunConversationID(ctx context.Context, id, conversationID string) error
	ListTriggerRuns(ctx context.Context, limit int) ([]*models.TriggerRun, error)
	GetTriggerRun(ctx context.Context, id string) (*models.TriggerRun, error)

	Close() error
}

// ErrNotFound is a StorageError-kind value for a missed lookup. The backends
// in this package do not return it: they report a miss as a nil result or as
// their own StorageError naming the missing entity.
var ErrNotFound = models.NewError(models.KindStorageError, "not found")
