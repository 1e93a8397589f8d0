package models

import "time"

// Conversation is a persisted thread of messages, tool calls, and channel bindings.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultConversationTitle is the title assigned to a freshly created conversation.
const DefaultConversationTitle = "New chat"

// Role identifies the author of a persisted message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// AttachmentKind classifies an attachment's payload shape.
type AttachmentKind string

const (
	AttachmentImage  AttachmentKind = "image"
	AttachmentText   AttachmentKind = "text"
	AttachmentBinary AttachmentKind = "binary"
)

// Attachment is an immutable file or inline excerpt carried by a message.
type Attachment struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	MimeType string         `json:"mimeType"`
	Size     int64          `json:"size"`
	Kind     AttachmentKind `json:"kind"`
	// DataURL holds a base64 data URL for image attachments.
	DataURL string `json:"dataUrl,omitempty"`
	// Excerpt holds an inline text excerpt for text attachments.
	Excerpt string `json:"excerpt,omitempty"`
}

// Message is one append-only entry in a conversation's transcript.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	ReplyToID      string       `json:"replyToMessageId,omitempty"`
	BubbleGroupID  string       `json:"bubbleGroupId,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// AddMessageOptions carries the optional fields accepted by Store.AddMessage.
type AddMessageOptions struct {
	ReplyToID     string
	BubbleGroupID string
	Attachments   []Attachment
}

// ToolCallStatus is the lifecycle state of a ToolCallRecord.
type ToolCallStatus string

const (
	ToolCallRunning ToolCallStatus = "running"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// ToolCallRecord tracks one tool dispatch from start to terminal state.
type ToolCallRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	ToolName       string         `json:"toolName"`
	Arguments      string         `json:"arguments"`
	Status         ToolCallStatus `json:"status"`
	Output         string         `json:"output,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ChannelKind identifies a supported front-channel transport.
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelWhatsApp ChannelKind = "whatsapp"
)

// ChannelLink binds an external chat to a conversation, reused across messages.
type ChannelLink struct {
	Channel        ChannelKind `json:"channel"`
	ExternalChatID string      `json:"externalChatId"`
	ConversationID string      `json:"conversationId"`
}

// TriggerKind identifies how a TriggerRun was invoked.
type TriggerKind string

const (
	TriggerManual  TriggerKind = "manual"
	TriggerAPI     TriggerKind = "api"
	TriggerWebhook TriggerKind = "webhook"
)

// RunStatus is the lifecycle state of a TriggerRun.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// TriggerRun is a one-shot, non-streaming invocation of the turn orchestrator.
type TriggerRun struct {
	ID             string     `json:"id"`
	Trigger        TriggerKind `json:"trigger"`
	Instruction    string     `json:"instruction"`
	Model          string     `json:"model,omitempty"`
	Payload        string     `json:"payload,omitempty"`
	Status         RunStatus  `json:"status"`
	Output         string     `json:"output,omitempty"`
	FinalResult    string     `json:"finalResult,omitempty"`
	Error          string     `json:"error,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}
