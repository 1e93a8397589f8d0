package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shrimp/shrimp/pkg/models"
)

// MemoryStore is an in-process Store implementation used by tests that don't
// need durability.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	toolCalls     map[string][]*models.ToolCallRecord
	channelLinks  map[string]string // channel+externalChatId -> conversation id
	triggerRuns   map[string]*models.TriggerRun
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]*models.Message{},
		toolCalls:     map[string][]*models.ToolCallRecord{},
		channelLinks:  map[string]string{},
		triggerRuns:   map[string]*models.TriggerRun{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func channelLinkKey(channel models.ChannelKind, externalChatID string) string {
	return string(channel) + "\x00" + externalChatID
}

func (s *MemoryStore) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, model, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	c := &models.Conversation{ID: uuid.NewString(), Title: title, Model: model, CreatedAt: now, UpdatedAt: now}
	s.conversations[c.ID] = c
	cc := *c
	return &cc, nil
}

func (s *MemoryStore) UpsertConversation(ctx context.Context, id, model string) (*models.Conversation, error) {
	s.mu.Lock()
	if id != "" {
		if c, ok := s.conversations[id]; ok {
			c.Model = model
			c.UpdatedAt = time.Now().UTC()
			cc := *c
			s.mu.Unlock()
			return &cc, nil
		}
	}
	s.mu.Unlock()
	return s.CreateConversation(ctx, model, models.DefaultConversationTitle)
}

func (s *MemoryStore) RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	if title == "" {
		return nil, models.NewError(models.KindBadRequest, "title must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, storageErr(errNotFoundf("conversation %s", id))
	}
	c.Title = title
	c.UpdatedAt = time.Now().UTC()
	cc := *c
	return &cc, nil
}

func (s *MemoryStore) SetConversationTitleIfDefault(ctx context.Context, id, title string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	if c.Title == models.DefaultConversationTitle {
		c.Title = title
		c.UpdatedAt = time.Now().UTC()
	}
	cc := *c
	return &cc, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	delete(s.messages, id)
	delete(s.toolCalls, id)
	for k, v := range s.channelLinks {
		if v == id {
			delete(s.channelLinks, k)
		}
	}
	return nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, conversationID string, role models.Role, content string, opts models.AddMessageOptions) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ReplyToID:      opts.ReplyToID,
		BubbleGroupID:  opts.BubbleGroupID,
		Attachments:    opts.Attachments,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	if c, ok := s.conversations[conversationID]; ok {
		c.UpdatedAt = m.CreatedAt
	}
	mm := *m
	return &mm, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.messages[conversationID]
	out := make([]*models.Message, len(src))
	for i, m := range src {
		mm := *m
		out[i] = &mm
	}
	return out, nil
}

func (s *MemoryStore) UpdateMessageContent(ctx context.Context, id, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.messages {
		for _, m := range list {
			if m.ID == id {
				m.Content = content
				mm := *m
				return &mm, nil
			}
		}
	}
	return nil, storageErr(errNotFoundf("message %s", id))
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cid, list := range s.messages {
		for i, m := range list {
			if m.ID == id {
				s.messages[cid] = append(list[:i], list[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) AddToolCall(ctx context.Context, conversationID, toolName, arguments string) (*models.ToolCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &models.ToolCallRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ToolName:       toolName,
		Arguments:      arguments,
		Status:         models.ToolCallRunning,
		CreatedAt:      time.Now().UTC(),
	}
	s.toolCalls[conversationID] = append(s.toolCalls[conversationID], t)
	tt := *t
	return &tt, nil
}

func (s *MemoryStore) CompleteToolCall(ctx context.Context, id string, ok bool, output string) (*models.ToolCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.toolCalls {
		for _, t := range list {
			if t.ID == id {
				if ok {
					t.Status = models.ToolCallSuccess
				} else {
					t.Status = models.ToolCallError
				}
				t.Output = output
				tt := *t
				return &tt, nil
			}
		}
	}
	return nil, storageErr(errNotFoundf("tool call %s", id))
}

func (s *MemoryStore) ListToolCalls(ctx context.Context, conversationID string) ([]*models.ToolCallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.toolCalls[conversationID]
	out := make([]*models.ToolCallRecord, len(src))
	for i, t := range src {
		tt := *t
		out[i] = &tt
	}
	return out, nil
}

func (s *MemoryStore) GetOrCreateChannelConversation(ctx context.Context, channel models.ChannelKind, externalChatID, model string) (*models.Conversation, error) {
	key := channelLinkKey(channel, externalChatID)
	s.mu.Lock()
	if cid, ok := s.channelLinks[key]; ok {
		s.mu.Unlock()
		return s.GetConversation(ctx, cid)
	}
	s.mu.Unlock()

	c, err := s.CreateConversation(ctx, model, models.DefaultConversationTitle)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.channelLinks[key] = c.ID
	s.mu.Unlock()
	return c, nil
}

func (s *MemoryStore) CreateTriggerRun(ctx context.Context, trigger models.TriggerKind, instruction, model, payload string) (*models.TriggerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &models.TriggerRun{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		Instruction: instruction,
		Model:       model,
		Payload:     payload,
		Status:      models.RunRunning,
		CreatedAt:   time.Now().UTC(),
	}
	s.triggerRuns[r.ID] = r
	rr := *r
	return &rr, nil
}

func (s *MemoryStore) CompleteTriggerRun(ctx context.Context, id string, ok bool, output, finalResult, errMsg string) (*models.TriggerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, found := s.triggerRuns[id]
	if !found {
		return nil, storageErr(errNotFoundf("trigger run %s", id))
	}
	if ok {
		r.Status = models.RunSuccess
	} else {
		r.Status = models.RunError
	}
	r.Output = output
	r.FinalResult = finalResult
	r.Error = errMsg
	now := time.Now().UTC()
	r.FinishedAt = &now
	rr := *r
	return &rr, nil
}

func (s *MemoryStore) SetTriggerRunConversationID(ctx context.Context, id, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.triggerRuns[id]
	if !ok {
		return storageErr(errNotFoundf("trigger run %s", id))
	}
	r.ConversationID = conversationID
	return nil
}

func (s *MemoryStore) ListTriggerRuns(ctx context.Context, limit int) ([]*models.TriggerRun, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.TriggerRun, 0, len(s.triggerRuns))
	for _, r := range s.triggerRuns {
		rr := *r
		out = append(out, &rr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetTriggerRun(ctx context.Context, id string) (*models.TriggerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.triggerRuns[id]
	if !ok {
		return nil, nil
	}
	rr := *r
	return &rr, nil
}

func errNotFoundf(format string, args ...any) error {
	return models.NewError(models.KindStorageError, format+" not found", args...)
}

var _ Store = (*MemoryStore)(nil)
