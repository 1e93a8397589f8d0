package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/shrimp/shrimp/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	model TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	reply_to_id TEXT,
	bubble_group_id TEXT,
	attachments_json TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	arguments TEXT NOT NULL,
	status TEXT NOT NULL,
	output TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_toolcalls_conversation ON tool_calls(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS channel_links (
	channel TEXT NOT NULL,
	external_chat_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	PRIMARY KEY (channel, external_chat_id)
);

CREATE TABLE IF NOT EXISTS trigger_runs (
	id TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL,
	instruction TEXT NOT NULL,
	model TEXT,
	payload TEXT,
	status TEXT NOT NULL,
	output TEXT,
	final_result TEXT,
	error TEXT,
	conversation_id TEXT,
	created_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trigger_runs_created ON trigger_runs(created_at DESC);
`

// SQLiteStore is the embedded relational persistence backend, opened against
// a single database file (SHRIMP_DB_PATH).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the database file at path and applies
// the schema. path may be ":memory:" for ephemeral stores.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, models.WrapError(models.KindStorageError, fmt.Errorf("open db: %w", err))
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, models.WrapError(models.KindStorageError, fmt.Errorf("apply schema: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return models.WrapError(models.KindStorageError, err)
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, model, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, c)
	}
	return out, storageErr(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, model, created_at, updated_at FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, model, title string) (*models.Conversation, error) {
	if title == "" {
		title = models.DefaultConversationTitle
	}
	now := time.Now().UTC()
	c := &models.Conversation{ID: uuid.NewString(), Title: title, Model: model, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations (id, title, model, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Model, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

func (s *SQLiteStore) UpsertConversation(ctx context.Context, id, model string) (*models.Conversation, error) {
	if id != "" {
		existing, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			existing.Model = model
			existing.UpdatedAt = time.Now().UTC()
			if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET model = ?, updated_at = ? WHERE id = ?`,
				existing.Model, existing.UpdatedAt, existing.ID); err != nil {
				return nil, storageErr(err)
			}
			return existing, nil
		}
	}
	return s.CreateConversation(ctx, model, models.DefaultConversationTitle)
}

func (s *SQLiteStore) RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	if title == "" {
		return nil, models.NewError(models.KindBadRequest, "title must not be empty")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, now, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storageErr(fmt.Errorf("conversation %s not found", id))
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) SetConversationTitleIfDefault(ctx context.Context, id, title string) (*models.Conversation, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND title = ?`,
		title, now, id, models.DefaultConversationTitle)
	if err != nil {
		return nil, storageErr(err)
	}
	return s.GetConversation(ctx, id)
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM tool_calls WHERE conversation_id = ?`,
		`DELETE FROM channel_links WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return storageErr(err)
		}
	}
	return storageErr(tx.Commit())
}

func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, role models.Role, content string, opts models.AddMessageOptions) (*models.Message, error) {
	var attachmentsJSON sql.NullString
	if len(opts.Attachments) > 0 {
		b, err := json.Marshal(opts.Attachments)
		if err != nil {
			return nil, storageErr(err)
		}
		attachmentsJSON = sql.NullString{String: string(b), Valid: true}
	}
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
	_, err := s.db.ExecContext(ctx, `INSERT INTO messages (id, conversation_id, role, content, reply_to_id, bubble_group_id, attachments_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, nullString(m.ReplyToID), nullString(m.BubbleGroupID), attachmentsJSON, m.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return nil, storageErr(err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, role, content, reply_to_id, bubble_group_id, attachments_json, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var role string
		var replyTo, bubbleGroup, attachmentsJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &replyTo, &bubbleGroup, &attachmentsJSON, &m.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		m.Role = models.Role(role)
		m.ReplyToID = replyTo.String
		m.BubbleGroupID = bubbleGroup.String
		if attachmentsJSON.Valid && attachmentsJSON.String != "" {
			if err := json.Unmarshal([]byte(attachmentsJSON.String), &m.Attachments); err != nil {
				return nil, storageErr(err)
			}
		}
		out = append(out, &m)
	}
	return out, storageErr(rows.Err())
}

func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string) (*models.Message, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return nil, storageErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storageErr(fmt.Errorf("message %s not found", id))
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, conversation_id, role, content, reply_to_id, bubble_group_id, attachments_json, created_at FROM messages WHERE id = ?`, id)
	var m models.Message
	var role string
	var replyTo, bubbleGroup, attachmentsJSON sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &replyTo, &bubbleGroup, &attachmentsJSON, &m.CreatedAt); err != nil {
		return nil, storageErr(err)
	}
	m.Role = models.Role(role)
	m.ReplyToID = replyTo.String
	m.BubbleGroupID = bubbleGroup.String
	return &m, nil
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	return storageErr(err)
}

func (s *SQLiteStore) AddToolCall(ctx context.Context, conversationID, toolName, arguments string) (*models.ToolCallRecord, error) {
	t := &models.ToolCallRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ToolName:       toolName,
		Arguments:      arguments,
		Status:         models.ToolCallRunning,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tool_calls (id, conversation_id, tool_name, arguments, status, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, t.ID, t.ConversationID, t.ToolName, t.Arguments, string(t.Status), nil, t.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}
	return t, nil
}

func (s *SQLiteStore) CompleteToolCall(ctx context.Context, id string, ok bool, output string) (*models.ToolCallRecord, error) {
	status := models.ToolCallSuccess
	if !ok {
		status = models.ToolCallError
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tool_calls SET status = ?, output = ? WHERE id = ?`, string(status), output, id)
	if err != nil {
		return nil, storageErr(err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT id, conversation_id, tool_name, arguments, status, output, created_at FROM tool_calls WHERE id = ?`, id)
	var t models.ToolCallRecord
	var status2 string
	var outNull sql.NullString
	if err := row.Scan(&t.ID, &t.ConversationID, &t.ToolName, &t.Arguments, &status2, &outNull, &t.CreatedAt); err != nil {
		return nil, storageErr(err)
	}
	t.Status = models.ToolCallStatus(status2)
	t.Output = outNull.String
	return &t, nil
}

func (s *SQLiteStore) ListToolCalls(ctx context.Context, conversationID string) ([]*models.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, tool_name, arguments, status, output, created_at
		FROM tool_calls WHERE conversation_id = ? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*models.ToolCallRecord
	for rows.Next() {
		var t models.ToolCallRecord
		var status string
		var outNull sql.NullString
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.ToolName, &t.Arguments, &status, &outNull, &t.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		t.Status = models.ToolCallStatus(status)
		t.Output = outNull.String
		out = append(out, &t)
	}
	return out, storageErr(rows.Err())
}

func (s *SQLiteStore) GetOrCreateChannelConversation(ctx context.Context, channel models.ChannelKind, externalChatID, model string) (*models.Conversation, error) {
	var conversationID string
	row := s.db.QueryRowContext(ctx, `SELECT conversation_id FROM channel_links WHERE channel = ? AND external_chat_id = ?`, string(channel), externalChatID)
	err := row.Scan(&conversationID)
	if err == nil {
		return s.GetConversation(ctx, conversationID)
	}
	if err != sql.ErrNoRows {
		return nil, storageErr(err)
	}

	c, err := s.CreateConversation(ctx, model, models.DefaultConversationTitle)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO channel_links (channel, external_chat_id, conversation_id) VALUES (?, ?, ?)`,
		string(channel), externalChatID, c.ID)
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

func (s *SQLiteStore) CreateTriggerRun(ctx context.Context, trigger models.TriggerKind, instruction, model, payload string) (*models.TriggerRun, error) {
	r := &models.TriggerRun{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		Instruction: instruction,
		Model:       model,
		Payload:     payload,
		Status:      models.RunRunning,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO trigger_runs (id, trigger_kind, instruction, model, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, r.ID, string(r.Trigger), r.Instruction, nullString(r.Model), nullString(r.Payload), string(r.Status), r.CreatedAt)
	if err != nil {
		return nil, storageErr(err)
	}
	return r, nil
}

func (s *SQLiteStore) CompleteTriggerRun(ctx context.Context, id string, ok bool, output, finalResult, errMsg string) (*models.TriggerRun, error) {
	status := models.RunSuccess
	if !ok {
		status = models.RunError
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `UPDATE trigger_runs SET status = ?, output = ?, final_result = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), nullString(output), nullString(finalResult), nullString(errMsg), now, id)
	if err != nil {
		return nil, storageErr(err)
	}
	return s.GetTriggerRun(ctx, id)
}

func (s *SQLiteStore) SetTriggerRunConversationID(ctx context.Context, id, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE trigger_runs SET conversation_id = ? WHERE id = ?`, conversationID, id)
	return storageErr(err)
}

func (s *SQLiteStore) ListTriggerRuns(ctx context.Context, limit int) ([]*models.TriggerRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, trigger_kind, instruction, model, payload, status, output, final_result, error, conversation_id, created_at, finished_at
		FROM trigger_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []*models.TriggerRun
	for rows.Next() {
		r, err := scanTriggerRun(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		out = append(out, r)
	}
	return out, storageErr(rows.Err())
}

func (s *SQLiteStore) GetTriggerRun(ctx context.Context, id string) (*models.TriggerRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, trigger_kind, instruction, model, payload, status, output, final_result, error, conversation_id, created_at, finished_at
		FROM trigger_runs WHERE id = ?`, id)
	r, err := scanTriggerRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return r, nil
}

func scanTriggerRun(row rowScanner) (*models.TriggerRun, error) {
	var r models.TriggerRun
	var trigger, status string
	var model, payload, output, finalResult, errMsg, conversationID sql.NullString
	var finishedAt sql.NullTime
	if err := row.Scan(&r.ID, &trigger, &r.Instruction, &model, &payload, &status, &output, &finalResult, &errMsg, &conversationID, &r.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}
	r.Trigger = models.TriggerKind(trigger)
	r.Status = models.RunStatus(status)
	r.Model = model.String
	r.Payload = payload.String
	r.Output = output.String
	r.FinalResult = finalResult.String
	r.Error = errMsg.String
	r.ConversationID = conversationID.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

var _ Store = (*SQLiteStore)(nil)
