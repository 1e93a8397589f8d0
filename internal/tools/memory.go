package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	memoryItemMaxChars = 400
	memoryMaxItems     = 120
)

// memoryFile is the on-disk shape of data/system-prompt-memory.json.
type memoryFile struct {
	Items []string `json:"items"`
}

// MemoryStore is the shared, file-backed system-prompt memory. It is a
// capability object rather than a package-level global: callers construct
// one per runtime and pass it to each memory tool.
type MemoryStore struct {
	mu   sync.Mutex
	path string
}

// NewMemoryStore wraps the JSON file at path, creating its parent directory
// lazily on first write.
func NewMemoryStore(path string) *MemoryStore {
	return &MemoryStore{path: path}
}

func (s *MemoryStore) load() (memoryFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return memoryFile{Items: []string{}}, nil
		}
		return memoryFile{}, err
	}
	var f memoryFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return memoryFile{}, err
	}
	if f.Items == nil {
		f.Items = []string{}
	}
	return f, nil
}

func (s *MemoryStore) save(f memoryFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// Update normalizes, truncates, de-duplicates, and appends memory, evicting
// the oldest entries past memoryMaxItems.
func (s *MemoryStore) Update(memory string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := normalizeMemory(memory)
	if normalized == "" {
		f, err := s.load()
		if err != nil {
			return nil, err
		}
		return f.Items, nil
	}

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	filtered := f.Items[:0:0]
	for _, item := range f.Items {
		if item != normalized {
			filtered = append(filtered, item)
		}
	}
	filtered = append(filtered, normalized)
	if over := len(filtered) - memoryMaxItems; over > 0 {
		filtered = filtered[over:]
	}
	f.Items = filtered
	if err := s.save(f); err != nil {
		return nil, err
	}
	return f.Items, nil
}

// List returns the current memory items, oldest first.
func (s *MemoryStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	return f.Items, nil
}

// Clear empties the memory file.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(memoryFile{Items: []string{}})
}

func normalizeMemory(memory string) string {
	fields := strings.Fields(memory)
	normalized := strings.Join(fields, " ")
	if len(normalized) > memoryItemMaxChars {
		normalized = normalized[:memoryItemMaxChars]
	}
	return normalized
}

// UpdateSystemPromptMemoryTool implements update_system_prompt_memory.
type UpdateSystemPromptMemoryTool struct {
	Memory *MemoryStore
}

func (t *UpdateSystemPromptMemoryTool) Name() string { return "update_system_prompt_memory" }
func (t *UpdateSystemPromptMemoryTool) Description() string {
	return "Append a fact to persistent memory surfaced in every future system prompt."
}
func (t *UpdateSystemPromptMemoryTool) Schema() json.RawMessage {
	return schema(map[string]any{
		"memory": map[string]any{"type": "string"},
	}, "memory")
}

func (t *UpdateSystemPromptMemoryTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	var args struct {
		Memory string `json:"memory"`
	}
	if err := decode(rawArgs, &args); err != nil {
		return fail("invalid arguments: " + err.Error())
	}
	items, err := t.Memory.Update(args.Memory)
	if err != nil {
		return fail(err.Error())
	}
	return ok(map[string]any{"items": items})
}

// ListSystemPromptMemoryTool implements list_system_prompt_memory.
type ListSystemPromptMemoryTool struct {
	Memory *MemoryStore
}

func (t *ListSystemPromptMemoryTool) Name() string { return "list_system_prompt_memory" }
func (t *ListSystemPromptMemoryTool) Description() string {
	return "List the items currently held in persistent system-prompt memory."
}
func (t *ListSystemPromptMemoryTool) Schema() json.RawMessage {
	return schema(map[string]any{})
}

func (t *ListSystemPromptMemoryTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	items, err := t.Memory.List()
	if err != nil {
		return fail(err.Error())
	}
	return ok(map[string]any{"items": items})
}

// ClearSystemPromptMemoryTool implements clear_system_prompt_memory.
type ClearSystemPromptMemoryTool struct {
	Memory *MemoryStore
}

func (t *ClearSystemPromptMemoryTool) Name() string { return "clear_system_prompt_memory" }
func (t *ClearSystemPromptMemoryTool) Description() string {
	return "Delete all items from persistent system-prompt memory."
}
func (t *ClearSystemPromptMemoryTool) Schema() json.RawMessage {
	return schema(map[string]any{})
}

func (t *ClearSystemPromptMemoryTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	if err := t.Memory.Clear(); err != nil {
		return fail(err.Error())
	}
	return ok(map[string]any{"cleared": true})
}
