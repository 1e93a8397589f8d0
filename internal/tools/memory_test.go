package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestUpdateSystemPromptMemoryNormalizesAndDedupes(t *testing.T) {
	store := NewMemoryStore(filepath.Join(t.TempDir(), "memory.json"))
	update := &UpdateSystemPromptMemoryTool{Memory: store}

	if _, ok := update.Execute(context.Background(), mustArgs(t, map[string]any{"memory": "  likes   tabs  "})); !ok {
		t.Fatalf("expected ok")
	}
	out, ok := update.Execute(context.Background(), mustArgs(t, map[string]any{"memory": "likes tabs"}))
	if !ok {
		t.Fatalf("expected ok")
	}
	var result struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0] != "likes tabs" {
		t.Fatalf("expected deduped single item, got %+v", result.Items)
	}
}

func TestUpdateSystemPromptMemoryTruncatesLongEntries(t *testing.T) {
	store := NewMemoryStore(filepath.Join(t.TempDir(), "memory.json"))
	update := &UpdateSystemPromptMemoryTool{Memory: store}

	long := strings.Repeat("x", memoryItemMaxChars+50)
	out, ok := update.Execute(context.Background(), mustArgs(t, map[string]any{"memory": long}))
	if !ok {
		t.Fatalf("expected ok")
	}
	var result struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Items[0]) != memoryItemMaxChars {
		t.Fatalf("expected truncated to %d chars, got %d", memoryItemMaxChars, len(result.Items[0]))
	}
}

func TestUpdateSystemPromptMemoryCapsAtMaxItems(t *testing.T) {
	store := NewMemoryStore(filepath.Join(t.TempDir(), "memory.json"))
	update := &UpdateSystemPromptMemoryTool{Memory: store}

	for i := 0; i < memoryMaxItems+10; i++ {
		if _, ok := update.Execute(context.Background(), mustArgs(t, map[string]any{"memory": strconv.Itoa(i)})); !ok {
			t.Fatalf("expected ok at iteration %d", i)
		}
	}
	list := &ListSystemPromptMemoryTool{Memory: store}
	out, ok := list.Execute(context.Background(), nil)
	if !ok {
		t.Fatalf("expected ok")
	}
	var result struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Items) != memoryMaxItems {
		t.Fatalf("expected cap of %d items, got %d", memoryMaxItems, len(result.Items))
	}
	if result.Items[0] != strconv.Itoa(10) {
		t.Fatalf("expected oldest entries dropped, first item is %q", result.Items[0])
	}
}

func TestClearSystemPromptMemory(t *testing.T) {
	store := NewMemoryStore(filepath.Join(t.TempDir(), "memory.json"))
	update := &UpdateSystemPromptMemoryTool{Memory: store}
	clear := &ClearSystemPromptMemoryTool{Memory: store}
	list := &ListSystemPromptMemoryTool{Memory: store}

	update.Execute(context.Background(), mustArgs(t, map[string]any{"memory": "remember me"}))
	if _, ok := clear.Execute(context.Background(), nil); !ok {
		t.Fatalf("expected ok")
	}
	out, ok := list.Execute(context.Background(), nil)
	if !ok {
		t.Fatalf("expected ok")
	}
	var result struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected empty memory, got %+v", result.Items)
	}
}
