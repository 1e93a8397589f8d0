package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shrimp/shrimp/internal/shell"
)

func TestRunCommandToolEchoesOutput(t *testing.T) {
	mgr := shell.NewManager(2, time.Minute, 2*time.Second, shell.DefaultMaxOutputChars)
	t.Cleanup(func() { mgr.StopSweeper() })

	create := &CreateShellSessionTool{Shell: mgr}
	sessionOut, okResult := create.Execute(context.Background(), mustArgs(t, map[string]any{"cwd": t.TempDir()}))
	if !okResult {
		t.Fatalf("expected ok, got %s", sessionOut)
	}
	var info struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(sessionOut, &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	run := &RunCommandTool{Shell: mgr}
	out, okResult := run.Execute(context.Background(), mustArgs(t, map[string]any{
		"sessionId": info.SessionID,
		"command":   "echo hi",
		"timeoutMs": 2000,
	}))
	if !okResult {
		t.Fatalf("expected ok, got %s", out)
	}
	var result struct {
		Stdout string `json:"stdout"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Stdout != "hi\n" {
		t.Fatalf("expected stdout %q, got %q", "hi\n", result.Stdout)
	}

	closeTool := &CloseShellSessionTool{Shell: mgr}
	if _, okResult := closeTool.Execute(context.Background(), mustArgs(t, map[string]any{"sessionId": info.SessionID})); !okResult {
		t.Fatalf("expected close to succeed")
	}
}

func TestRunCommandToolOmittedTimeoutUsesSessionDefault(t *testing.T) {
	mgr := shell.NewManager(2, time.Minute, 2*time.Second, shell.DefaultMaxOutputChars)
	t.Cleanup(func() { mgr.StopSweeper() })

	create := &CreateShellSessionTool{Shell: mgr}
	sessionOut, okResult := create.Execute(context.Background(), mustArgs(t, map[string]any{"cwd": t.TempDir()}))
	if !okResult {
		t.Fatalf("expected ok, got %s", sessionOut)
	}
	var info struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(sessionOut, &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	run := &RunCommandTool{Shell: mgr}
	out, okResult := run.Execute(context.Background(), mustArgs(t, map[string]any{
		"sessionId": info.SessionID,
		"command":   "echo hi",
	}))
	if !okResult {
		t.Fatalf("expected ok with no timeoutMs supplied, got %s", out)
	}
	var result struct {
		Stdout   string `json:"stdout"`
		TimedOut bool   `json:"timedOut"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.TimedOut || result.Stdout != "hi\n" {
		t.Fatalf("unexpected result with session's own 2s default timeout: %+v", result)
	}
}

func TestRunCommandToolRequiresSessionAndCommand(t *testing.T) {
	mgr := shell.NewManager(2, time.Minute, 2*time.Second, shell.DefaultMaxOutputChars)
	t.Cleanup(func() { mgr.StopSweeper() })

	run := &RunCommandTool{Shell: mgr}
	out, okResult := run.Execute(context.Background(), mustArgs(t, map[string]any{"sessionId": ""}))
	if okResult {
		t.Fatalf("expected failure, got %s", out)
	}
}
