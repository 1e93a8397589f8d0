package tools

import (
	"context"
	"encoding/json"

	"github.com/shrimp/shrimp/internal/shell"
)

const (
	maxCommandTimeoutMs = 5 * 60 * 1000
	defaultYieldMs      = 100
)

func schema(properties map[string]any, required ...string) json.RawMessage {
	obj := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	b, _ := json.Marshal(obj)
	return b
}

func decode(rawArgs json.RawMessage, v any) error {
	if len(rawArgs) == 0 {
		return nil
	}
	return json.Unmarshal(rawArgs, v)
}

func ok(v any) (json.RawMessage, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return errorOutput(err.Error()), false
	}
	return b, true
}

func fail(message string) (json.RawMessage, bool) {
	return errorOutput(message), false
}

// RunCommandTool implements run_command: execute a shell command inside a
// named session, either non-interactively (consumed via the sentinel
// protocol) or interactively (a dedicated child process for that command).
type RunCommandTool struct {
	Shell *shell.Manager
}

func (t *RunCommandTool) Name() string        { return "run_command" }
func (t *RunCommandTool) Description() string { return "Run a shell command in a persistent session." }
func (t *RunCommandTool) Schema() json.RawMessage {
	return schema(map[string]any{
		"sessionId":   map[string]any{"type": "string"},
		"command":     map[string]any{"type": "string"},
		"cwd":         map[string]any{"type": "string"},
		"timeoutMs":   map[string]any{"type": "integer", "description": "defaults to the session's configured command timeout (30s); capped at 300000"},
		"interactive": map[string]any{"type": "boolean", "default": false},
	}, "sessionId", "command")
}

func (t *RunCommandTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	var args struct {
		SessionID   string `json:"sessionId"`
		Command     string `json:"command"`
		CWD         string `json:"cwd"`
		TimeoutMs   *int   `json:"timeoutMs"`
		Interactive bool   `json:"interactive"`
	}
	if err := decode(rawArgs, &args); err != nil {
		return fail("invalid arguments: " + err.Error())
	}
	if args.SessionID == "" || args.Command == "" {
		return fail("sessionId and command are required")
	}
	// An absent/non-positive timeoutMs is passed through as 0 so the shell
	// manager applies its own configured default (30s); only the upper
	// bound is enforced here.
	timeoutMs := 0
	if args.TimeoutMs != nil {
		timeoutMs = *args.TimeoutMs
		if timeoutMs < 0 {
			timeoutMs = 0
		}
		if timeoutMs > maxCommandTimeoutMs {
			timeoutMs = maxCommandTimeoutMs
		}
	}
	result, err := t.Shell.RunCommand(ctx, args.SessionID, args.Command, args.CWD, timeoutMs, args.Interactive)
	if err != nil {
		return fail(err.Error())
	}
	return ok(result)
}

// CreateShellSessionTool implements create_shell_session.
type CreateShellSessionTool struct {
	Shell *shell.Manager
}

func (t *CreateShellSessionTool) Name() string { return "create_shell_session" }
func (t *CreateShellSessionTool) Description() string {
	return "Start a new persistent shell session and return its id."
}
func (t *CreateShellSessionTool) Schema() json.RawMessage {
	return schema(map[string]any{
		"cwd": map[string]any{"type": "string"},
	})
}

func (t *CreateShellSessionTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	var args struct {
		CWD string `json:"cwd"`
	}
	if err := decode(rawArgs, &args); err != nil {
		return fail("invalid arguments: " + err.Error())
	}
	info, err := t.Shell.CreateSession(args.CWD)
	if err != nil {
		return fail(err.Error())
	}
	return ok(info)
}

// CloseShellSessionTool implements close_shell_session.
type CloseShellSessionTool struct {
	Shell *shell.Manager
}

func (t *CloseShellSessionTool) Name() string        { return "close_shell_session" }
func (t *CloseShellSessionTool) Description() string { return "Terminate a shell session and free its resources." }
func (t *CloseShellSessionTool) Schema() json.RawMessage {
	return schema(map[string]any{
		"sessionId": map[string]any{"type": "string"},
	}, "sessionId")
}

func (t *CloseShellSessionTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	var args struct {
		SessionID string `json:"sessionId"`
	}
	if err := decode(rawArgs, &args); err != nil {
		return fail("invalid arguments: " + err.Error())
	}
	if args.SessionID == "" {
		return fail("sessionId is required")
	}
	closed := t.Shell.CloseSession(args.SessionID)
	return ok(map[string]bool{"closed": closed})
}

// WriteStdinTool implements write_stdin: drive an in-progress interactive or
// timed-out command with further input.
type WriteStdinTool struct {
	Shell *shell.Manager
}

func (t *WriteStdinTool) Name() string        { return "write_stdin" }
func (t *WriteStdinTool) Description() string { return "Write characters to a running command's stdin." }
func (t *WriteStdinTool) Schema() json.RawMessage {
	return schema(map[string]any{
		"sessionId": map[string]any{"type": "string"},
		"chars":     map[string]any{"type": "string", "default": ""},
		"yieldMs":   map[string]any{"type": "integer", "description": "defaults to 100ms, clamped to [0, 300000]"},
	}, "sessionId")
}

func (t *WriteStdinTool) Execute(ctx context.Context, rawArgs json.RawMessage) (json.RawMessage, bool) {
	var args struct {
		SessionID string `json:"sessionId"`
		Chars     string `json:"chars"`
		YieldMs   *int   `json:"yieldMs"`
	}
	if err := decode(rawArgs, &args); err != nil {
		return fail("invalid arguments: " + err.Error())
	}
	if args.SessionID == "" {
		return fail("sessionId is required")
	}
	yieldMs := defaultYieldMs
	if args.YieldMs != nil {
		yieldMs = *args.YieldMs
	}
	if yieldMs < 0 {
		yieldMs = 0
	}
	if yieldMs > maxCommandTimeoutMs {
		yieldMs = maxCommandTimeoutMs
	}
	result, err := t.Shell.WriteStdin(args.SessionID, args.Chars, yieldMs)
	if err != nil {
		return fail(err.Error())
	}
	return ok(result)
}
