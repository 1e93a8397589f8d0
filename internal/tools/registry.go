// Package tools implements the fixed set of effectful tools the turn
// orchestrator dispatches against: shell commands, file I/O, and persistent
// system-prompt memory. Each tool declares a JSON-Schema-like parameter
// shape and is invoked by name through the Registry.
package tools

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is one dispatchable capability advertised to the LLM as a function.
// Execute never returns a Go error for ordinary failures: validation and
// runtime failures are reported as the structured {"error": "..."} payload
// with ok=false, which the turn orchestrator records as a terminal
// status=error on the ToolCallRecord.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, rawArgs json.RawMessage) (output json.RawMessage, ok bool)
}

// Declaration is the shape handed to the LLM provider for tool_choice="auto"
// function calling.
type Declaration struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Registry is a dispatch table from tool name to Tool, per the design note
// that tool dispatch should be a table rather than a long branch.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	order   []string
}

// NewRegistry builds a registry from the given tools, preserving
// registration order for Declarations().
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool by name, compiling its declared schema
// once so Dispatch can validate arguments ahead of every call rather than
// per-invocation. A tool whose schema fails to compile is still registered;
// it simply runs without pre-dispatch argument validation.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t

	compiled, err := jsonschema.CompileString(t.Name(), string(t.Schema()))
	if err == nil {
		r.schemas[t.Name()] = compiled
	} else {
		delete(r.schemas, t.Name())
	}
}

// Get returns the tool with the given name, if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Declarations returns the tool shapes for the LLM provider, in registration order.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Declaration{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return out
}

// Dispatch runs the named tool. It reports an error for an unknown tool name
// and for arguments that fail the tool's compiled schema. rawArgs that are not
// valid JSON skip schema validation and reach the tool, whose own decoding
// rejects them.
func (r *Registry) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (output json.RawMessage, ok bool) {
	t, exists := r.tools[name]
	if !exists {
		return errorOutput("unknown tool: " + name), false
	}
	if schema, hasSchema := r.schemas[name]; hasSchema {
		if err := validateArgs(schema, rawArgs); err != nil {
			return errorOutput("invalid arguments: " + err.Error()), false
		}
	}
	return t.Execute(ctx, rawArgs)
}

// validateArgs checks rawArgs against the tool's compiled schema. Empty or
// malformed JSON is tolerated here the same way the turn orchestrator
// tolerates it before dispatch (falls back to an empty object) rather than
// failing validation outright; individual tools still apply their own
// numeric clamps and required-field checks on top.
func validateArgs(schema *jsonschema.Schema, rawArgs json.RawMessage) error {
	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(rawArgs, &decoded); err != nil {
		return nil
	}
	return schema.Validate(decoded)
}

func errorOutput(message string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": message})
	return b
}
