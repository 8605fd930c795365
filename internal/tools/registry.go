package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/silverkite/silverkite/internal/schema"
)

// Registry holds the named tools available to the conversation loop.
type Registry struct {
	tools map[string]schema.Tool
	log   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		tools: map[string]schema.Tool{},
		log:   log.With("component", "tools"),
	}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t schema.Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name string) schema.Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns all tools in OpenAI function-calling format, in
// stable name order.
func (r *Registry) Definitions() []map[string]any {
	out := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		var params any
		if err := json.Unmarshal(t.Parameters(), &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  params,
			},
		})
	}
	return out
}

// Execute dispatches one tool call and always returns a string result.
// Unknown tools, tool failures and tool panics come back as error
// envelopes; the caller never sees a Go error from a tool run.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (out string) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("tool panicked", "tool", name, "panic", p)
			te := &ToolError{
				Code:        CodeInternalError,
				Type:        "tool_execution_failed",
				Message:     fmt.Sprintf("tool %q panicked: %v", name, p),
				Recoverable: true,
				Suggestions: []string{"retry the call", "try a different approach"},
				Context:     map[string]any{"tool": name},
			}
			out = te.Envelope()
		}
	}()

	t := r.tools[name]
	if t == nil {
		te := &ToolError{
			Code:        CodeNotFound,
			Type:        "tool_not_found",
			Message:     fmt.Sprintf("no tool named %q is registered", name),
			Recoverable: false,
			Suggestions: []string{"call one of the registered tools", "check the tool name for typos"},
			Context:     map[string]any{"available": r.Names()},
		}
		return te.Envelope()
	}

	if params == nil {
		params = map[string]any{}
	}
	result, err := t.Execute(ctx, params)
	if err == nil {
		return result
	}

	var te *ToolError
	if errors.As(err, &te) {
		r.log.Warn("tool failed", "tool", name, "type", te.Type, "code", te.Code)
		return te.Envelope()
	}

	r.log.Error("tool failed unexpectedly", "tool", name, "err", err)
	te = &ToolError{
		Code:        CodeInternalError,
		Type:        "tool_execution_failed",
		Message:     err.Error(),
		Recoverable: true,
		Suggestions: []string{"retry the call", "try a different approach"},
		Context:     map[string]any{"tool": name},
	}
	return te.Envelope()
}
