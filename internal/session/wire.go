package session

import (
	"encoding/json"
	"time"

	"github.com/silverkite/silverkite/internal/schema"
)

// wireMessage is the on-disk JSON representation of a history message,
// one per JSONL line.
type wireMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Timestamp  string           `json:"timestamp"`
}

func messageToWire(msg schema.Message) wireMessage {
	w := wireMessage{
		Role:       msg.Role,
		ToolCallID: msg.ToolCallID,
		Name:       msg.ToolName,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	switch v := msg.Content.(type) {
	case string:
		w.Content = v
	case *string:
		if v != nil {
			w.Content = *v
		}
	default:
		w.Content = msg.Content
	}

	for _, tc := range msg.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, tc.ToWireMap())
	}
	return w
}

func wireToMessage(data map[string]any) schema.Message {
	role, _ := data["role"].(string)
	content := data["content"]
	if content == nil {
		content = ""
	}

	msg := schema.Message{
		Role:    role,
		Content: content,
	}

	// Tool calls come back as []any of wire-format maps.
	if tcs, ok := data["tool_calls"].([]any); ok {
		for _, tc := range tcs {
			tcm, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := tcm["function"].(map[string]any)
			id, _ := tcm["id"].(string)
			name, _ := fn["name"].(string)
			argsStr, _ := fn["arguments"].(string)
			var args map[string]any
			_ = json.Unmarshal([]byte(argsStr), &args)
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
				ID:        id,
				Name:      name,
				Arguments: args,
			})
		}
	}

	if id, ok := data["tool_call_id"].(string); ok {
		msg.ToolCallID = id
	}
	if name, ok := data["name"].(string); ok {
		msg.ToolName = name
	}
	return msg
}
