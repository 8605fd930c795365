// Package tools implements the built-in tool set and the registry that
// dispatches LLM tool calls.
//
// Tool failures never propagate as raw errors to the model. They are
// serialised into a structured JSON envelope the conversation loop can
// detect and turn into guidance for the model.
package tools

import (
	"encoding/json"
	"fmt"
)

// Code classifies a tool error for the model.
type Code string

const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeMissingRequired    Code = "MISSING_REQUIRED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeConflict           Code = "CONFLICT"
	CodeConnectionTimeout  Code = "CONNECTION_TIMEOUT"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeAuthFailed         Code = "AUTH_FAILED"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeBug                Code = "BUG"
)

// ToolError is a structured tool failure. Type is a machine-readable slug
// naming the failure (e.g. "model_not_found"); Code classifies it.
type ToolError struct {
	Code        Code           `json:"code"`
	Type        string         `json:"type"`
	Message     string         `json:"message"`
	Recoverable bool           `json:"recoverable"`
	RetryAfter  *int           `json:"retry_after,omitempty"`
	Suggestions []string       `json:"suggestions"`
	Context     map[string]any `json:"context,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
}

// envelope is the wire shape sent back to the model as a tool result.
type envelope struct {
	Error *ToolError `json:"error"`
}

// Envelope serialises the error into its JSON envelope. Suggestions is
// always present in the output, empty rather than null.
func (e *ToolError) Envelope() string {
	if e.Suggestions == nil {
		e.Suggestions = []string{}
	}
	data, err := json.Marshal(envelope{Error: e})
	if err != nil {
		// Marshalling a ToolError only fails on unserialisable Context values.
		return fmt.Sprintf(`{"error":{"code":"INTERNAL_ERROR","type":"envelope_encoding_failed","message":%q,"recoverable":false,"suggestions":[]}}`, e.Message)
	}
	return string(data)
}

// ParseEnvelope reports whether s is a tool error envelope and decodes it.
// Only strict envelopes match: a single top-level "error" object carrying
// at least a code and message.
func ParseEnvelope(s string) (*ToolError, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, false
	}
	if env.Error == nil || env.Error.Code == "" || env.Error.Message == "" {
		return nil, false
	}
	return env.Error, true
}
