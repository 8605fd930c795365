package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/silverkite/silverkite/internal/memory"
)

// MemoryTool gives the model file-style access to its persistent memory.
// All paths resolve inside the calling agent's namespace; the namespace
// itself comes from the turn context, never from tool parameters.
type MemoryTool struct {
	store *memory.Store
}

func NewMemoryTool(store *memory.Store) *MemoryTool {
	return &MemoryTool{store: store}
}

func (m *MemoryTool) Name() string { return "memory" }

func (m *MemoryTool) Description() string {
	return "Manage your persistent memory files: list, read, write, append and search markdown files that survive across conversations."
}

func (m *MemoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["list", "read", "write", "append", "search"],
				"description": "The memory operation to perform"
			},
			"filename": {
				"type": "string",
				"description": "Target file, e.g. notes.md (read/write/append)"
			},
			"folder": {
				"type": "string",
				"description": "Optional subfolder path, e.g. projects/kite"
			},
			"content": {
				"type": "string",
				"description": "File content (write/append)"
			},
			"query": {
				"type": "string",
				"description": "Search text (search)"
			}
		},
		"required": ["action"]
	}`)
}

func (m *MemoryTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	tc := TurnCtx(ctx)
	if tc.Namespace == "" {
		return "", &ToolError{
			Code:        CodeInternalError,
			Type:        "memory_namespace_missing",
			Message:     "no agent namespace bound to this turn",
			Recoverable: false,
		}
	}

	action, _ := params["action"].(string)
	folder, _ := params["folder"].(string)
	ns := memory.ResolveNamespace(tc.Namespace, folder)

	switch action {
	case "list":
		return m.list(ctx, tc.Namespace, ns)
	case "read":
		return m.read(ctx, ns, params)
	case "write":
		return m.write(ctx, ns, params, false)
	case "append":
		return m.write(ctx, ns, params, true)
	case "search":
		return m.search(ctx, tc.Namespace, params)
	default:
		return "", &ToolError{
			Code:        CodeInvalidInput,
			Type:        "memory_unknown_action",
			Message:     fmt.Sprintf("unknown memory action %q", action),
			Recoverable: true,
			Suggestions: []string{"use one of: list, read, write, append, search"},
		}
	}
}

func (m *MemoryTool) list(ctx context.Context, prefix, ns string) (string, error) {
	files, err := m.store.List(ctx, ns)
	if err != nil {
		return "", memoryFailure("list", err)
	}
	subfolders, err := m.store.Subfolders(ctx, prefix)
	if err != nil {
		return "", memoryFailure("list", err)
	}
	if subfolders == nil {
		subfolders = []string{}
	}
	if files == nil {
		files = []memory.FileInfo{}
	}
	out, _ := json.Marshal(map[string]any{
		"files":      files,
		"subfolders": subfolders,
	})
	return string(out), nil
}

func (m *MemoryTool) read(ctx context.Context, ns string, params map[string]any) (string, error) {
	filename, ok := params["filename"].(string)
	if !ok || filename == "" {
		return "", missingParam("memory", "filename")
	}
	content, err := m.store.Read(ctx, ns, filename)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return "", &ToolError{
				Code:        CodeNotFound,
				Type:        "memory_file_not_found",
				Message:     fmt.Sprintf("memory file %q does not exist", filename),
				Recoverable: true,
				Suggestions: []string{"list the namespace to see available files", "write the file first"},
				Context:     map[string]any{"filename": filename},
			}
		}
		return "", memoryFailure("read", err)
	}
	return content, nil
}

func (m *MemoryTool) write(ctx context.Context, ns string, params map[string]any, appendMode bool) (string, error) {
	filename, ok := params["filename"].(string)
	if !ok || filename == "" {
		return "", missingParam("memory", "filename")
	}
	content, ok := params["content"].(string)
	if !ok {
		return "", missingParam("memory", "content")
	}

	var err error
	if appendMode {
		err = m.store.Append(ctx, ns, filename, content)
	} else {
		err = m.store.Write(ctx, ns, filename, content)
	}
	if err != nil {
		return "", memoryFailure("write", err)
	}

	out, _ := json.Marshal(map[string]any{
		"success":  true,
		"filename": filename,
		"bytes":    len(content),
	})
	return string(out), nil
}

func (m *MemoryTool) search(ctx context.Context, prefix string, params map[string]any) (string, error) {
	query, ok := params["query"].(string)
	if !ok || query == "" {
		return "", missingParam("memory", "query")
	}
	hits, err := m.store.Search(ctx, prefix, query)
	if err != nil {
		return "", memoryFailure("search", err)
	}
	if hits == nil {
		hits = []memory.SearchHit{}
	}
	out, _ := json.Marshal(map[string]any{"matches": hits})
	return string(out), nil
}

func missingParam(tool, name string) *ToolError {
	return &ToolError{
		Code:        CodeMissingRequired,
		Type:        tool + "_missing_parameter",
		Message:     fmt.Sprintf("parameter %q is required", name),
		Recoverable: true,
		Suggestions: []string{fmt.Sprintf("provide the %q parameter and retry", name)},
	}
}

func memoryFailure(op string, err error) *ToolError {
	return &ToolError{
		Code:        CodeInternalError,
		Type:        "memory_" + op + "_failed",
		Message:     err.Error(),
		Recoverable: true,
		Suggestions: []string{"retry the operation"},
	}
}
