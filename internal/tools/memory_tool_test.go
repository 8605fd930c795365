package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/silverkite/silverkite/internal/memory"
	"github.com/silverkite/silverkite/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(slog.Default())
}

func memoryFixture(t *testing.T) (*MemoryTool, context.Context) {
	t.Helper()
	docs, err := store.Open(filepath.Join(t.TempDir(), "silverkite.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })
	tool := NewMemoryTool(memory.NewStore(docs, slog.Default()))
	ctx := WithTurn(context.Background(), TurnContext{
		AgentID:   "assistant",
		Namespace: "assistant",
		ChatID:    "c1",
	})
	return tool, ctx
}

func TestMemoryWriteAndRead(t *testing.T) {
	tool, ctx := memoryFixture(t)

	out, err := tool.Execute(ctx, map[string]any{
		"action":   "write",
		"filename": "notes.md",
		"content":  "# Notes\n\nremember this",
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil || !res.Success {
		t.Fatalf("write result = %q", out)
	}

	content, err := tool.Execute(ctx, map[string]any{
		"action":   "read",
		"filename": "notes.md",
	})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if content != "# Notes\n\nremember this" {
		t.Errorf("content = %q", content)
	}
}

func TestMemoryReadMissingFile(t *testing.T) {
	tool, ctx := memoryFixture(t)
	_, err := tool.Execute(ctx, map[string]any{"action": "read", "filename": "ghost.md"})

	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeNotFound || te.Type != "memory_file_not_found" || !te.Recoverable {
		t.Errorf("envelope = %+v", te)
	}
}

func TestMemoryFolderResolution(t *testing.T) {
	tool, ctx := memoryFixture(t)

	if _, err := tool.Execute(ctx, map[string]any{
		"action":   "write",
		"folder":   "projects/kite",
		"filename": "plan.md",
		"content":  "# Plan",
	}); err != nil {
		t.Fatal(err)
	}

	// Leading underscores must not grant access to a different namespace.
	out, err := tool.Execute(ctx, map[string]any{
		"action":   "read",
		"folder":   "_projects/kite",
		"filename": "plan.md",
	})
	if err != nil {
		t.Fatalf("underscored folder read failed: %v", err)
	}
	if out != "# Plan" {
		t.Errorf("content = %q", out)
	}
}

func TestMemoryListIncludesSubfolders(t *testing.T) {
	tool, ctx := memoryFixture(t)

	for _, p := range []map[string]any{
		{"action": "write", "filename": "a.md", "content": "x"},
		{"action": "write", "folder": "notes", "filename": "b.md", "content": "y"},
	} {
		if _, err := tool.Execute(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	out, err := tool.Execute(ctx, map[string]any{"action": "list"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var res struct {
		Files      []map[string]any `json:"files"`
		Subfolders []string         `json:"subfolders"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Files) != 1 || len(res.Subfolders) != 1 || res.Subfolders[0] != "notes" {
		t.Errorf("list = %q", out)
	}
}

func TestMemorySearch(t *testing.T) {
	tool, ctx := memoryFixture(t)

	if _, err := tool.Execute(ctx, map[string]any{
		"action": "write", "filename": "a.md", "content": "the kite flies high",
	}); err != nil {
		t.Fatal(err)
	}

	out, err := tool.Execute(ctx, map[string]any{"action": "search", "query": "KITE"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	var res struct {
		Matches []map[string]any `json:"matches"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 1 {
		t.Errorf("matches = %q", out)
	}
}

func TestMemoryUnknownAction(t *testing.T) {
	tool, ctx := memoryFixture(t)
	_, err := tool.Execute(ctx, map[string]any{"action": "destroy"})

	var te *ToolError
	if !errors.As(err, &te) || te.Code != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestMemoryRequiresNamespace(t *testing.T) {
	tool, _ := memoryFixture(t)
	_, err := tool.Execute(context.Background(), map[string]any{"action": "list"})

	var te *ToolError
	if !errors.As(err, &te) || te.Code != CodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR without turn context, got %v", err)
	}
}

func TestRegistryDefinitionsShape(t *testing.T) {
	r := newTestRegistry(t)
	tool, _ := memoryFixture(t)
	r.Register(tool)

	defs := r.Definitions()
	if len(defs) != 1 {
		t.Fatalf("got %d definitions", len(defs))
	}
	if defs[0]["type"] != "function" {
		t.Errorf("definition type = %v", defs[0]["type"])
	}
	fn, ok := defs[0]["function"].(map[string]any)
	if !ok || fn["name"] != "memory" {
		t.Errorf("function block = %v", defs[0]["function"])
	}
	if _, ok := fn["parameters"].(map[string]any); !ok {
		t.Error("parameters not decoded to an object")
	}
}
