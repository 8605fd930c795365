package tools

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/silverkite/silverkite/internal/store"
)

func testDocs(t *testing.T) *store.Store {
	t.Helper()
	docs, err := store.Open(filepath.Join(t.TempDir(), "silverkite.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })
	return docs
}

func seedMemoryDocs(t *testing.T, docs *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		_, err := docs.Upsert(ctx, "documents", id, store.Document{
			"category": "agents_memory",
			"filename": id + ".md",
			"status":   "active",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestQueryDatabaseDefaultLimit(t *testing.T) {
	docs := testDocs(t)
	seedMemoryDocs(t, docs, 8)
	tool := NewQueryDatabaseTool(docs, DefaultModels())

	out, err := tool.Execute(context.Background(), map[string]any{"model": "memory_file"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		Count     int              `json:"count"`
		Documents []map[string]any `json:"documents"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("bad result JSON: %v", err)
	}
	if res.Count != 5 {
		t.Errorf("count = %d, want default limit 5", res.Count)
	}
}

func TestQueryDatabaseUnknownModel(t *testing.T) {
	tool := NewQueryDatabaseTool(testDocs(t), DefaultModels())
	_, err := tool.Execute(context.Background(), map[string]any{"model": "nope"})

	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeNotFound || te.Type != "model_not_found" {
		t.Errorf("envelope = %+v", te)
	}
	found := false
	for _, s := range te.Suggestions {
		if s == "call get_system_stats to see the available models" {
			found = true
		}
	}
	if !found {
		t.Error("missing get_system_stats suggestion")
	}
}

func TestQueryDatabaseScopeIsEnforced(t *testing.T) {
	docs := testDocs(t)
	ctx := context.Background()
	// A rules document must never leak through the memory_file model.
	if _, err := docs.Upsert(ctx, "documents", "r1", store.Document{
		"category": "rules", "content": "x",
	}); err != nil {
		t.Fatal(err)
	}
	seedMemoryDocs(t, docs, 1)

	tool := NewQueryDatabaseTool(docs, DefaultModels())
	out, err := tool.Execute(ctx, map[string]any{"model": "memory_file"})
	if err != nil {
		t.Fatal(err)
	}
	var res struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 {
		t.Errorf("count = %d, scope filter leaked", res.Count)
	}
}

func TestSystemStats(t *testing.T) {
	docs := testDocs(t)
	seedMemoryDocs(t, docs, 3)
	tool := NewSystemStatsTool(docs, DefaultModels())

	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	var res struct {
		Models map[string]int `json:"models"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Models["memory_file"] != 3 || res.Models["rule"] != 0 {
		t.Errorf("stats = %v", res.Models)
	}
}

func TestRawDBQueryOperations(t *testing.T) {
	docs := testDocs(t)
	seedMemoryDocs(t, docs, 2)
	tool := NewRawDBQueryTool(docs)
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{"operation": "listCollections"})
	if err != nil {
		t.Fatalf("listCollections: %v", err)
	}
	if out == "" || out == "null" {
		t.Errorf("listCollections = %q", out)
	}

	out, err = tool.Execute(ctx, map[string]any{
		"operation":  "countDocuments",
		"collection": "documents",
	})
	if err != nil {
		t.Fatalf("countDocuments: %v", err)
	}
	var count struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &count); err != nil || count.Count != 2 {
		t.Errorf("countDocuments = %q (%v)", out, err)
	}

	out, err = tool.Execute(ctx, map[string]any{
		"operation":  "findOne",
		"collection": "documents",
		"filter":     map[string]any{"filename": "zzz.md"},
	})
	if err != nil {
		t.Fatalf("findOne: %v", err)
	}
	var found struct {
		Document any `json:"document"`
	}
	if err := json.Unmarshal([]byte(out), &found); err != nil || found.Document != nil {
		t.Errorf("findOne no-match should return null document, got %q", out)
	}

	out, err = tool.Execute(ctx, map[string]any{
		"operation": "adminCommand",
		"command":   map[string]any{"ping": 1},
	})
	if err != nil {
		t.Fatalf("adminCommand: %v", err)
	}
}

func TestRawDBQueryAcceptsStringEncodedFilter(t *testing.T) {
	docs := testDocs(t)
	seedMemoryDocs(t, docs, 2)
	tool := NewRawDBQueryTool(docs)

	out, err := tool.Execute(context.Background(), map[string]any{
		"operation":  "countDocuments",
		"collection": "documents",
		"filter":     `{"filename": "a.md"}`,
	})
	if err != nil {
		t.Fatalf("string filter rejected: %v", err)
	}
	var count struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &count); err != nil || count.Count != 1 {
		t.Errorf("count = %q", out)
	}
}

func TestRawDBQueryRejectsMalformedFilter(t *testing.T) {
	tool := NewRawDBQueryTool(testDocs(t))
	_, err := tool.Execute(context.Background(), map[string]any{
		"operation":  "countDocuments",
		"collection": "documents",
		"filter":     "{not json",
	})
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeInvalidInput || te.Type != "query_execution_failed" || !te.Recoverable {
		t.Errorf("envelope = %+v", te)
	}
}

func TestRawDBQueryPipelineStringForm(t *testing.T) {
	docs := testDocs(t)
	seedMemoryDocs(t, docs, 4)
	tool := NewRawDBQueryTool(docs)

	out, err := tool.Execute(context.Background(), map[string]any{
		"operation":  "aggregate",
		"collection": "documents",
		"pipeline":   `[{"$match": {"status": "active"}}, {"$count": "n"}]`,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	var res struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0]["n"].(float64) != 4 {
		t.Errorf("results = %v", res.Results)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	out := r.Execute(context.Background(), "does_not_exist", nil)

	te, ok := ParseEnvelope(out)
	if !ok {
		t.Fatalf("expected envelope, got %q", out)
	}
	if te.Code != CodeNotFound || te.Type != "tool_not_found" || te.Recoverable {
		t.Errorf("envelope = %+v", te)
	}
}

func TestRegistryWrapsPlainErrors(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(failingTool{})
	out := r.Execute(context.Background(), "boom", nil)

	te, ok := ParseEnvelope(out)
	if !ok {
		t.Fatalf("expected envelope, got %q", out)
	}
	if te.Code != CodeInternalError || te.Type != "tool_execution_failed" || !te.Recoverable {
		t.Errorf("envelope = %+v", te)
	}
}

func TestRegistryContainsPanics(t *testing.T) {
	r := newTestRegistry(t)
	r.Register(panickyTool{})
	out := r.Execute(context.Background(), "kaboom", nil)

	te, ok := ParseEnvelope(out)
	if !ok {
		t.Fatalf("expected envelope, got %q", out)
	}
	if te.Code != CodeInternalError || te.Type != "tool_execution_failed" || !te.Recoverable {
		t.Errorf("envelope = %+v", te)
	}
	if te.Context["tool"] != "kaboom" {
		t.Errorf("context = %v", te.Context)
	}
}

type failingTool struct{}

func (failingTool) Name() string                { return "boom" }
func (failingTool) Description() string         { return "always fails" }
func (failingTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (failingTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return "", errors.New("kaput")
}

type panickyTool struct{}

func (panickyTool) Name() string                { return "kaboom" }
func (panickyTool) Description() string         { return "always panics" }
func (panickyTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (panickyTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	panic("unexpected nil document")
}
