package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "silverkite.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertReportsStoredBytes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := Document{"category": "agents_memory", "content": "hello"}
	ack, err := s.Upsert(ctx, "documents", "doc-1", doc)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if ack.ID != "doc-1" {
		t.Errorf("ack.ID = %q, want doc-1", ack.ID)
	}
	if ack.Bytes == 0 {
		t.Error("ack.Bytes should reflect persisted payload size")
	}

	// Overwriting with a larger payload must report the new size.
	doc["content"] = "hello again, with quite a bit more content"
	ack2, err := s.Upsert(ctx, "documents", "doc-1", doc)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if ack2.Bytes <= ack.Bytes {
		t.Errorf("ack2.Bytes = %d, want > %d", ack2.Bytes, ack.Bytes)
	}
}

func TestUpsertAckCountsBytesNotCharacters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Multi-byte content: "é" and the emoji take more bytes than characters,
	// so a character-based ack would under-report and fail verification.
	doc := Document{"category": "agents_memory", "content": "héllo 🌍 日本語"}
	expected, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	ack, err := s.Upsert(ctx, "documents", "doc-utf8", doc)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if ack.Bytes != len(expected) {
		t.Errorf("ack.Bytes = %d, want %d (byte length of payload)", ack.Bytes, len(expected))
	}
}

func TestFindFiltersAndLimits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, status := range []string{"active", "active", "archived"} {
		id := string(rune('a' + i))
		if _, err := s.Upsert(ctx, "documents", id, Document{"id": id, "status": status}); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	docs, err := s.Find(ctx, "documents", Document{"status": "active"}, 0)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d active docs, want 2", len(docs))
	}

	docs, err = s.Find(ctx, "documents", nil, 1)
	if err != nil {
		t.Fatalf("Find with limit failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("limit 1 returned %d docs", len(docs))
	}
}

func TestFilterMatchesObjectAndArrayValues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "documents", "n1", Document{
		"id":   "n1",
		"meta": map[string]any{"source": "import", "version": float64(2)},
		"tags": []any{"a", "b"},
	}); err != nil {
		t.Fatal(err)
	}

	// Object-valued filter fields must compare structurally, not with ==,
	// which panics on map types.
	docs, err := s.Find(ctx, "documents", Document{
		"meta": map[string]any{"source": "import", "version": float64(2)},
	}, 0)
	if err != nil {
		t.Fatalf("Find with object filter failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}

	docs, err = s.Find(ctx, "documents", Document{
		"meta": map[string]any{"source": "export", "version": float64(2)},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("mismatched object filter matched %d docs", len(docs))
	}

	out, err := s.Aggregate(ctx, "documents", []Document{
		{"$match": map[string]any{"tags": []any{"a", "b"}}},
		{"$count": "n"},
	})
	if err != nil {
		t.Fatalf("Aggregate with array filter failed: %v", err)
	}
	if len(out) != 1 || out[0]["n"].(int) != 1 {
		t.Errorf("$count = %v, want n=1", out)
	}
}

func TestFindOneNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FindOne(context.Background(), "documents", Document{"id": "missing"})
	if err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestCountAndDistinct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := []Document{
		{"id": "1", "namespace": "main"},
		{"id": "2", "namespace": "main"},
		{"id": "3", "namespace": "main__notes"},
	}
	for _, d := range seed {
		if _, err := s.Upsert(ctx, "documents", d["id"].(string), d); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Count(ctx, "documents", nil)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v; want 3", n, err)
	}
	n, err = s.Count(ctx, "documents", Document{"namespace": "main"})
	if err != nil || n != 2 {
		t.Fatalf("filtered Count = %d, %v; want 2", n, err)
	}

	values, err := s.Distinct(ctx, "documents", "namespace", nil)
	if err != nil {
		t.Fatalf("Distinct failed: %v", err)
	}
	want := []string{"main", "main__notes"}
	if len(values) != len(want) || values[0] != want[0] || values[1] != want[1] {
		t.Errorf("Distinct = %v, want %v", values, want)
	}
}

func TestListCollections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "documents", "x", Document{"id": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "sessions", "y", Document{"id": "y"}); err != nil {
		t.Fatal(err)
	}

	names, err := s.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections failed: %v", err)
	}
	if len(names) != 2 || names[0] != "documents" || names[1] != "sessions" {
		t.Errorf("collections = %v", names)
	}
}

func TestAggregatePipeline(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		doc := Document{"id": id, "rank": float64(5 - i), "kind": "memo"}
		if i == 4 {
			doc["kind"] = "rule"
		}
		if _, err := s.Upsert(ctx, "documents", id, doc); err != nil {
			t.Fatal(err)
		}
	}

	out, err := s.Aggregate(ctx, "documents", []Document{
		{"$match": map[string]any{"kind": "memo"}},
		{"$sort": map[string]any{"rank": float64(1)}},
		{"$limit": float64(2)},
	})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d docs, want 2", len(out))
	}
	if out[0]["rank"].(float64) > out[1]["rank"].(float64) {
		t.Error("results not sorted ascending by rank")
	}

	counted, err := s.Aggregate(ctx, "documents", []Document{
		{"$match": map[string]any{"kind": "memo"}},
		{"$count": "total"},
	})
	if err != nil {
		t.Fatalf("Aggregate $count failed: %v", err)
	}
	if len(counted) != 1 || counted[0]["total"].(int) != 4 {
		t.Errorf("$count = %v, want total=4", counted)
	}
}

func TestAggregateRejectsUnknownStage(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Aggregate(context.Background(), "documents", []Document{{"$group": map[string]any{}}})
	if err == nil {
		t.Fatal("expected error for unsupported stage")
	}
}

func TestAdminCommand(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pong, err := s.AdminCommand(ctx, Document{"ping": 1})
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if pong["ok"] != 1 {
		t.Errorf("ping = %v", pong)
	}

	if _, err := s.Upsert(ctx, "documents", "x", Document{"id": "x"}); err != nil {
		t.Fatal(err)
	}
	stats, err := s.AdminCommand(ctx, Document{"dbStats": 1})
	if err != nil {
		t.Fatalf("dbStats failed: %v", err)
	}
	if stats["db"] != "silverkite" {
		t.Errorf("db name = %v", stats["db"])
	}
	if stats["objects"] != 1 {
		t.Errorf("objects = %v, want 1", stats["objects"])
	}

	if _, err := s.AdminCommand(ctx, Document{"shutdown": 1}); err == nil {
		t.Error("expected error for unsupported command")
	}
}
