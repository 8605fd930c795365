package agent

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/silverkite/silverkite/internal/memory"
	"github.com/silverkite/silverkite/internal/schema"
	"github.com/silverkite/silverkite/internal/session"
	"github.com/silverkite/silverkite/internal/store"
)

type compactFixture struct {
	engine   *CompactionEngine
	provider *scriptedProvider
	sessions *session.Manager
	mem      *memory.Store
}

func newCompactFixture(t *testing.T, responses ...schema.LLMResponse) *compactFixture {
	t.Helper()
	log := slog.Default()

	docs, err := store.Open(filepath.Join(t.TempDir(), "silverkite.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { docs.Close() })
	mem := memory.NewStore(docs, log)

	sessions, err := session.NewManager(t.TempDir(), log)
	if err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{responses: responses}
	agents := map[string]schema.AgentDefinition{
		"assistant": {ID: "assistant", Provider: "test", Model: "test-model"},
	}
	return &compactFixture{
		engine:   NewCompactionEngine(agents, fakeSource{provider: provider, window: 100000}, sessions, mem, log),
		provider: provider,
		sessions: sessions,
		mem:      mem,
	}
}

func TestCompactWithHistory(t *testing.T) {
	ctx := context.Background()
	snapshot := "# Session Snapshot\n\n## Active Goals\n- finish the report"
	f := newCompactFixture(t, schema.LLMResponse{Content: text(snapshot)})

	chatID := "chat1"
	if _, err := f.sessions.GetOrCreate("assistant", chatID); err != nil {
		t.Fatal(err)
	}
	if err := f.sessions.AppendHistory(chatID, []schema.Message{
		schema.NewUserMessage("help me with the report"),
		schema.NewAssistantMessage(text("working on it"), nil),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.CompactSession(ctx, "assistant", chatID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("compaction failed: %s", res.Message)
	}
	if !strings.HasSuffix(res.SnapshotID, ".md") {
		t.Errorf("snapshotId = %q", res.SnapshotID)
	}

	sess, err := f.sessions.Get(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.LastSnapshotID != res.SnapshotID {
		t.Errorf("lastSnapshotId = %q, want %q", sess.LastSnapshotID, res.SnapshotID)
	}
	if sess.TotalTokens != 0 {
		t.Errorf("totalTokens = %d, want 0", sess.TotalTokens)
	}

	name, content, err := f.mem.LatestSnapshot(ctx, "assistant", chatID)
	if err != nil {
		t.Fatal(err)
	}
	if name != res.SnapshotID || content != snapshot {
		t.Errorf("snapshot = %q / %q", name, content)
	}

	index, err := f.mem.Read(ctx, memory.SnapshotIndexNamespace("assistant"), "index")
	if err != nil {
		t.Fatalf("index missing: %v", err)
	}
	if !strings.Contains(index, chatID) || !strings.Contains(index, res.SnapshotID) {
		t.Errorf("index line incomplete: %q", index)
	}

	history, err := f.sessions.History(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if history.Len() != 1 {
		t.Fatalf("history has %d messages, want 1 placeholder", history.Len())
	}
	if history.Messages[0].Role != "assistant" || !strings.Contains(history.Messages[0].Text(), "Conversation compacted") {
		t.Errorf("placeholder = %+v", history.Messages[0])
	}
}

func TestCompactNothingToCompact(t *testing.T) {
	f := newCompactFixture(t)
	if _, err := f.sessions.GetOrCreate("assistant", "chat1"); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.CompactSession(context.Background(), "assistant", "chat1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Message != "nothing to compact" {
		t.Errorf("result = %+v", res)
	}
	if len(f.provider.requests) != 0 {
		t.Error("no llm call expected")
	}
}

func TestCompactHistoryExpired(t *testing.T) {
	f := newCompactFixture(t)
	if _, err := f.sessions.GetOrCreate("assistant", "chat1"); err != nil {
		t.Fatal(err)
	}
	// Tokens counted but no history and no snapshot: the log is gone.
	tokens := 1200
	if err := f.sessions.Update("chat1", session.Patch{TotalTokens: &tokens}); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.CompactSession(context.Background(), "assistant", "chat1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Message != "history expired, start a new session" {
		t.Errorf("result = %+v", res)
	}
}

func TestCompactAlreadyCompacted(t *testing.T) {
	f := newCompactFixture(t)
	if _, err := f.sessions.GetOrCreate("assistant", "chat1"); err != nil {
		t.Fatal(err)
	}
	// Snapshot id recorded but the snapshot file itself is gone.
	id := "20260101-120000.md"
	if err := f.sessions.Update("chat1", session.Patch{LastSnapshotID: &id}); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.CompactSession(context.Background(), "assistant", "chat1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Message != "already compacted" {
		t.Errorf("result = %+v", res)
	}
}

func TestCompactReSummarizesPriorSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newCompactFixture(t, schema.LLMResponse{Content: text("# Session Snapshot\n\ncondensed again")})

	chatID := "chat1"
	if _, err := f.sessions.GetOrCreate("assistant", chatID); err != nil {
		t.Fatal(err)
	}
	snapNS := memory.SnapshotNamespace("assistant", chatID)
	if err := f.mem.Write(ctx, snapNS, "20260101-120000.md", "# Session Snapshot\n\nold facts"); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.CompactSession(ctx, "assistant", chatID)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	// The summarization call must have seen the prior snapshot.
	req := f.provider.requests[0]
	seeded := false
	for _, m := range req.Messages {
		if strings.Contains(m.Text(), "old facts") {
			seeded = true
		}
	}
	if !seeded {
		t.Error("prior snapshot not fed into the summarization call")
	}
}

func TestCompactSummarizationFailurePropagates(t *testing.T) {
	// No scripted responses, so the summarization call errors.
	f := newCompactFixture(t)
	chatID := "chat1"
	if _, err := f.sessions.GetOrCreate("assistant", chatID); err != nil {
		t.Fatal(err)
	}
	if err := f.sessions.AppendHistory(chatID, []schema.Message{
		schema.NewUserMessage("hello"),
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.CompactSession(context.Background(), "assistant", chatID); err == nil {
		t.Fatal("expected error")
	}

	// The session must be untouched on failure.
	sess, err := f.sessions.Get(chatID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.LastSnapshotID != "" {
		t.Error("lastSnapshotId set despite failure")
	}
	history, _ := f.sessions.History(chatID)
	if history.Len() != 1 {
		t.Errorf("history rewritten despite failure: %d messages", history.Len())
	}
}

func TestCompactEmptySnapshotContentErrors(t *testing.T) {
	f := newCompactFixture(t, schema.LLMResponse{Content: text("   ")})
	chatID := "chat1"
	if _, err := f.sessions.GetOrCreate("assistant", chatID); err != nil {
		t.Fatal(err)
	}
	if err := f.sessions.AppendHistory(chatID, []schema.Message{
		schema.NewUserMessage("hello"),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CompactSession(context.Background(), "assistant", chatID); err == nil {
		t.Fatal("expected error for blank summarization output")
	}
}

func TestCompactUnknownAgentAndSession(t *testing.T) {
	f := newCompactFixture(t)
	if _, err := f.engine.CompactSession(context.Background(), "ghost", "chat1"); err == nil {
		t.Fatal("expected error for unknown agent")
	}
	if _, err := f.engine.CompactSession(context.Background(), "assistant", "no-such-chat"); err == nil {
		t.Fatal("expected error for missing session")
	}
}
