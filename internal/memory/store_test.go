package memory

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/silverkite/silverkite/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	docs, err := store.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })
	return NewStore(docs, slog.Default())
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"My Agent", "my_agent"},
		{"  hello--world  ", "hello_world"},
		{"Ops/2024", "ops_2024"},
		{"___x___", "x"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResolveNamespace(t *testing.T) {
	cases := []struct {
		prefix, subfolder, want string
	}{
		{"main", "", "main"},
		{"main", "notes", "main__notes"},
		{"main", "notes/archive", "main__notes__archive"},
		{"main", "_snapshots", "main__snapshots"},
		{"main", "__private", "main__private"},
	}
	for _, c := range cases {
		if got := ResolveNamespace(c.prefix, c.subfolder); got != c.want {
			t.Errorf("ResolveNamespace(%q, %q) = %q, want %q", c.prefix, c.subfolder, got, c.want)
		}
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "main", "notes.md", "# Field Notes\n\nhello"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	content, err := s.Read(ctx, "main", "notes.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if content != "# Field Notes\n\nhello" {
		t.Errorf("content = %q", content)
	}

	files, err := s.List(ctx, "main")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 1 || files[0].Title != "Field Notes" {
		t.Errorf("files = %+v", files)
	}
}

func TestWriteMultiByteContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The write verification compares against the byte length of the
	// payload; accents, CJK and emoji must not trip it.
	content := "# Notes\n\nhéllo wörld 🌍 こんにちは"
	if err := s.Write(ctx, "main", "intl.md", content); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := s.Read(ctx, "main", "intl.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestReadMissingFile(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read(context.Background(), "main", "nope.md")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTitleFallsBackToFilenameStem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "main", "scratch.md", "no heading here"); err != nil {
		t.Fatal(err)
	}
	files, err := s.List(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if files[0].Title != "scratch" {
		t.Errorf("title = %q, want scratch", files[0].Title)
	}
}

func TestAppendSeparatesWithNewline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "main", "log.md", "first"); err != nil {
		t.Fatalf("Append (create) failed: %v", err)
	}
	if err := s.Append(ctx, "main", "log.md", "second"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	content, err := s.Read(ctx, "main", "log.md")
	if err != nil {
		t.Fatal(err)
	}
	if content != "first\nsecond" {
		t.Errorf("content = %q, want %q", content, "first\nsecond")
	}
}

func TestSearchRespectsNamespaceBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "alphabet" shares leading characters with "alpha" but is a distinct
	// namespace and must not match the "alpha" prefix.
	if err := s.Write(ctx, "alpha", "a.md", "needle"); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "alpha__sub", "b.md", "needle"); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "alphabet", "c.md", "needle"); err != nil {
		t.Fatal(err)
	}

	hits, err := s.Search(ctx, "alpha", "needle")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2: %+v", len(hits), hits)
	}
	for _, h := range hits {
		if h.Namespace == "alphabet" {
			t.Error("search leaked into sibling namespace alphabet")
		}
	}
}

func TestSearchIsCaseInsensitiveAndLimited(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		name := "f" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".md"
		if err := s.Write(ctx, "main", name, "The NEEDLE is here"); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := s.Search(ctx, "main", "needle")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 20 {
		t.Errorf("got %d hits, want cap of 20", len(hits))
	}
}

func TestSubfolders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "main", "a.md", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "main__notes", "b.md", "x"); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "main__notes__old", "c.md", "x"); err != nil {
		t.Fatal(err)
	}

	subs, err := s.Subfolders(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0] != "notes" || subs[1] != "notes/old" {
		t.Errorf("subfolders = %v", subs)
	}
}

func TestLatestSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ns := SnapshotNamespace("main", "chat-1")
	if err := s.Write(ctx, ns, "20260101-120000.md", "older"); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, ns, "20260201-090000.md", "newer"); err != nil {
		t.Fatal(err)
	}

	name, content, err := s.LatestSnapshot(ctx, "main", "chat-1")
	if err != nil {
		t.Fatalf("LatestSnapshot failed: %v", err)
	}
	if name != "20260201-090000.md" || content != "newer" {
		t.Errorf("latest = %q / %q", name, content)
	}

	_, _, err = s.LatestSnapshot(ctx, "main", "chat-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEnsureBootstrapIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.EnsureBootstrap(ctx, "main"); err != nil {
		t.Fatalf("EnsureBootstrap failed: %v", err)
	}
	if err := s.Write(ctx, "main", "goals.md", "# Active Goals\n\n- ship v1\n"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureBootstrap(ctx, "main"); err != nil {
		t.Fatalf("second EnsureBootstrap failed: %v", err)
	}

	content, err := s.Read(ctx, "main", "goals.md")
	if err != nil {
		t.Fatal(err)
	}
	if content != "# Active Goals\n\n- ship v1\n" {
		t.Error("bootstrap overwrote an existing file")
	}

	files, err := s.List(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 7 {
		t.Errorf("got %d bootstrap files, want 7", len(files))
	}
}
