// Package memory exposes the agent's persistent memory as a virtual file
// system over the document store. Files live in namespaces; subfolders are
// flattened into the namespace with a "__" separator so every file is one
// document.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/silverkite/silverkite/internal/store"
)

// Category is the document category reserved for agent memory files.
const Category = "agents_memory"

const collection = "documents"

// FileInfo identifies one memory file within a namespace.
type FileInfo struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
}

// SearchHit is one match from a cross-namespace search.
type SearchHit struct {
	Namespace string `json:"namespace"`
	Subfolder string `json:"subfolder,omitempty"`
	Filename  string `json:"filename"`
	Title     string `json:"title"`
}

// ErrNotFound is returned when a memory file does not exist.
var ErrNotFound = errors.New("memory file not found")

// Store provides namespaced file-style access to agent memory.
type Store struct {
	docs *store.Store
	log  *slog.Logger
}

// NewStore wraps the document store with memory semantics.
func NewStore(docs *store.Store, log *slog.Logger) *Store {
	return &Store{docs: docs, log: log.With("component", "memory")}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeName normalises a namespace or filename segment: lowercase,
// runs of non-alphanumerics collapse to a single underscore, leading and
// trailing underscores are trimmed.
func SanitizeName(name string) string {
	s := nonAlnum.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// ResolveNamespace joins an agent's namespace prefix with an optional
// subfolder path. Leading underscores on subfolder segments are stripped so
// internal folders cannot be reached by prefixing.
func ResolveNamespace(prefix, subfolder string) string {
	if subfolder == "" {
		return prefix
	}
	parts := strings.Split(subfolder, "/")
	ns := prefix
	for _, part := range parts {
		seg := SanitizeName(strings.TrimLeft(part, "_"))
		if seg == "" {
			continue
		}
		ns = ns + "__" + seg
	}
	return ns
}

// SnapshotNamespace returns the namespace holding conversation snapshots
// for one chat.
func SnapshotNamespace(prefix, chatID string) string {
	return prefix + "__snapshots__" + SanitizeName(chatID)
}

// SnapshotIndexNamespace returns the namespace of the snapshot index file.
func SnapshotIndexNamespace(prefix string) string {
	return prefix + "__snapshots"
}

func docID(namespace, filename string) string {
	return Category + "/" + namespace + "/" + filename
}

// List returns the files in a namespace, sorted by filename.
func (s *Store) List(ctx context.Context, namespace string) ([]FileInfo, error) {
	docs, err := s.docs.Find(ctx, collection, store.Document{
		"category":  Category,
		"namespace": namespace,
		"status":    "active",
	}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(docs))
	for _, doc := range docs {
		name, _ := doc["filename"].(string)
		title, _ := doc["title"].(string)
		out = append(out, FileInfo{Filename: name, Title: title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Read returns the content of one memory file, or ErrNotFound.
func (s *Store) Read(ctx context.Context, namespace, filename string) (string, error) {
	doc, err := s.docs.FindOne(ctx, collection, store.Document{
		"category":  Category,
		"namespace": namespace,
		"filename":  filename,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%s/%s: %w", namespace, filename, ErrNotFound)
		}
		return "", err
	}
	content, _ := doc["content"].(string)
	return content, nil
}

// Write creates or replaces a memory file. The title is taken from the first
// markdown heading, falling back to the filename stem. The write is verified
// against the database's acknowledged payload size.
func (s *Store) Write(ctx context.Context, namespace, filename, content string) error {
	doc := store.Document{
		"category":  Category,
		"namespace": namespace,
		"filename":  filename,
		"title":     titleFor(filename, content),
		"content":   content,
		"status":    "active",
	}
	expected, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal memory file: %w", err)
	}
	ack, err := s.docs.Upsert(ctx, collection, docID(namespace, filename), doc)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", namespace, filename, err)
	}
	if ack.Bytes != len(expected) {
		return fmt.Errorf("write %s/%s: persisted %d bytes, expected %d",
			namespace, filename, ack.Bytes, len(expected))
	}
	return nil
}

// Append adds content to the end of a file, creating it if absent. Existing
// content is separated from the addition by a newline.
func (s *Store) Append(ctx context.Context, namespace, filename, content string) error {
	existing, err := s.Read(ctx, namespace, filename)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	merged := content
	if existing != "" {
		merged = existing + "\n" + content
	}
	if err := s.Write(ctx, namespace, filename, merged); err != nil {
		return err
	}
	if len(merged) <= len(existing) {
		s.log.Warn("append did not grow file",
			"namespace", namespace, "filename", filename)
	}
	return nil
}

const searchLimit = 20

// Search returns up to 20 files under the given namespace prefix whose title
// or content contains query (case-insensitive). The prefix matches the
// namespace itself and any "__"-separated descendant, never a namespace
// that merely shares leading characters.
func (s *Store) Search(ctx context.Context, prefix, query string) ([]SearchHit, error) {
	docs, err := s.docs.Find(ctx, collection, store.Document{
		"category": Category,
		"status":   "active",
	}, 0)
	if err != nil {
		return nil, err
	}

	nsPattern, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + "(?:$|__)")
	if err != nil {
		return nil, fmt.Errorf("compile namespace pattern: %w", err)
	}
	needle := strings.ToLower(query)

	var hits []SearchHit
	for _, doc := range docs {
		ns, _ := doc["namespace"].(string)
		if !nsPattern.MatchString(ns) {
			continue
		}
		title, _ := doc["title"].(string)
		content, _ := doc["content"].(string)
		if !strings.Contains(strings.ToLower(title), needle) &&
			!strings.Contains(strings.ToLower(content), needle) {
			continue
		}
		name, _ := doc["filename"].(string)
		hits = append(hits, SearchHit{
			Namespace: ns,
			Subfolder: subfolderOf(prefix, ns),
			Filename:  name,
			Title:     title,
		})
		if len(hits) >= searchLimit {
			break
		}
	}
	return hits, nil
}

// subfolderOf converts a descendant namespace back into the slash-separated
// subfolder path relative to prefix.
func subfolderOf(prefix, namespace string) string {
	if namespace == prefix {
		return ""
	}
	rest := strings.TrimPrefix(namespace, prefix+"__")
	return strings.ReplaceAll(rest, "__", "/")
}

// Subfolders returns the slash-separated subfolder paths that exist directly
// or transitively under prefix.
func (s *Store) Subfolders(ctx context.Context, prefix string) ([]string, error) {
	namespaces, err := s.docs.Distinct(ctx, collection, "namespace", store.Document{
		"category": Category,
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ns := range namespaces {
		if ns == prefix || !strings.HasPrefix(ns, prefix+"__") {
			continue
		}
		out = append(out, subfolderOf(prefix, ns))
	}
	sort.Strings(out)
	return out, nil
}

// LatestSnapshot returns the filename and content of the most recent
// snapshot in the chat's snapshot namespace, or ErrNotFound when none exist.
// Snapshot filenames are UTC timestamps, so lexicographic order is
// chronological.
func (s *Store) LatestSnapshot(ctx context.Context, prefix, chatID string) (string, string, error) {
	ns := SnapshotNamespace(prefix, chatID)
	files, err := s.List(ctx, ns)
	if err != nil {
		return "", "", err
	}
	if len(files) == 0 {
		return "", "", ErrNotFound
	}
	latest := files[len(files)-1].Filename
	content, err := s.Read(ctx, ns, latest)
	if err != nil {
		return "", "", err
	}
	return latest, content, nil
}

func titleFor(filename, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return strings.TrimSuffix(filename, ".md")
}

// bootstrapFiles are the memory files every agent namespace starts with.
var bootstrapFiles = map[string]string{
	"persona.md":      "# Persona\n\nDescribe who this agent is and how it should speak.\n",
	"identity.md":     "# Identity\n\nFacts the agent knows about itself and its operator.\n",
	"goals.md":        "# Active Goals\n\n- (none yet)\n",
	"tasks.md":        "# Current Tasks\n\n- (none yet)\n",
	"decisions.md":    "# Decisions\n\nRecord decisions made during conversations, one per line.\n",
	"observations.md": "# Observations\n\nNotable things learned about the user or environment.\n",
	"constraints.md":  "# Constraints\n\nHard rules the agent must not violate.\n",
}

// EnsureBootstrap creates any missing starter files in the namespace.
// Existing files are never touched, so repeated calls are safe.
func (s *Store) EnsureBootstrap(ctx context.Context, namespace string) error {
	for filename, content := range bootstrapFiles {
		_, err := s.Read(ctx, namespace, filename)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.Write(ctx, namespace, filename, content); err != nil {
			return err
		}
		s.log.Debug("bootstrapped memory file", "namespace", namespace, "filename", filename)
	}
	return nil
}
