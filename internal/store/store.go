// Package store implements the embedded document store backing memory files
// and the database tools.
//
// Documents are schemaless JSON objects grouped into named collections, all
// held in a single SQLite table. Equality filters are evaluated against the
// decoded documents; the SQL layer only narrows by collection.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("document not found")

// Document is a schemaless JSON object.
type Document map[string]any

// WriteAck acknowledges a completed upsert. Bytes is the length of the JSON
// payload as persisted by the database (via RETURNING), which callers use to
// verify durability without a follow-up read.
type WriteAck struct {
	ID    string
	Bytes int
}

// Store is a document store backed by a single SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Name returns the logical database name (the file stem).
func (s *Store) Name() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Upsert inserts or replaces the document with the given id. The returned
// ack carries the byte length of the persisted payload.
func (s *Store) Upsert(ctx context.Context, collection, id string, doc Document) (WriteAck, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return WriteAck{}, fmt.Errorf("marshal document: %w", err)
	}

	// length() on TEXT counts characters; the BLOB cast makes it bytes.
	var stored int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		RETURNING length(CAST(data AS BLOB))`,
		collection, id, string(data), time.Now().UTC().Format(time.RFC3339),
	).Scan(&stored)
	if err != nil {
		return WriteAck{}, fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}

	return WriteAck{ID: id, Bytes: stored}, nil
}

// Find returns documents in collection matching filter, up to limit
// (limit <= 0 means no limit). Filter fields are matched by equality.
func (s *Store) Find(ctx context.Context, collection string, filter Document, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		if !matchFilter(doc, filter) {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// FindOne returns the first document matching filter, or ErrNotFound.
func (s *Store) FindOne(ctx context.Context, collection string, filter Document) (Document, error) {
	docs, err := s.Find(ctx, collection, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s: %w", collection, ErrNotFound)
	}
	return docs[0], nil
}

// Count returns the number of documents in collection matching filter.
func (s *Store) Count(ctx context.Context, collection string, filter Document) (int, error) {
	if len(filter) == 0 {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
		return n, err
	}
	docs, err := s.Find(ctx, collection, filter, 0)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Distinct returns the sorted distinct string values of field across the
// documents in collection matching filter.
func (s *Store) Distinct(ctx context.Context, collection, field string, filter Document) ([]string, error) {
	docs, err := s.Find(ctx, collection, filter, 0)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, doc := range docs {
		if v, ok := doc[field].(string); ok && !seen[v] {
			seen[v] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// ListCollections returns the names of all non-empty collections.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Aggregate evaluates a restricted aggregation pipeline over collection.
// Supported stages: $match (equality filter), $sort ({field: 1|-1}),
// $limit (int) and $count (result field name).
func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error) {
	docs, err := s.Find(ctx, collection, nil, 0)
	if err != nil {
		return nil, err
	}

	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("aggregate: each stage must have exactly one operator")
		}
		for op, arg := range stage {
			switch op {
			case "$match":
				filter, ok := arg.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("aggregate: $match expects an object")
				}
				var kept []Document
				for _, doc := range docs {
					if matchFilter(doc, filter) {
						kept = append(kept, doc)
					}
				}
				docs = kept
			case "$sort":
				spec, ok := arg.(map[string]any)
				if !ok || len(spec) == 0 {
					return nil, fmt.Errorf("aggregate: $sort expects a non-empty object")
				}
				docs = sortDocs(docs, spec)
			case "$limit":
				n, ok := toInt(arg)
				if !ok || n < 0 {
					return nil, fmt.Errorf("aggregate: $limit expects a non-negative integer")
				}
				if len(docs) > n {
					docs = docs[:n]
				}
			case "$count":
				name, ok := arg.(string)
				if !ok || name == "" {
					return nil, fmt.Errorf("aggregate: $count expects a field name")
				}
				return []Document{{name: len(docs)}}, nil
			default:
				return nil, fmt.Errorf("aggregate: unsupported stage %q", op)
			}
		}
	}
	return docs, nil
}

// AdminCommand runs a database-level command. Supported commands:
// {"ping": 1} and {"dbStats": 1}.
func (s *Store) AdminCommand(ctx context.Context, cmd Document) (Document, error) {
	if _, ok := cmd["ping"]; ok {
		return Document{"ok": 1}, nil
	}
	if _, ok := cmd["dbStats"]; ok {
		collections, err := s.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		var objects int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents`).Scan(&objects); err != nil {
			return nil, err
		}
		var dataSize int64
		if info, err := os.Stat(s.path); err == nil {
			dataSize = info.Size()
		}
		return Document{
			"db":          s.Name(),
			"collections": len(collections),
			"objects":     objects,
			"dataSize":    dataSize,
			"ok":          1,
		}, nil
	}
	return nil, fmt.Errorf("unsupported admin command: %v", commandNames(cmd))
}

func commandNames(cmd Document) []string {
	names := make([]string, 0, len(cmd))
	for k := range cmd {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// matchFilter reports whether doc satisfies every equality condition in
// filter. Numeric values compare as float64 (the JSON decode type).
func matchFilter(doc Document, filter map[string]any) bool {
	for field, want := range filter {
		got, ok := doc[field]
		if !ok {
			return false
		}
		if !valueEqual(got, want) {
			return false
		}
	}
	return true
}

// valueEqual compares decoded JSON values. Objects and arrays are not
// comparable with ==, so anything non-numeric goes through DeepEqual.
func valueEqual(got, want any) bool {
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// sortDocs orders docs by the (single) field in spec; 1 ascending, -1
// descending. String and numeric values are comparable; everything else
// keeps its relative position.
func sortDocs(docs []Document, spec map[string]any) []Document {
	var field string
	dir := 1
	for f, d := range spec {
		field = f
		if n, ok := toInt(d); ok && n < 0 {
			dir = -1
		}
		break
	}
	sorted := make([]Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		less := docLess(sorted[i][field], sorted[j][field])
		if dir < 0 {
			return docLess(sorted[j][field], sorted[i][field])
		}
		return less
	})
	return sorted
}

func docLess(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af < bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}
