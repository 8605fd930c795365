package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/silverkite/silverkite/internal/schema"
)

// ErrNotFound is returned when a session record does not exist on disk.
var ErrNotFound = errors.New("session not found")

// Manager persists session records and history logs under a directory.
// Records are lazy: nothing is written until the first GetOrCreate for a
// chat, and reads of missing sessions never create files.
type Manager struct {
	dir string
	mu  sync.Mutex
	log *slog.Logger
}

// NewManager creates a Manager rooted at the workspace directory.
func NewManager(workspace string, log *slog.Logger) (*Manager, error) {
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{dir: dir, log: log.With("component", "session")}, nil
}

// GetOrCreate returns the session for chatID, creating the record on disk
// when it does not exist yet.
func (m *Manager) GetOrCreate(agentID, chatID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.read(chatID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}

	now := time.Now().UTC()
	s = Session{
		ChatID:    chatID,
		AgentID:   agentID,
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.write(s); err != nil {
		return Session{}, err
	}
	m.log.Debug("created session", "chatId", chatID, "agentId", agentID)
	return s, nil
}

// Get returns the session for chatID or ErrNotFound.
func (m *Manager) Get(chatID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(chatID)
}

// Update applies patch to the session. Updating a session that does not
// exist is a silent no-op.
func (m *Manager) Update(chatID string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.read(chatID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.LastSnapshotID != nil {
		s.LastSnapshotID = *patch.LastSnapshotID
	}
	if patch.TotalTokens != nil {
		s.TotalTokens = *patch.TotalTokens
	}
	if patch.Label != nil {
		s.Label = *patch.Label
	}
	s.UpdatedAt = time.Now().UTC()
	return m.write(s)
}

// Rename sets a human-readable label on the session. A blank label or a
// missing session produces an unsuccessful result, never an error.
func (m *Manager) Rename(chatID, label string) (RenameResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return RenameResult{Success: false, Message: "label must not be empty"}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.read(chatID)
	if errors.Is(err, ErrNotFound) {
		return RenameResult{Success: false, Message: "session not found"}, nil
	}
	if err != nil {
		return RenameResult{}, err
	}

	s.Label = label
	s.UpdatedAt = time.Now().UTC()
	if err := m.write(s); err != nil {
		return RenameResult{}, err
	}
	return RenameResult{Success: true, Label: label}, nil
}

// List returns all session records, sorted most recently updated first.
func (m *Manager) List() ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			m.log.Warn("skipping malformed session record", "path", path, "err", err)
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// History returns the last HistoryWindow messages from the chat's log.
// A missing log yields an empty history.
func (m *Manager) History(chatID string) (schema.Messages, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.historyPath(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return schema.NewMessages(), nil
		}
		return schema.Messages{}, err
	}
	defer f.Close()

	msgs := schema.NewMessages()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal(line, &data); err != nil {
			m.log.Warn("skipping malformed history line", "chatId", chatID, "err", err)
			continue
		}
		msgs.Add(wireToMessage(data))
	}
	if err := scanner.Err(); err != nil {
		return schema.Messages{}, fmt.Errorf("read history %s: %w", chatID, err)
	}

	if msgs.Len() > HistoryWindow {
		msgs.Messages = msgs.Messages[msgs.Len()-HistoryWindow:]
	}
	return msgs, nil
}

// AppendHistory appends messages to the chat's history log.
func (m *Manager) AppendHistory(chatID string, msgs []schema.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(m.historyPath(chatID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history %s: %w", chatID, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	for _, msg := range msgs {
		if err := enc.Encode(messageToWire(msg)); err != nil {
			return fmt.Errorf("encode history message: %w", err)
		}
	}
	return nil
}

// ReplaceHistory discards the chat's history log and writes msgs as its
// entire new content. Used after compaction.
func (m *Manager) ReplaceHistory(chatID string, msgs []schema.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, msg := range msgs {
		if err := enc.Encode(messageToWire(msg)); err != nil {
			return fmt.Errorf("encode history message: %w", err)
		}
	}
	return os.WriteFile(m.historyPath(chatID), buf.Bytes(), 0o644)
}

func (m *Manager) read(chatID string) (Session, error) {
	data, err := os.ReadFile(m.recordPath(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, fmt.Errorf("%s: %w", chatID, ErrNotFound)
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", chatID, err)
	}
	return s, nil
}

func (m *Manager) write(s Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ChatID, err)
	}
	return os.WriteFile(m.recordPath(s.ChatID), append(data, '\n'), 0o644)
}

func (m *Manager) recordPath(chatID string) string {
	return filepath.Join(m.dir, slug(chatID)+".json")
}

func (m *Manager) historyPath(chatID string) string {
	return filepath.Join(m.dir, slug(chatID)+".history.jsonl")
}

// slug converts a chat id to a filesystem-safe filename stem.
func slug(chatID string) string {
	name := strings.ReplaceAll(chatID, ":", "_")
	const unsafe = `<>"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
