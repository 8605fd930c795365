package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/silverkite/silverkite/internal/memory"
	"github.com/silverkite/silverkite/internal/schema"
	"github.com/silverkite/silverkite/internal/session"
)

const compactionPrompt = `Summarize the conversation so far into a compact memory snapshot.
Extract only durable information, in exactly this markdown shape:

# Session Snapshot

## Active Goals
- ...

## Current Tasks
- ...

## Decisions
- ...

## Observations
- ...

## Constraints
- ...

Omit pleasantries and transient chatter. Keep each bullet short. If a
section has nothing, write "- (none)".`

// CompactResult reports the outcome of a compaction run.
type CompactResult struct {
	Success    bool   `json:"success"`
	SnapshotID string `json:"snapshotId,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CompactionEngine summarises a session's transcript into a memory
// snapshot and truncates the persisted history.
type CompactionEngine struct {
	agents    map[string]schema.AgentDefinition
	providers ProviderSource
	sessions  *session.Manager
	mem       *memory.Store
	log       *slog.Logger
}

func NewCompactionEngine(agents map[string]schema.AgentDefinition, providers ProviderSource, sessions *session.Manager, mem *memory.Store, log *slog.Logger) *CompactionEngine {
	return &CompactionEngine{
		agents:    agents,
		providers: providers,
		sessions:  sessions,
		mem:       mem,
		log:       log.With("component", "compaction"),
	}
}

// CompactSession summarises the chat's history into a snapshot, resets the
// session's token count, and replaces the history with one placeholder
// message. A session with nothing to compact yields Success=false, not an
// error; a failing summarization call propagates as an error.
func (e *CompactionEngine) CompactSession(ctx context.Context, agentID, chatID string) (CompactResult, error) {
	agent, ok := e.agents[agentID]
	if !ok {
		return CompactResult{}, fmt.Errorf("unknown agent %q", agentID)
	}
	sess, err := e.sessions.Get(chatID)
	if err != nil {
		return CompactResult{}, fmt.Errorf("load session: %w", err)
	}
	namespace := memory.SanitizeName(agent.ID)

	history, err := e.sessions.History(chatID)
	if err != nil {
		return CompactResult{}, fmt.Errorf("load history: %w", err)
	}

	transcript := schema.NewMessages()
	if history.Len() > 0 {
		transcript.Append(history)
	} else {
		// Empty history: a prior snapshot can seed a re-summarization pass.
		_, prior, snapErr := e.mem.LatestSnapshot(ctx, namespace, chatID)
		switch {
		case snapErr == nil:
			transcript.AddSystem(prior)
		case errors.Is(snapErr, memory.ErrNotFound) && sess.LastSnapshotID != "":
			return CompactResult{Success: false, Message: "already compacted"}, nil
		case errors.Is(snapErr, memory.ErrNotFound) && sess.TotalTokens > 0:
			return CompactResult{Success: false, Message: "history expired, start a new session"}, nil
		case errors.Is(snapErr, memory.ErrNotFound):
			return CompactResult{Success: false, Message: "nothing to compact"}, nil
		default:
			return CompactResult{}, snapErr
		}
	}

	snapshotID, err := e.generateSnapshot(ctx, agent, namespace, chatID, transcript)
	if err != nil {
		return CompactResult{}, err
	}

	tokens := 0
	if err := e.sessions.Update(chatID, session.Patch{
		LastSnapshotID: &snapshotID,
		TotalTokens:    &tokens,
	}); err != nil {
		return CompactResult{}, fmt.Errorf("update session: %w", err)
	}

	now := time.Now().UTC()
	placeholder := fmt.Sprintf("[Conversation compacted at %s. Earlier messages were summarized into the session snapshot.]", now.Format(time.RFC3339))
	if err := e.sessions.ReplaceHistory(chatID, []schema.Message{
		schema.NewAssistantMessage(&placeholder, nil),
	}); err != nil {
		return CompactResult{}, fmt.Errorf("replace history: %w", err)
	}

	e.log.Info("session compacted", "chatId", chatID, "snapshot", snapshotID)
	return CompactResult{Success: true, SnapshotID: snapshotID}, nil
}

// generateSnapshot issues one summarization LLM call and persists the
// result as a snapshot file, also appending to the running index.
func (e *CompactionEngine) generateSnapshot(ctx context.Context, agent schema.AgentDefinition, namespace, chatID string, transcript schema.Messages) (string, error) {
	provider, err := e.providers.Get(agent.Provider)
	if err != nil {
		return "", fmt.Errorf("resolve provider: %w", err)
	}

	msgs := schema.NewMessages(schema.NewSystemMessage(compactionPrompt))
	msgs.Append(transcript)
	msgs.AddUser("Produce the session snapshot now.")

	resp, err := provider.Chat(ctx, msgs, nil, schema.ChatOptions{
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("summarization call: %w", err)
	}
	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", fmt.Errorf("summarization call returned no content")
	}

	filename := time.Now().UTC().Format("20060102-150405") + ".md"
	snapNS := memory.SnapshotNamespace(namespace, chatID)
	if err := e.mem.Write(ctx, snapNS, filename, content); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	indexLine := fmt.Sprintf("%s %s %s", time.Now().UTC().Format(time.RFC3339), chatID, filename)
	if err := e.mem.Append(ctx, memory.SnapshotIndexNamespace(namespace), "index", indexLine); err != nil {
		return "", fmt.Errorf("update snapshot index: %w", err)
	}
	return filename, nil
}
