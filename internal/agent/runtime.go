// Package agent implements the conversation loop: a bounded, cancellable
// tool-calling loop over an LLM provider, with windowed history, persistent
// memory and automatic context compaction.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/silverkite/silverkite/internal/bus"
	"github.com/silverkite/silverkite/internal/memory"
	"github.com/silverkite/silverkite/internal/schema"
	"github.com/silverkite/silverkite/internal/session"
	"github.com/silverkite/silverkite/internal/tools"
)

// ErrAborted is returned when a turn is cancelled. It propagates to the
// caller unmodified and is never retried.
var ErrAborted = errors.New("operation aborted")

// compactionThreshold is the totalTokens / contextWindow ratio above which
// a session is compacted at the end of a turn.
const compactionThreshold = 0.5

const finalAnswerInstruction = "You have used all available tool iterations. Provide your final answer to the user now, based on the information you already have. Do not request any more tool calls."

const errorNudge = "The last tool call failed; the result above is a structured error report. Explain the problem to the user in friendly prose and suggest what to do next. Never show them raw error JSON."

// ProviderSource resolves provider clients and model metadata.
type ProviderSource interface {
	Get(key string) (schema.LLMProvider, error)
	ContextLength(model, providerKey string) int
}

// Incoming is one user message entering the loop.
type Incoming struct {
	Content  string
	SenderID string
	ChatID   string // empty mints a fresh chat
}

// Result is the loop's reply.
type Result struct {
	Text   string
	Usage  map[string]int
	ChatID string
}

// Runtime drives conversations for a set of configured agents.
type Runtime struct {
	agents    map[string]schema.AgentDefinition
	providers ProviderSource
	sessions  *session.Manager
	mem       *memory.Store
	registry  *tools.Registry
	prompts   *PromptAssembler
	compactor *CompactionEngine
	locks     *chatLocks
	log       *slog.Logger
}

func NewRuntime(
	agents map[string]schema.AgentDefinition,
	providers ProviderSource,
	sessions *session.Manager,
	mem *memory.Store,
	registry *tools.Registry,
	prompts *PromptAssembler,
	compactor *CompactionEngine,
	log *slog.Logger,
) *Runtime {
	return &Runtime{
		agents:    agents,
		providers: providers,
		sessions:  sessions,
		mem:       mem,
		registry:  registry,
		prompts:   prompts,
		compactor: compactor,
		locks:     newChatLocks(),
		log:       log.With("component", "agent"),
	}
}

// Agents returns the configured agent definitions.
func (r *Runtime) Agents() map[string]schema.AgentDefinition { return r.agents }

// ProcessMessage runs one full turn for an agent. Cancelling ctx aborts the
// turn with ErrAborted, checked at the top of every iteration and before
// every tool dispatch. Turns for the same chat run strictly one at a time.
func (r *Runtime) ProcessMessage(ctx context.Context, agentID string, in Incoming) (Result, error) {
	agent, ok := r.agents[agentID]
	if !ok {
		return Result{}, fmt.Errorf("unknown agent %q", agentID)
	}

	chatID := in.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	unlock := r.locks.acquire(chatID)
	defer unlock()

	res, err := r.runTurn(ctx, agent, chatID, in)
	if err != nil && !strings.Contains(err.Error(), "aborted") {
		r.log.Error("turn failed", "agent", agentID, "chatId", chatID, "err", err)
	}
	return res, err
}

func (r *Runtime) runTurn(ctx context.Context, agent schema.AgentDefinition, chatID string, in Incoming) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, ErrAborted
	}

	namespace := memory.SanitizeName(agent.ID)
	if err := r.mem.EnsureBootstrap(ctx, namespace); err != nil {
		return Result{}, fmt.Errorf("bootstrap memory: %w", err)
	}
	if _, err := r.sessions.GetOrCreate(agent.ID, chatID); err != nil {
		return Result{}, fmt.Errorf("open session: %w", err)
	}

	provider, err := r.providers.Get(agent.Provider)
	if err != nil {
		return Result{}, err
	}
	contextWindow := r.providers.ContextLength(agent.Model, agent.Provider)

	systemPrompt, err := r.prompts.BuildSystemPrompt(ctx, agent, namespace, chatID)
	if err != nil {
		return Result{}, err
	}
	history, err := r.sessions.History(chatID)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	conversation := schema.NewMessages(schema.NewSystemMessage(systemPrompt))
	conversation.Append(history)
	conversation.AddUser(in.Content)

	// Only messages produced during this turn are persisted at the end.
	newMsgs := []schema.Message{schema.NewUserMessage(in.Content)}
	appendMsg := func(m schema.Message) {
		conversation.Add(m)
		newMsgs = append(newMsgs, m)
	}

	turnCtx := tools.WithTurn(ctx, tools.TurnContext{
		AgentID:   agent.ID,
		Namespace: namespace,
		ChatID:    chatID,
	})

	opts := schema.ChatOptions{
		Model:       agent.Model,
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
	}

	var (
		finalText string
		lastUsage map[string]int
	)

	maxIterations := agent.MaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if ctx.Err() != nil {
			return Result{}, ErrAborted
		}

		lastChance := iteration == maxIterations
		var defs []map[string]any
		request := conversation.Clone()
		if lastChance {
			request.AddSystem(finalAnswerInstruction)
		} else {
			defs = r.registry.Definitions()
		}

		resp, err := provider.Chat(ctx, request, defs, opts)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ErrAborted
			}
			return Result{}, fmt.Errorf("llm call (iteration %d): %w", iteration, err)
		}
		if resp.Usage != nil {
			lastUsage = resp.Usage
		}

		if resp.HasToolCalls() && !lastChance {
			appendMsg(schema.NewAssistantMessage(resp.Content, toToolCalls(resp.ToolCalls)))

			for _, call := range resp.ToolCalls {
				if ctx.Err() != nil {
					return Result{}, ErrAborted
				}
				result := r.registry.Execute(turnCtx, call.Name, call.Arguments)
				appendMsg(schema.NewToolResultMessage(call.ID, call.Name, result))
				if _, isEnvelope := tools.ParseEnvelope(result); isEnvelope {
					appendMsg(schema.NewSystemMessage(errorNudge))
				}
			}
			continue
		}

		finalText = resp.Text()
		appendMsg(schema.NewAssistantMessage(resp.Content, nil))
		break
	}

	if lastUsage != nil {
		total := lastUsage["total_tokens"]
		if err := r.sessions.Update(chatID, session.Patch{TotalTokens: &total}); err != nil {
			return Result{}, fmt.Errorf("update session tokens: %w", err)
		}
		if contextWindow > 0 && float64(total)/float64(contextWindow) > compactionThreshold {
			if _, err := r.compactor.CompactSession(ctx, agent.ID, chatID); err != nil {
				return Result{}, fmt.Errorf("compact session: %w", err)
			}
		}
	}

	if err := r.sessions.AppendHistory(chatID, newMsgs); err != nil {
		return Result{}, fmt.Errorf("persist history: %w", err)
	}

	return Result{Text: finalText, Usage: lastUsage, ChatID: chatID}, nil
}

func toToolCalls(reqs []schema.ToolCallRequest) []schema.ToolCall {
	out := make([]schema.ToolCall, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, schema.ToolCall{ID: req.ID, Name: req.Name, Arguments: req.Arguments})
	}
	return out
}

// Run consumes inbound bus messages and publishes agent replies until ctx
// is cancelled. Each message is processed in its own goroutine; per-chat
// serialisation still holds through the chat locks.
func (r *Runtime) Run(ctx context.Context, b bus.Bus, defaultAgent string) error {
	for {
		select {
		case msg := <-b.InboundChan():
			go func(msg bus.InboundMessage) {
				chatID := string(msg.Channel) + ":" + msg.ChatID
				res, err := r.ProcessMessage(ctx, defaultAgent, Incoming{
					Content:  msg.Content,
					SenderID: msg.SenderID,
					ChatID:   chatID,
				})
				if err != nil {
					if errors.Is(err, ErrAborted) {
						return
					}
					b.PublishOutbound(bus.OutboundMessage{
						Channel: msg.Channel,
						ChatID:  msg.ChatID,
						Content: "Something went wrong handling that message.",
					})
					return
				}
				if res.Text != "" {
					b.PublishOutbound(bus.OutboundMessage{
						Channel: msg.Channel,
						ChatID:  msg.ChatID,
						Content: res.Text,
					})
				}
			}(msg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
