package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/silverkite/silverkite/internal/memory"
	"github.com/silverkite/silverkite/internal/schema"
	"github.com/silverkite/silverkite/internal/store"
)

const defaultPersona = "You are a helpful personal assistant."

const memoryInstructions = `## Memory

You have a persistent memory, exposed through the "memory" tool as markdown
files. Use it to remember things across conversations:
- Read a file before assuming what it contains.
- Write durable facts, decisions and preferences as you learn them; do not
  wait to be asked.
- Use "append" for logs and running lists, "write" to restructure a file.
- Use "search" when you are not sure where something was recorded.
Keep files short and factual. Never store secrets.`

// PromptAssembler builds the per-turn system prompt from global rules,
// memory context and the agent's persona.
type PromptAssembler struct {
	mem  *memory.Store
	docs *store.Store
}

func NewPromptAssembler(mem *memory.Store, docs *store.Store) *PromptAssembler {
	return &PromptAssembler{mem: mem, docs: docs}
}

// BuildSystemPrompt assembles the system prompt for one turn: global rules,
// then memory context, then persona, each followed by a blank line.
func (p *PromptAssembler) BuildSystemPrompt(ctx context.Context, agent schema.AgentDefinition, namespace, chatID string) (string, error) {
	var sections []string

	rules, err := p.globalRules(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve global rules: %w", err)
	}
	if rules != "" {
		sections = append(sections, rules)
	}

	mem, err := p.memoryContext(ctx, namespace, chatID)
	if err != nil {
		return "", fmt.Errorf("resolve memory context: %w", err)
	}
	sections = append(sections, mem)

	sections = append(sections, p.resolvePersona(ctx, agent))

	return strings.Join(sections, "\n\n") + "\n", nil
}

// resolvePersona returns the agent's persona text. The indirect form
// "markdown:<category>/<path>" fetches an external document; any resolution
// failure falls back to the default persona.
func (p *PromptAssembler) resolvePersona(ctx context.Context, agent schema.AgentDefinition) string {
	prompt := strings.TrimSpace(agent.SystemPrompt)
	if prompt == "" {
		return defaultPersona
	}
	ref, ok := strings.CutPrefix(prompt, "markdown:")
	if !ok {
		return prompt
	}

	category, path, found := strings.Cut(ref, "/")
	if !found || category == "" || path == "" {
		return defaultPersona
	}
	doc, err := p.docs.FindOne(ctx, "documents", store.Document{
		"category": category,
		"path":     path,
	})
	if err != nil {
		return defaultPersona
	}
	content, _ := doc["content"].(string)
	if strings.TrimSpace(content) == "" {
		return defaultPersona
	}
	return content
}

// globalRules concatenates all published always-on rules, separated by a
// horizontal rule, in document order.
func (p *PromptAssembler) globalRules(ctx context.Context) (string, error) {
	docs, err := p.docs.Find(ctx, "documents", store.Document{
		"category": "rules",
		"status":   "published",
	}, 0)
	if err != nil {
		return "", err
	}
	var rules []string
	for _, doc := range docs {
		content, _ := doc["content"].(string)
		if !strings.Contains(content, "trigger: always_on") {
			continue
		}
		rules = append(rules, strings.TrimSpace(content))
	}
	return strings.Join(rules, "\n\n---\n\n"), nil
}

// memoryContext describes the agent's memory to the model: root files,
// subfolders, the current chat's snapshot if one exists, and the fixed
// operating instructions.
func (p *PromptAssembler) memoryContext(ctx context.Context, namespace, chatID string) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Memory state\n\n")

	files, err := p.mem.List(ctx, namespace)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		sb.WriteString("No memory files yet.\n")
	} else {
		sb.WriteString("Files:\n")
		for _, f := range files {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", f.Filename, f.Title))
		}
	}

	subfolders, err := p.mem.Subfolders(ctx, namespace)
	if err != nil {
		return "", err
	}
	if len(subfolders) > 0 {
		sb.WriteString("Subfolders:\n")
		for _, s := range subfolders {
			sb.WriteString("- " + s + "\n")
		}
	}

	if _, snapshot, err := p.mem.LatestSnapshot(ctx, namespace, chatID); err == nil {
		sb.WriteString("\n## Current session snapshot\n\n")
		sb.WriteString(snapshot)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(memoryInstructions)
	return sb.String(), nil
}
