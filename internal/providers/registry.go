package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/silverkite/silverkite/internal/schema"
)

// Settings configures one provider endpoint.
type Settings struct {
	APIKey         string
	APIBase        string
	ContextLengths map[string]int // per-model overrides
}

// defaultContextLength is used when neither the config nor the model
// catalog knows the model.
const defaultContextLength = 128000

// modelContextPrefixes maps model name prefixes to their context window.
// Checked longest-prefix-first.
var modelContextPrefixes = map[string]int{
	"gpt-4o":   128000,
	"gpt-4.1":  1000000,
	"o3":       200000,
	"claude":   200000,
	"deepseek": 65536,
	"qwen":     131072,
	"kimi":     262144,
	"gemini":   1000000,
	"llama":    131072,
}

// Registry creates and caches provider clients from configuration.
type Registry struct {
	settings map[string]Settings

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates a Registry over the configured providers.
func NewRegistry(settings map[string]Settings) *Registry {
	return &Registry{
		settings: settings,
		clients:  map[string]*Client{},
	}
}

// Get returns the provider client for the given key, creating it on first
// use.
func (r *Registry) Get(key string) (schema.LLMProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	s, ok := r.settings[key]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured (have: %s)", key, strings.Join(r.keys(), ", "))
	}
	if s.APIKey == "" {
		return nil, fmt.Errorf("provider %q has no API key", key)
	}
	c := NewClient(s.APIKey, s.APIBase)
	r.clients[key] = c
	return c, nil
}

// ContextLength returns the context window for a model. Config overrides
// win over the built-in catalog; unknown models get a conservative default.
func (r *Registry) ContextLength(model, providerKey string) int {
	if s, ok := r.settings[providerKey]; ok {
		if n, ok := s.ContextLengths[model]; ok && n > 0 {
			return n
		}
	}

	lower := strings.ToLower(model)
	bestLen, best := 0, 0
	for prefix, window := range modelContextPrefixes {
		if strings.HasPrefix(lower, prefix) && len(prefix) > bestLen {
			bestLen, best = len(prefix), window
		}
	}
	if best > 0 {
		return best
	}
	return defaultContextLength
}

func (r *Registry) keys() []string {
	out := make([]string, 0, len(r.settings))
	for k := range r.settings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
