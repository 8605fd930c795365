package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/silverkite/silverkite/internal/schema"
)

// builtinAgent is used when the workspace defines no agents at all.
var builtinAgent = schema.AgentDefinition{
	ID:           "assistant",
	Name:         "Assistant",
	SystemPrompt: "You are a helpful personal assistant.",
}

// LoadAgents reads agent manifests from workspace/agents/*.yaml, applies
// the configured defaults, and returns them keyed by id. When no manifests
// exist a single builtin assistant is returned so the runtime always has
// an agent to route to.
func LoadAgents(workspace string, defaults schema.AgentDefaults) (map[string]schema.AgentDefinition, error) {
	dir := filepath.Join(workspace, "agents")
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	more, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	paths = append(paths, more...)

	agents := map[string]schema.AgentDefinition{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read agent manifest %s: %w", path, err)
		}
		var def schema.AgentDefinition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse agent manifest %s: %w", path, err)
		}
		if def.ID == "" {
			base := filepath.Base(path)
			def.ID = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
		}
		def.ApplyDefaults(defaults)
		if _, dup := agents[def.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q in %s", def.ID, path)
		}
		agents[def.ID] = def
	}

	if len(agents) == 0 {
		def := builtinAgent
		def.ApplyDefaults(defaults)
		agents[def.ID] = def
	}
	return agents, nil
}
