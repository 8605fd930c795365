// Package config defines the silverkite configuration schema and loads it
// from ~/.silverkite/config.json. Agent manifests are separate YAML files
// under the workspace.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/silverkite/silverkite/internal/schema"
)

// Config is the root configuration.
type Config struct {
	Workspace    string                    `json:"workspace"`
	DefaultAgent string                    `json:"defaultAgent"`
	Store        StoreConfig               `json:"store"`
	Agents       AgentsConfig              `json:"agents"`
	Providers    map[string]ProviderConfig `json:"providers"`
	Channels     ChannelsConfig            `json:"channels"`
	Tools        ToolsConfig               `json:"tools"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type AgentsConfig struct {
	Defaults schema.AgentDefaults `json:"defaults"`
}

type ProviderConfig struct {
	APIKey         string         `json:"apiKey"`
	APIBase        string         `json:"apiBase,omitempty"`
	ContextLengths map[string]int `json:"contextLengths,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Slack    SlackConfig    `json:"slack"`
	Bridge   BridgeConfig   `json:"bridge"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type SlackConfig struct {
	Enabled   bool     `json:"enabled"`
	BotToken  string   `json:"botToken"`
	AppToken  string   `json:"appToken"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type BridgeConfig struct {
	Enabled   bool     `json:"enabled"`
	URL       string   `json:"url"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type ToolsConfig struct {
	Web WebToolsConfig `json:"web"`
}

type WebToolsConfig struct {
	SearchAPIKey string `json:"searchApiKey,omitempty"`
	MaxResults   int    `json:"maxResults,omitempty"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Workspace:    "~/.silverkite/workspace",
		DefaultAgent: "assistant",
		Store: StoreConfig{
			Path: "~/.silverkite/silverkite.db",
		},
		Agents: AgentsConfig{
			Defaults: schema.AgentDefaults{
				Provider:      "openai",
				Model:         "gpt-4o-mini",
				Temperature:   0.7,
				MaxTokens:     4096,
				MaxIterations: 20,
			},
		},
		Providers: map[string]ProviderConfig{},
	}
}

// ConfigPath returns the config file path, honouring SILVERKITE_CONFIG.
func ConfigPath() string {
	if p := os.Getenv("SILVERKITE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns ~/.silverkite.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".silverkite"
	}
	return filepath.Join(home, ".silverkite")
}

// WorkspacePath expands ~ in the configured workspace path.
func (c *Config) WorkspacePath() string {
	return expandHome(c.Workspace)
}

// StorePath expands ~ in the configured store path.
func (c *Config) StorePath() string {
	return expandHome(c.Store.Path)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
		}
	}
	return p
}
