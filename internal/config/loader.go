package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Load reads the config file at path. A missing file yields the defaults;
// a malformed file logs a warning and yields the defaults rather than
// aborting startup.
func Load(path string) *Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg
	}
	if err != nil {
		slog.Warn("config unreadable, using defaults", "path", path, "err", err)
		return cfg
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		slog.Warn("config malformed, using defaults", "path", path, "err", err)
		return DefaultConfig()
	}
	return cfg
}

// Save writes the config as indented JSON with a trailing newline.
// The file is 0600 since it carries API keys.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
