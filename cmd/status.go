package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/silverkite/silverkite/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show silverkite status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s silverkite Status\n\n", logo)

	cfgMark := "✗"
	if _, err := os.Stat(cfgPath); err == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg := config.Load(cfgPath)

	ws := cfg.WorkspacePath()
	wsMark := "✗"
	if _, err := os.Stat(ws); err == nil {
		wsMark = "✓"
	}
	fmt.Printf("Workspace: %s %s\n", ws, wsMark)

	dbMark := "✗"
	if _, err := os.Stat(cfg.StorePath()); err == nil {
		dbMark = "✓"
	}
	fmt.Printf("Store:     %s %s\n", cfg.StorePath(), dbMark)
	fmt.Printf("Agent:     %s (%s/%s)\n\n", cfg.DefaultAgent, cfg.Agents.Defaults.Provider, cfg.Agents.Defaults.Model)

	fmt.Println("Providers:")
	if len(cfg.Providers) == 0 {
		fmt.Println("  (none configured)")
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := cfg.Providers[name]
		mark := "(no API key)"
		if p.APIKey != "" {
			mark = "✓"
		}
		if p.APIBase != "" {
			fmt.Printf("  %-20s %s %s\n", name, mark, p.APIBase)
		} else {
			fmt.Printf("  %-20s %s\n", name, mark)
		}
	}

	fmt.Println("\nChannels:")
	channelLine := func(name string, enabled bool) {
		mark := "(disabled)"
		if enabled {
			mark = "✓"
		}
		fmt.Printf("  %-20s %s\n", name, mark)
	}
	channelLine("telegram", cfg.Channels.Telegram.Enabled)
	channelLine("slack", cfg.Channels.Slack.Enabled)
	channelLine("bridge", cfg.Channels.Bridge.Enabled)
	return nil
}
