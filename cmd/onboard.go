package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/silverkite/silverkite/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and workspace",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("Config already exists at %s\n", cfgPath)
		fmt.Printf("Press Enter to refresh (keep existing values) or Ctrl+C to cancel: ")
		fmt.Scanln()
		existing := config.Load(cfgPath)
		if err := config.Save(cfgPath, existing); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	workspace := config.DefaultConfig().WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("✓ Workspace at %s\n", workspace)

	createAgentTemplate(workspace)

	fmt.Printf("\n%s silverkite is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add your API key to %s\n", cfgPath)
	fmt.Printf("  2. Chat: silverkite agent -m \"Hello!\"\n")
	fmt.Printf("  3. Go always-on: silverkite gateway\n")
	return nil
}

func createAgentTemplate(workspace string) {
	agentsDir := filepath.Join(workspace, "agents")
	_ = os.MkdirAll(agentsDir, 0o755)

	manifest := filepath.Join(agentsDir, "assistant.yaml")
	if _, err := os.Stat(manifest); os.IsNotExist(err) {
		_ = os.WriteFile(manifest, []byte(`id: assistant
name: Assistant
systemPrompt: |
  You are a helpful personal assistant. Be concise, accurate and friendly.
  Use your memory to remember durable facts about the user across chats.
# provider, model, temperature, maxTokens and maxIterations fall back to
# the defaults in config.json when omitted.
`), 0o644)
		fmt.Println("  Created agents/assistant.yaml")
	}
}
