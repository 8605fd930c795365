package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/silverkite/silverkite/internal/config"
	"github.com/silverkite/silverkite/internal/dependency"
)

var compactAgent string

var compactCmd = &cobra.Command{
	Use:   "compact <chat-id>",
	Short: "Summarize a session into a memory snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg := config.Load(config.ConfigPath())
		container, err := dependency.New(cfg)
		if err != nil {
			return err
		}
		defer container.Close()

		agentID := compactAgent
		if agentID == "" {
			agentID = cfg.DefaultAgent
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		res, err := container.Compactor().CompactSession(ctx, agentID, args[0])
		if err != nil {
			return err
		}
		if !res.Success {
			fmt.Printf("Nothing done: %s\n", res.Message)
			return nil
		}
		fmt.Printf("✓ Session compacted into snapshot %s\n", res.SnapshotID)
		return nil
	},
}

func init() {
	compactCmd.Flags().StringVarP(&compactAgent, "agent", "a", "", "Agent ID (default from config)")
}
