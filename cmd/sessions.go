package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/silverkite/silverkite/internal/config"
	"github.com/silverkite/silverkite/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently active first",
	RunE: func(_ *cobra.Command, _ []string) error {
		mgr, err := sessionManager()
		if err != nil {
			return err
		}
		sessions, err := mgr.List()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		fmt.Printf("%-30s %-12s %-10s %-8s %-20s %s\n", "Chat", "Agent", "Status", "Tokens", "Updated", "Label")
		fmt.Println(strings.Repeat("-", 100))
		for _, s := range sessions {
			fmt.Printf("%-30s %-12s %-10s %-8d %-20s %s\n",
				truncStr(s.ChatID, 29), s.AgentID, s.Status, s.TotalTokens,
				s.UpdatedAt.Format(time.DateTime), s.Label)
		}
		return nil
	},
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <chat-id> <label>",
	Short: "Set a session's label",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		mgr, err := sessionManager()
		if err != nil {
			return err
		}
		res, err := mgr.Rename(args[0], args[1])
		if err != nil {
			return err
		}
		if !res.Success {
			fmt.Printf("Rename failed: %s\n", res.Message)
			return nil
		}
		fmt.Printf("✓ Session %s renamed to %q\n", args[0], res.Label)
		return nil
	},
}

func sessionManager() (*session.Manager, error) {
	cfg := config.Load(config.ConfigPath())
	return session.NewManager(cfg.WorkspacePath(), slog.Default())
}
