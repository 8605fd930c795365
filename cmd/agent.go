package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/silverkite/silverkite/internal/agent"
	"github.com/silverkite/silverkite/internal/config"
	"github.com/silverkite/silverkite/internal/dependency"
)

var (
	agentMessage string
	agentChat    string
	agentName    string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with an agent",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")
	agentCmd.Flags().StringVarP(&agentChat, "chat", "c", "cli:direct", "Chat ID")
	agentCmd.Flags().StringVarP(&agentName, "agent", "a", "", "Agent ID (default from config)")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runAgent(_ *cobra.Command, _ []string) error {
	cfg := config.Load(config.ConfigPath())

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	agentID := agentName
	if agentID == "" {
		agentID = cfg.DefaultAgent
	}
	runtime := container.Runtime()

	if agentMessage != "" {
		return runSingleMessage(runtime, agentID)
	}
	return runInteractive(runtime, agentID)
}

// runSingleMessage sends one message to the agent and prints the response.
// Ctrl+C aborts the in-flight turn.
func runSingleMessage(runtime *agent.Runtime, agentID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	res, err := runtime.ProcessMessage(ctx, agentID, agent.Incoming{
		Content: agentMessage,
		ChatID:  agentChat,
	})
	if errors.Is(err, agent.ErrAborted) {
		fmt.Fprintln(os.Stderr, "aborted")
		return nil
	}
	if err != nil {
		return err
	}
	printResponse(res.Text)
	return nil
}

// runInteractive starts the REPL loop: reads lines from stdin and runs one
// turn per line.
func runInteractive(runtime *agent.Runtime, agentID string) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		res, err := runtime.ProcessMessage(ctx, agentID, agent.Incoming{
			Content: line,
			ChatID:  agentChat,
		})
		stop()

		switch {
		case errors.Is(err, agent.ErrAborted):
			fmt.Println("\n(turn aborted)")
		case err != nil:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		case res.Text != "":
			printResponse(res.Text)
		}
	}
}

func printResponse(text string) {
	fmt.Printf("\n%s silverkite\n%s\n\n", logo, text)
}
