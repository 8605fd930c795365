package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/silverkite/silverkite/internal/agent"
	"github.com/silverkite/silverkite/internal/bus"
	"github.com/silverkite/silverkite/internal/config"
	"github.com/silverkite/silverkite/internal/cron"
	"github.com/silverkite/silverkite/internal/dependency"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the channels, the agent runtime and the scheduler",
	RunE:  runGateway,
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg := config.Load(config.ConfigPath())

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	fmt.Printf("%s Starting silverkite gateway...\n", logo)

	runtime := container.Runtime()
	b := container.MessageBus()
	cronSvc := container.CronService()

	// Wire cron jobs into agent turns.
	cronSvc.SetOnJob(func(ctx context.Context, job cron.Job) (string, error) {
		res, err := runtime.ProcessMessage(ctx, cfg.DefaultAgent, agent.Incoming{
			Content: job.Payload.Message,
			ChatID:  "cron:" + job.ID,
		})
		if err != nil {
			return "", err
		}
		if job.Payload.Deliver && job.Payload.Channel != nil && job.Payload.To != nil {
			b.PublishOutbound(bus.OutboundMessage{
				Channel: bus.ChannelType(*job.Payload.Channel),
				ChatID:  *job.Payload.To,
				Content: res.Text,
			})
		}
		return res.Text, nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channelMgr := container.Channels()
	if enabled := channelMgr.Enabled(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runtime.Run(gctx, b, cfg.DefaultAgent) })
	g.Go(func() error { return cronSvc.Start(gctx) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
