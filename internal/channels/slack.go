package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/silverkite/silverkite/internal/bus"
	"github.com/silverkite/silverkite/internal/config"
)

const slackMaxLen = 3900

// SlackChannel receives messages over Socket Mode.
type SlackChannel struct {
	Base
	cfg    config.SlackConfig
	api    *slack.Client
	client *socketmode.Client
	botID  string
}

func NewSlackChannel(cfg config.SlackConfig, b bus.Bus, log *slog.Logger) *SlackChannel {
	return &SlackChannel{
		Base: NewBase(bus.ChannelSlack, b, cfg.AllowFrom, log),
		cfg:  cfg,
	}
}

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		return fmt.Errorf("slack: botToken and appToken must be configured")
	}
	s.api = slack.New(s.cfg.BotToken, slack.OptionAppLevelToken(s.cfg.AppToken))

	auth, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	s.botID = auth.UserID
	s.log.Info("connected", "user", auth.User)

	s.client = socketmode.New(s.api)
	go func() {
		if err := s.client.RunContext(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("socket mode stopped", "err", err)
		}
	}()

	for {
		select {
		case evt, ok := <-s.client.Events:
			if !ok {
				return nil
			}
			s.handleEvent(evt)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *SlackChannel) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		s.client.Ack(*evt.Request)
	}

	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Ignore our own messages and edits.
	if msg.User == "" || msg.User == s.botID || msg.SubType != "" {
		return
	}
	if msg.Text == "" {
		return
	}

	s.HandleMessage(msg.User, msg.Channel, msg.Text, map[string]any{
		"thread_ts": msg.ThreadTimeStamp,
		"ts":        msg.TimeStamp,
	})
}

func (s *SlackChannel) Send(msg bus.OutboundMessage) error {
	if s.api == nil {
		return fmt.Errorf("slack: not running")
	}
	for _, chunk := range splitMessage(msg.Content, slackMaxLen) {
		if _, _, err := s.api.PostMessage(msg.ChatID, slack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("slack: post message: %w", err)
		}
	}
	return nil
}
