package channels

import (
	"context"
	"log/slog"
	"sort"

	"github.com/silverkite/silverkite/internal/bus"
	"github.com/silverkite/silverkite/internal/config"
)

// Manager owns the enabled channels and routes outbound messages to them.
type Manager struct {
	channels map[bus.ChannelType]Channel
	b        bus.Bus
	log      *slog.Logger
}

// NewManager creates a Manager with every channel the config enables.
func NewManager(cfg *config.Config, b bus.Bus, log *slog.Logger) *Manager {
	m := &Manager{
		channels: map[bus.ChannelType]Channel{},
		b:        b,
		log:      log.With("component", "channels"),
	}

	if cfg.Channels.Telegram.Enabled {
		m.register(NewTelegramChannel(cfg.Channels.Telegram, b, log))
	}
	if cfg.Channels.Slack.Enabled {
		m.register(NewSlackChannel(cfg.Channels.Slack, b, log))
	}
	if cfg.Channels.Bridge.Enabled {
		m.register(NewBridgeChannel(cfg.Channels.Bridge, b, log))
	}
	return m
}

func (m *Manager) register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.log.Info("channel enabled", "name", string(ch.Name()))
}

// Enabled returns the enabled channel names, sorted.
func (m *Manager) Enabled() []string {
	out := make([]string, 0, len(m.channels))
	for name := range m.channels {
		out = append(out, string(name))
	}
	sort.Strings(out)
	return out
}

// Send routes one outbound message to its channel.
func (m *Manager) Send(msg bus.OutboundMessage) error {
	ch, ok := m.channels[msg.Channel]
	if !ok {
		m.log.Debug("no channel for outbound message", "channel", string(msg.Channel))
		return nil
	}
	return ch.Send(msg)
}

// StartAll starts every channel plus the outbound dispatcher and blocks
// until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	go m.dispatchOutbound(ctx)

	for name, ch := range m.channels {
		go func(n bus.ChannelType, c Channel) {
			m.log.Info("starting channel", "name", string(n))
			if err := c.Start(ctx); err != nil && ctx.Err() == nil {
				m.log.Error("channel exited", "name", string(n), "err", err)
			}
		}(name, ch)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.b.OutboundChan():
			if err := m.Send(msg); err != nil {
				m.log.Error("send failed", "channel", string(msg.Channel), "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
