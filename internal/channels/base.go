// Package channels provides chat-platform channel implementations.
package channels

import (
	"context"
	"log/slog"
	"strings"

	"github.com/silverkite/silverkite/internal/bus"
)

// Channel is one chat transport: it listens for platform messages, pushes
// them onto the bus, and delivers agent responses back out.
type Channel interface {
	Name() bus.ChannelType
	// Start blocks until ctx is cancelled.
	Start(ctx context.Context) error
	Send(msg bus.OutboundMessage) error
}

// Base holds the state and helpers shared by all channels.
type Base struct {
	name      bus.ChannelType
	b         bus.Bus
	allowFrom []string // empty = allow all
	log       *slog.Logger
}

func NewBase(name bus.ChannelType, b bus.Bus, allowFrom []string, log *slog.Logger) Base {
	return Base{
		name:      name,
		b:         b,
		allowFrom: allowFrom,
		log:       log.With("channel", string(name)),
	}
}

func (b *Base) Name() bus.ChannelType { return b.name }

// IsAllowed checks the sender against the allowlist. senderID may be
// "id|username" (Telegram); either part may match.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, allowed := range b.allowFrom {
		if allowed == senderID {
			return true
		}
	}
	if strings.Contains(senderID, "|") {
		for _, part := range strings.Split(senderID, "|") {
			if part == "" {
				continue
			}
			for _, allowed := range b.allowFrom {
				if allowed == part {
					return true
				}
			}
		}
	}
	return false
}

// HandleMessage verifies the sender and pushes an inbound message to the bus.
func (b *Base) HandleMessage(senderID, chatID, content string, metadata map[string]any) {
	if !b.IsAllowed(senderID) {
		b.log.Warn("access denied", "sender", senderID)
		return
	}
	b.b.PublishInbound(bus.InboundMessage{
		Channel:  b.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	})
}

// splitMessage splits content into chunks of at most maxLen, preferring
// newline breaks, then spaces, then a hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t")
	}
	return chunks
}
