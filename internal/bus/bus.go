// Package bus is the in-process contract between chat channels and the
// agent runtime.
package bus

// ChannelType names a message transport.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelBridge   ChannelType = "bridge"
	ChannelCLI      ChannelType = "cli"
	ChannelCron     ChannelType = "cron"
)

// InboundMessage travels from a channel to the agent runtime.
type InboundMessage struct {
	Channel  ChannelType
	SenderID string
	ChatID   string
	Content  string
	Metadata map[string]any
}

// OutboundMessage travels from the agent runtime back to a channel.
type OutboundMessage struct {
	Channel ChannelType
	ChatID  string
	Content string
}

// Bus carries messages between channels and the runtime. Both directions
// are buffered so a slow consumer does not block producers.
type Bus interface {
	PublishInbound(msg InboundMessage)
	PublishOutbound(msg OutboundMessage)
	InboundChan() <-chan InboundMessage
	OutboundChan() <-chan OutboundMessage
}

// MessageBus is the default Bus backed by buffered Go channels.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

func NewMessageBus(bufSize int) Bus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

func (b *MessageBus) PublishInbound(msg InboundMessage)   { b.inbound <- msg }
func (b *MessageBus) PublishOutbound(msg OutboundMessage) { b.outbound <- msg }

func (b *MessageBus) InboundChan() <-chan InboundMessage   { return b.inbound }
func (b *MessageBus) OutboundChan() <-chan OutboundMessage { return b.outbound }
