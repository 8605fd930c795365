package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/silverkite/silverkite/internal/bus"
	"github.com/silverkite/silverkite/internal/config"
)

// bridgeFrame is the JSON frame exchanged with an external bridge process
// over the websocket, in both directions.
type bridgeFrame struct {
	Type    string `json:"type"` // "message" inbound, "send" outbound
	Sender  string `json:"sender,omitempty"`
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// BridgeChannel connects to an external messaging bridge over a websocket.
// The bridge handles the platform protocol; this channel only speaks JSON
// frames, so one implementation serves any bridged platform.
type BridgeChannel struct {
	Base
	cfg config.BridgeConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewBridgeChannel(cfg config.BridgeConfig, b bus.Bus, log *slog.Logger) *BridgeChannel {
	return &BridgeChannel{
		Base: NewBase(bus.ChannelBridge, b, cfg.AllowFrom, log),
		cfg:  cfg,
	}
}

func (c *BridgeChannel) Start(ctx context.Context) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("bridge: url not configured")
	}

	backoff := time.Second
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("connection lost, reconnecting", "err", err, "backoff", backoff)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *BridgeChannel) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected", "url", c.cfg.URL)

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var frame bridgeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Type != "message" || frame.Content == "" {
			continue
		}
		c.HandleMessage(frame.Sender, frame.ChatID, frame.Content, nil)
	}
}

func (c *BridgeChannel) Send(msg bus.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("bridge: not connected")
	}
	frame := bridgeFrame{Type: "send", ChatID: msg.ChatID, Content: msg.Content}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
