package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dnsops/zonebot/internal/httpkit"
)

const defaultAPIURL = "https://slack.com/api"

// reconnectBaseDelay is the initial wait before re-dialing after a
// connection loss; it doubles per failure up to reconnectMaxDelay.
const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// deliverTimeout bounds how long deliver blocks on a full message
// buffer before dropping. Envelopes are acked before delivery, so a
// drop here means losing the event for good; waiting out a slow
// consumer is preferable.
const deliverTimeout = 5 * time.Second

// SocketClient maintains a Socket Mode connection to Slack and
// delivers inbound events on a channel. It acknowledges every
// envelope immediately so slow downstream handling never triggers
// Slack-side redelivery.
type SocketClient struct {
	appToken string
	apiURL   string
	http     *http.Client
	dialer   *websocket.Dialer
	messages chan Message
	logger   *slog.Logger
}

// SocketOption adjusts SocketClient construction.
type SocketOption func(*SocketClient)

// WithAPIURL overrides the Slack API base URL. Used by tests.
func WithAPIURL(u string) SocketOption {
	return func(c *SocketClient) { c.apiURL = strings.TrimRight(u, "/") }
}

// NewSocketClient creates a Socket Mode client authenticated with an
// app-level token (xapp-...).
func NewSocketClient(appToken string, logger *slog.Logger, opts ...SocketOption) *SocketClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &SocketClient{
		appToken: appToken,
		apiURL:   defaultAPIURL,
		http:     httpkit.NewClient(httpkit.WithLogger(logger)),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		messages: make(chan Message, 100),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Messages returns the channel of inbound events.
func (c *SocketClient) Messages() <-chan Message {
	return c.messages
}

// Run connects and processes envelopes until ctx is cancelled,
// re-dialing with backoff after connection loss or a Slack-initiated
// disconnect. It closes the messages channel on return.
func (c *SocketClient) Run(ctx context.Context) error {
	defer close(c.messages)

	delay := reconnectBaseDelay
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("socket mode connect failed",
				"error", err,
				"retry_in", delay,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}
		delay = reconnectBaseDelay

		err = c.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Info("socket mode connection ended, reconnecting", "reason", err)
	}
}

// connect requests a WebSocket URL from apps.connections.open and
// dials it.
func (c *SocketClient) connect(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := c.openConnection(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("dialing socket mode endpoint", "url", wsURL)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			httpkit.DrainAndClose(resp.Body, 4096)
		}
		return nil, fmt.Errorf("dial socket mode: %w", err)
	}

	c.logger.Info("socket mode connected")
	return conn, nil
}

// openConnection calls apps.connections.open with the app token.
func (c *SocketClient) openConnection(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.appToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("apps.connections.open: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var open struct {
		OK    bool   `json:"ok"`
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		return "", fmt.Errorf("decode apps.connections.open: %w", err)
	}
	if !open.OK {
		return "", fmt.Errorf("apps.connections.open: %s", open.Error)
	}
	if _, err := url.Parse(open.URL); err != nil {
		return "", fmt.Errorf("bad socket mode URL %q: %w", open.URL, err)
	}
	return open.URL, nil
}

// readLoop processes envelopes from one connection until it drops,
// Slack asks for a reconnect, or ctx is cancelled. The returned error
// describes why the loop ended.
func (c *SocketClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadJSON when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var writeMu sync.Mutex

	for {
		var env socketEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("connection closed")
			}
			return fmt.Errorf("read envelope: %w", err)
		}

		// Ack before any processing.
		if env.EnvelopeID != "" {
			writeMu.Lock()
			err := conn.WriteJSON(socketAck{EnvelopeID: env.EnvelopeID})
			writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("ack envelope: %w", err)
			}
		}

		switch env.Type {
		case "hello":
			c.logger.Debug("socket mode hello received")

		case "disconnect":
			// Slack rotates connections periodically; this is routine.
			return fmt.Errorf("server disconnect: %s", env.Reason)

		case "events_api":
			c.handleEventsAPI(env.Payload)

		case "slash_commands":
			c.handleSlashCommand(env.Payload)

		default:
			c.logger.Debug("socket mode envelope ignored", "type", env.Type)
		}
	}
}

func (c *SocketClient) handleEventsAPI(payload json.RawMessage) {
	var p eventsAPIPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("bad events_api payload", "error", err)
		return
	}

	ev := p.Event
	if ev.Type != TypeAppMention && ev.Type != TypeMessage {
		c.logger.Debug("events_api event ignored", "event_type", ev.Type)
		return
	}
	// Bot posts and message edits/joins arrive as message events with
	// bot_id or a subtype; answering them would loop.
	if ev.BotID != "" || ev.Subtype != "" {
		return
	}

	c.deliver(Message{
		Type:    ev.Type,
		Channel: ev.Channel,
		UserID:  ev.User,
		Text:    ev.Text,
	})
}

func (c *SocketClient) handleSlashCommand(payload json.RawMessage) {
	var p slashCommandPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("bad slash_commands payload", "error", err)
		return
	}

	c.deliver(Message{
		Type:    TypeSlashCommand,
		Channel: p.ChannelID,
		UserID:  p.UserID,
		Text:    p.Text,
		Command: p.Command,
	})
}

func (c *SocketClient) deliver(msg Message) {
	select {
	case c.messages <- msg:
		return
	default:
	}

	// Buffer full. Block for a bounded time rather than dropping an
	// already-acked envelope the instant the consumer falls behind.
	timer := time.NewTimer(deliverTimeout)
	defer timer.Stop()
	select {
	case c.messages <- msg:
	case <-timer.C:
		c.logger.Warn("message channel full, dropping event",
			"type", msg.Type,
			"channel", msg.Channel,
		)
	}
}
