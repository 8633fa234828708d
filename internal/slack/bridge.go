package slack

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dnsops/zonebot/internal/gateway"
)

// Router abstracts the gateway for testability. The real
// implementation is *gateway.Gateway.
type Router interface {
	Route(ctx context.Context, ev gateway.Event) (string, error)
}

// MessageSource delivers inbound events. The real implementation is
// *SocketClient.
type MessageSource interface {
	Messages() <-chan Message
}

// Poster sends replies back to a channel. The real implementation is
// *WebClient.
type Poster interface {
	PostMessage(ctx context.Context, channel, text string) error
}

// handleTimeout bounds how long one inbound event may be processed
// (provider fetches + assistant run + reply post). It sits above the
// assistant run timeout so the session layer times out first with a
// better error.
const handleTimeout = 5 * time.Minute

// mentionPattern matches Slack's encoded user mentions, e.g. <@U12345>.
var mentionPattern = regexp.MustCompile(`<@[UW][A-Z0-9]+>`)

// BridgeConfig holds the dependencies for a Bridge.
type BridgeConfig struct {
	Source MessageSource
	Poster Poster
	Router Router
	// BotUserID filters out the bot's own messages. Resolved via
	// WebClient.AuthTest at startup.
	BotUserID string
	Logger    *slog.Logger
}

// Bridge consumes inbound Slack events, routes them through the
// gateway, and posts replies. Each event is handled on its own
// goroutine; per-channel serialization happens in the assistant
// session layer, so unrelated channels never wait on each other.
type Bridge struct {
	source    MessageSource
	poster    Poster
	router    Router
	botUserID string
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewBridge creates a Slack event bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		source:    cfg.Source,
		poster:    cfg.Poster,
		router:    cfg.Router,
		botUserID: cfg.BotUserID,
		logger:    logger,
	}
}

// Start consumes events until ctx is cancelled or the source channel
// closes, then waits for in-flight handlers to finish.
func (b *Bridge) Start(ctx context.Context) {
	b.logger.Info("slack bridge started")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("slack bridge shutting down")
			return
		case msg, ok := <-b.source.Messages():
			if !ok {
				b.logger.Info("slack message channel closed, bridge stopping")
				return
			}

			if msg.Channel == "" {
				b.logger.Debug("slack ignoring event with empty channel")
				continue
			}
			if b.botUserID != "" && msg.UserID == b.botUserID {
				continue
			}

			b.wg.Add(1)
			go func(msg Message) {
				defer b.wg.Done()
				b.handle(ctx, msg)
			}(msg)
		}
	}
}

// handle processes a single inbound event end to end.
func (b *Bridge) handle(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	ev := toEvent(msg)

	b.logger.Info("slack event received",
		"type", msg.Type,
		"channel", msg.Channel,
		"user", msg.UserID,
		"command", msg.Command,
	)

	reply, err := b.router.Route(ctx, ev)
	if err != nil {
		// Route already mapped the failure to a user-facing reply;
		// the error is recorded here and the reply still goes out.
		b.logger.Error("slack event handling failed",
			"type", msg.Type,
			"channel", msg.Channel,
			"error", err,
		)
	}
	if reply == "" {
		return
	}

	if err := b.poster.PostMessage(ctx, msg.Channel, ToMrkdwn(reply)); err != nil {
		b.logger.Error("slack reply post failed",
			"channel", msg.Channel,
			"error", err,
		)
		return
	}

	b.logger.Info("slack reply sent",
		"channel", msg.Channel,
		"reply_len", len(reply),
	)
}

// toEvent maps an inbound Slack message onto a gateway event,
// stripping the encoded mention syntax from the text.
func toEvent(msg Message) gateway.Event {
	ev := gateway.Event{
		Channel: msg.Channel,
		UserID:  msg.UserID,
		Text:    stripMentions(msg.Text),
	}
	switch msg.Type {
	case TypeSlashCommand:
		ev.Kind = gateway.KindCommand
		ev.Command = msg.Command
	case TypeAppMention:
		ev.Kind = gateway.KindMention
	default:
		ev.Kind = gateway.KindMessage
	}
	return ev
}

// stripMentions removes encoded user mentions and collapses the
// surrounding whitespace.
func stripMentions(text string) string {
	s := mentionPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
