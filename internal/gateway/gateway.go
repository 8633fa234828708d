// Package gateway routes inbound chat events to the component that
// can answer them: slash commands to their command handlers, free-text
// DNS questions to the assistant session for the channel.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dnsops/zonebot/internal/assistant"
	"github.com/dnsops/zonebot/internal/health"
	"github.com/dnsops/zonebot/internal/ultradns"
)

// Kind distinguishes how an inbound event reached the bot.
type Kind int

const (
	// KindMention is a channel message that @-mentions the bot.
	KindMention Kind = iota
	// KindMessage is a plain channel message the bot can see.
	KindMessage
	// KindCommand is a slash command invocation.
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindMention:
		return "mention"
	case KindMessage:
		return "message"
	case KindCommand:
		return "command"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one inbound chat event, already stripped of connector
// framing (mention syntax, envelope metadata).
type Event struct {
	// ID is a per-event request id for log correlation. Route assigns
	// one if the connector did not.
	ID      string
	Channel string
	UserID  string
	// Text is the message body, or the slash command argument string.
	Text    string
	Command string // slash command name including the leading '/'
	Kind    Kind
}

// ErrUnsupportedCommand is returned for slash commands the gateway
// does not implement.
var ErrUnsupportedCommand = errors.New("unsupported command")

// ArgumentError reports a malformed slash command argument string.
// The usage line is surfaced to the user verbatim.
type ArgumentError struct {
	Command string
	Usage   string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: missing or empty zone list", e.Command)
}

// Conversationalist is the assistant session surface the gateway
// drives. The real implementation is *assistant.Manager.
type Conversationalist interface {
	Converse(ctx context.Context, channel, text string) (string, error)
	InjectAndConverse(ctx context.Context, channel, assistantID, payload, prompt string) (string, error)
}

// ZoneFetcher is the DNS provider surface the command handlers use.
// The real implementation is *ultradns.Client.
type ZoneFetcher interface {
	FetchZoneFiles(ctx context.Context, names []string) ([]ultradns.ZoneFetchResult, error)
	FetchHealthChecks(ctx context.Context, names []string) ([]ultradns.ZoneFetchResult, error)
	FetchSystemStatus(ctx context.Context) (string, error)
}

// HealthSource exposes the dependency monitor's snapshot. The real
// implementation is *health.Monitor.
type HealthSource interface {
	Checks() []health.Check
}

// Config holds the dependencies for a Gateway.
type Config struct {
	Sessions Conversationalist
	DNS      ZoneFetcher
	Registry *assistant.Registry
	// Health, when set, adds bot-side connectivity to the
	// /udns-system-status reply.
	Health HealthSource
	// Classifier decides whether a plain channel message looks like a
	// DNS question worth answering. Nil selects the built-in keyword
	// heuristic. Mentions and commands bypass it.
	Classifier Classifier
	Logger     *slog.Logger
}

// Gateway dispatches inbound events and guarantees that every failure
// collapses to a single-line user reply rather than escaping to the
// connector.
type Gateway struct {
	sessions   Conversationalist
	dns        ZoneFetcher
	registry   *assistant.Registry
	health     HealthSource
	classifier Classifier
	logger     *slog.Logger
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = keywordClassifier{}
	}
	return &Gateway{
		sessions:   cfg.Sessions,
		dns:        cfg.DNS,
		registry:   cfg.Registry,
		health:     cfg.Health,
		classifier: classifier,
		logger:     logger,
	}
}

// Route handles one inbound event. The returned string is the reply to
// post back to the channel; empty means the event was deliberately
// dropped. The returned error is for logging only — when it is
// non-nil the reply still carries the user-facing explanation.
func (g *Gateway) Route(ctx context.Context, ev Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	g.logger.Debug("gateway event received",
		"request_id", ev.ID,
		"channel", ev.Channel,
		"kind", ev.Kind.String(),
		"command", ev.Command,
	)

	reply, err := g.dispatch(ctx, ev)
	if err != nil {
		g.logger.Error("gateway event failed",
			"request_id", ev.ID,
			"channel", ev.Channel,
			"kind", ev.Kind.String(),
			"command", ev.Command,
			"error", err,
		)
		return replyForError(err), err
	}
	return reply, nil
}

func (g *Gateway) dispatch(ctx context.Context, ev Event) (string, error) {
	switch ev.Kind {
	case KindCommand:
		return g.runCommand(ctx, ev)

	case KindMention:
		if ev.Text == "" {
			return "Ask me a DNS question, or try /analyze-zone-file or /zone-health-check.", nil
		}
		return g.sessions.Converse(ctx, ev.Channel, ev.Text)

	case KindMessage:
		if !g.classifier.DNSRelated(ev.Text) {
			g.logger.Debug("gateway message not DNS related, dropping",
				"request_id", ev.ID,
				"channel", ev.Channel,
			)
			return "", nil
		}
		return g.sessions.Converse(ctx, ev.Channel, ev.Text)

	default:
		return "", fmt.Errorf("unknown event kind %d", int(ev.Kind))
	}
}

// replyForError maps internal failures to a single-line user reply.
func replyForError(err error) string {
	var argErr *ArgumentError
	var runErr *assistant.RunError
	var authErr *ultradns.AuthError

	switch {
	case errors.As(err, &argErr):
		return argErr.Usage
	case errors.Is(err, ErrUnsupportedCommand):
		return "I don't know that command. Try /analyze-zone-file, /zone-health-check, or /udns-system-status."
	case errors.Is(err, assistant.ErrBusy):
		return "I'm still working on the previous question in this channel — give me a moment and try again."
	case errors.As(err, &runErr):
		return "Sorry, I couldn't come up with an answer that time. Please try again."
	case errors.As(err, &authErr):
		return "I couldn't sign in to the DNS provider just now. Please try again later."
	default:
		return "Something went wrong while handling that. Please try again."
	}
}
