// Package slack connects zonebot to Slack: a Socket Mode client for
// inbound events, a small Web API client for outbound replies, and a
// bridge that routes between them and the gateway.
package slack

import "encoding/json"

// Message kinds delivered by the Socket Mode client.
const (
	TypeAppMention   = "app_mention"
	TypeMessage      = "message"
	TypeSlashCommand = "slash_command"
)

// Message is one inbound chat event, flattened out of its Socket Mode
// envelope.
type Message struct {
	Type    string // TypeAppMention, TypeMessage, or TypeSlashCommand
	Channel string
	UserID  string
	Text    string
	Command string // slash command name including the leading '/'
}

// socketEnvelope is one Socket Mode frame. Every envelope that carries
// an envelope_id must be acknowledged promptly or Slack redelivers it.
type socketEnvelope struct {
	Type       string          `json:"type"`
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload"`
	Reason     string          `json:"reason,omitempty"`
}

// socketAck acknowledges receipt of an envelope.
type socketAck struct {
	EnvelopeID string `json:"envelope_id"`
}

// eventsAPIPayload is the payload of an events_api envelope. Only the
// fields the bridge consumes are decoded.
type eventsAPIPayload struct {
	Event struct {
		Type    string `json:"type"`
		User    string `json:"user"`
		BotID   string `json:"bot_id"`
		Text    string `json:"text"`
		Channel string `json:"channel"`
		Subtype string `json:"subtype"`
	} `json:"event"`
}

// slashCommandPayload is the payload of a slash_commands envelope.
type slashCommandPayload struct {
	Command   string `json:"command"`
	Text      string `json:"text"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}
