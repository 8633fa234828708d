package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dnsops/zonebot/internal/httpkit"
)

// WebClient is a minimal Slack Web API client covering the calls
// zonebot makes: posting replies and identifying itself.
type WebClient struct {
	botToken string
	apiURL   string
	http     *http.Client
	logger   *slog.Logger
}

// WebOption adjusts WebClient construction.
type WebOption func(*WebClient)

// WithWebAPIURL overrides the Slack API base URL. Used by tests.
func WithWebAPIURL(u string) WebOption {
	return func(c *WebClient) { c.apiURL = strings.TrimRight(u, "/") }
}

// NewWebClient creates a Web API client authenticated with a bot
// token (xoxb-...).
func NewWebClient(botToken string, logger *slog.Logger, opts ...WebOption) *WebClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &WebClient{
		botToken: botToken,
		apiURL:   defaultAPIURL,
		http:     httpkit.NewClient(httpkit.WithLogger(logger)),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call posts a JSON body to a Web API method and decodes the response
// into out, which must embed the ok/error envelope fields.
func (c *WebClient) call(ctx context.Context, method string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode %s body: %w", method, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/"+method, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.botToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// PostMessage posts text to a channel as the bot.
func (c *WebClient) PostMessage(ctx context.Context, channel, text string) error {
	body := map[string]string{
		"channel": channel,
		"text":    text,
	}
	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, "chat.postMessage", body, &out); err != nil {
		return err
	}
	if !out.OK {
		return fmt.Errorf("chat.postMessage: %s", out.Error)
	}
	return nil
}

// AuthTest returns the bot's own user id, used by the bridge to strip
// self-mentions from inbound text.
func (c *WebClient) AuthTest(ctx context.Context) (string, error) {
	var out struct {
		OK     bool   `json:"ok"`
		Error  string `json:"error"`
		UserID string `json:"user_id"`
	}
	if err := c.call(ctx, "auth.test", nil, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", fmt.Errorf("auth.test: %s", out.Error)
	}
	return out.UserID, nil
}
