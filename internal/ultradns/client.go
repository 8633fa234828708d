// Package ultradns is a client for the UltraDNS REST API. It covers
// the operations zonebot needs: zone-file export, zone health checks,
// and the public system-status feed.
//
// Authentication is handled internally. The client holds a cached
// bearer credential, checks its expiry before each request, and
// refreshes on demand, so callers never see token plumbing.
package ultradns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dnsops/zonebot/internal/httpkit"
)

// expiryMargin is subtracted from the token lifetime so a token is
// refreshed before it actually lapses mid-request.
const expiryMargin = 30 * time.Second

// AuthError reports a rejected credential. It short-circuits a whole
// fetch batch, since no zone can succeed without authentication.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ultradns auth failed (%d): %s", e.Status, e.Message)
}

// Config holds Client construction parameters.
type Config struct {
	BaseURL  string
	Username string
	Password string
	// TaskPollInterval is how often pending export and health-check
	// tasks are re-checked.
	TaskPollInterval time.Duration
	// TaskTimeout bounds a single task from submission to completion.
	TaskTimeout time.Duration
	// StatusURL is the public status feed, fetched without auth.
	StatusURL string
	Logger    *slog.Logger
}

// Client talks to the UltraDNS REST API.
type Client struct {
	baseURL      string
	username     string
	password     string
	statusURL    string
	pollInterval time.Duration
	taskTimeout  time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewClient creates an UltraDNS client. No network call is made until
// the first request needs a token.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TaskPollInterval <= 0 {
		cfg.TaskPollInterval = 10 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		statusURL:    cfg.StatusURL,
		pollInterval: cfg.TaskPollInterval,
		taskTimeout:  cfg.TaskTimeout,
		logger:       logger.With("component", "ultradns"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(1, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// tokenResponse is the body of POST /authorization/token. UltraDNS
// returns expiresIn as a string.
type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// token returns a valid access token, authenticating or refreshing as
// needed. Safe for concurrent use.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt.Add(-expiryMargin)) {
		return c.accessToken, nil
	}

	// Try the refresh grant first; fall back to a full password grant.
	if c.refreshToken != "" {
		if err := c.grantLocked(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {c.refreshToken},
		}); err == nil {
			return c.accessToken, nil
		}
		c.logger.Warn("token refresh failed, re-authenticating")
	}

	if err := c.grantLocked(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {c.username},
		"password":   {c.password},
	}); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

// grantLocked performs one token grant. Caller must hold c.mu.
func (c *Client) grantLocked(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/authorization/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return &AuthError{Status: resp.StatusCode, Message: body}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return &AuthError{Status: resp.StatusCode, Message: "empty access token"}
	}

	ttl := 3600
	if n, err := strconv.Atoi(tok.ExpiresIn); err == nil && n > 0 {
		ttl = n
	}

	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	c.expiresAt = time.Now().Add(time.Duration(ttl) * time.Second)

	c.logger.Debug("ultradns token acquired", "ttl_seconds", ttl)
	return nil
}

// invalidate clears the cached token so the next request re-authenticates.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// do performs an authenticated API request. A 401 response triggers
// exactly one credential refresh and retry; a second 401 surfaces as
// an AuthError.
func (c *Client) do(ctx context.Context, method, path string, body string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Accept", "application/json")
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s %s: %w", method, path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			msg := httpkit.ReadErrorBody(resp.Body, 512)
			if attempt == 0 {
				c.logger.Debug("ultradns 401, refreshing credential", "path", path)
				c.invalidate()
				continue
			}
			return nil, &AuthError{Status: resp.StatusCode, Message: msg}
		}

		return resp, nil
	}
}

// Ping verifies that authentication succeeds.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.token(ctx)
	return err
}
