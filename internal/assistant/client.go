// Package assistant talks to the hosted assistant service and manages
// per-channel conversation threads.
//
// The service exposes thread/run semantics: messages accumulate on a
// thread, and each inference is a run against the thread's context that
// progresses through queued/in_progress to a terminal state. There is
// no completion callback, so runs are polled.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dnsops/zonebot/internal/config"
	"github.com/dnsops/zonebot/internal/httpkit"
)

const defaultBaseURL = "https://api.openai.com/v1"

// RunStatus is the lifecycle state of an assistant run.
type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunExpired    RunStatus = "expired"
	RunIncomplete RunStatus = "incomplete"

	// RunRequiresAction means the run is waiting on a tool call. We
	// register no tools, so this is treated as a failure.
	RunRequiresAction RunStatus = "requires_action"
)

// Terminal reports whether the run has stopped progressing.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunQueued, RunInProgress:
		return false
	default:
		return true
	}
}

// API is the narrow surface of the assistant service the session
// manager depends on. *Client is the production implementation.
type API interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, role, text string) error
	StartRun(ctx context.Context, threadID, assistantID string) (string, error)
	GetRun(ctx context.Context, threadID, runID string) (RunStatus, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// Client is an HTTP client for the assistant service's v2 REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint, primarily for tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates an assistant service client.
func NewClient(apiKey string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		logger:  logger.With("component", "assistant"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(60*time.Second),
			httpkit.WithRetry(1, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// doJSON performs one API call, decoding the response into out when
// out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		c.logger.Log(ctx, config.LevelTrace, "request payload", "path", path, "json", string(data))
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("assistant API error", "path", path, "status", resp.StatusCode, "body", errBody)
		return fmt.Errorf("assistant API error %d on %s: %s", resp.StatusCode, path, errBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreateAssistant provisions a named assistant and returns its id.
// Used by `zonebot init`, not on the serving path.
func (c *Client) CreateAssistant(ctx context.Context, name, description, instructions, model string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/assistants", map[string]string{
		"name":         name,
		"description":  description,
		"instructions": instructions,
		"model":        model,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create assistant %s: %w", name, err)
	}
	return out.ID, nil
}

// CreateThread creates an empty conversation thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", struct{}{}, &out); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	c.logger.Debug("thread created", "thread_id", out.ID)
	return out.ID, nil
}

// AppendMessage adds a message to a thread.
func (c *Client) AppendMessage(ctx context.Context, threadID, role, text string) error {
	err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/messages", map[string]string{
		"role":    role,
		"content": text,
	}, nil)
	if err != nil {
		return fmt.Errorf("append message to %s: %w", threadID, err)
	}
	return nil
}

// StartRun submits a run of the given assistant against the thread.
func (c *Client) StartRun(ctx context.Context, threadID, assistantID string) (string, error) {
	var out struct {
		ID     string    `json:"id"`
		Status RunStatus `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs", map[string]string{
		"assistant_id": assistantID,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("start run on %s: %w", threadID, err)
	}
	c.logger.Debug("run started", "thread_id", threadID, "run_id", out.ID, "status", out.Status)
	return out.ID, nil
}

// GetRun fetches a run's current status.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (RunStatus, error) {
	var out struct {
		Status    RunStatus `json:"status"`
		LastError *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"last_error"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil, &out)
	if err != nil {
		return "", fmt.Errorf("get run %s: %w", runID, err)
	}
	if out.LastError != nil {
		c.logger.Debug("run reported error",
			"run_id", runID,
			"code", out.LastError.Code,
			"message", out.LastError.Message,
		)
	}
	return out.Status, nil
}

// CancelRun asks the service to stop an in-progress run. Cancellation
// is asynchronous on the service side; the run may still report
// in_progress for a short while after this returns.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	var out struct {
		Status RunStatus `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", struct{}{}, &out)
	if err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	c.logger.Debug("run cancel requested", "thread_id", threadID, "run_id", runID, "status", out.Status)
	return nil
}

// LatestAssistantMessage returns the text of the most recent assistant
// message on the thread. Non-text content parts are skipped.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var out struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=desc&limit=10", nil, &out)
	if err != nil {
		return "", fmt.Errorf("list messages on %s: %w", threadID, err)
	}

	for _, msg := range out.Data {
		if msg.Role != "assistant" {
			continue
		}
		var text string
		for _, part := range msg.Content {
			if part.Type == "text" {
				text += part.Text.Value
			}
		}
		if text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("no assistant reply on thread %s", threadID)
}
