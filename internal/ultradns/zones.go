package ultradns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dnsops/zonebot/internal/httpkit"
)

// FetchStatus classifies the outcome of a single zone fetch.
type FetchStatus int

const (
	// StatusOK means the zone resolved and Content is populated.
	StatusOK FetchStatus = iota

	// StatusNotFound means the provider has no such zone.
	StatusNotFound

	// StatusError means the fetch failed for a reason other than the
	// zone being unknown. Err carries the detail.
	StatusError
)

func (s FetchStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ZoneFetchResult is the per-zone outcome of a batch fetch. One zone's
// failure never aborts its siblings; callers inspect Status per entry.
type ZoneFetchResult struct {
	Name    string
	Status  FetchStatus
	Content string
	Err     error
}

// taskStatus is the body of GET /tasks/{id}.
type taskStatus struct {
	TaskID  string `json:"taskId"`
	Code    string `json:"code"` // PENDING, IN_PROCESS, COMPLETE, ERROR
	Message string `json:"message"`
}

// FetchZoneFiles exports the named zones and returns their raw
// zone-file content, one result per input name in input order. Zones
// are fetched concurrently. An authentication failure short-circuits
// the whole batch before any zone is attempted.
func (c *Client) FetchZoneFiles(ctx context.Context, names []string) ([]ZoneFetchResult, error) {
	return c.fanOut(ctx, names, c.fetchZoneFile)
}

// FetchHealthChecks runs a provider health check for each named zone
// and returns the report JSON per zone, in input order.
func (c *Client) FetchHealthChecks(ctx context.Context, names []string) ([]ZoneFetchResult, error) {
	return c.fanOut(ctx, names, c.fetchHealthCheck)
}

// fanOut authenticates once, then runs fetch for every zone in its own
// goroutine, collecting all results in input order.
func (c *Client) fanOut(ctx context.Context, names []string, fetch func(context.Context, string) ZoneFetchResult) ([]ZoneFetchResult, error) {
	// Resolve the credential up front so a bad password fails the
	// batch instead of surfacing N identical per-zone errors.
	if _, err := c.token(ctx); err != nil {
		return nil, err
	}

	results := make([]ZoneFetchResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = fetch(ctx, name)
		}(i, name)
	}
	wg.Wait()

	return results, nil
}

// fetchZoneFile exports one zone: validate it exists, submit an export
// task, poll to completion, download the result.
func (c *Client) fetchZoneFile(ctx context.Context, name string) ZoneFetchResult {
	if found, err := c.zoneExists(ctx, name); err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	} else if !found {
		return ZoneFetchResult{Name: name, Status: StatusNotFound}
	}

	taskID, err := c.startExport(ctx, name)
	if err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	}

	if err := c.awaitTask(ctx, taskID); err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	}

	content, err := c.downloadResult(ctx, taskID)
	if err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	}

	c.logger.Debug("zone exported", "zone", name, "bytes", len(content))
	return ZoneFetchResult{Name: name, Status: StatusOK, Content: content}
}

// fetchHealthCheck runs one zone's health check: submit, poll the
// returned location, return the completed report JSON.
func (c *Client) fetchHealthCheck(ctx context.Context, name string) ZoneFetchResult {
	if found, err := c.zoneExists(ctx, name); err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	} else if !found {
		return ZoneFetchResult{Name: name, Status: StatusNotFound}
	}

	location, err := c.startHealthCheck(ctx, name)
	if err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	}

	report, err := c.awaitHealthCheck(ctx, location)
	if err != nil {
		return ZoneFetchResult{Name: name, Status: StatusError, Err: err}
	}

	c.logger.Debug("health check completed", "zone", name)
	return ZoneFetchResult{Name: name, Status: StatusOK, Content: report}
}

// zoneExists probes GET /v3/zones/{name}.
func (c *Client) zoneExists(ctx context.Context, name string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v3/zones/"+name, "")
	if err != nil {
		return false, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return false, fmt.Errorf("zone lookup %s: status %d: %s", name, resp.StatusCode, body)
	}
}

// startExport submits a zone export task and returns its task id.
func (c *Client) startExport(ctx context.Context, name string) (string, error) {
	payload, err := json.Marshal(map[string][]string{"zoneNames": {name}})
	if err != nil {
		return "", fmt.Errorf("marshal export request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v3/zones/export", string(payload))
	if err != nil {
		return "", err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("start export for %s: status %d: %s", name, resp.StatusCode, body)
	}

	var result struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode export response: %w", err)
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("start export for %s: no task id in response", name)
	}
	return result.TaskID, nil
}

// awaitTask polls GET /tasks/{id} until the task completes or errors,
// bounded by the configured task timeout.
func (c *Client) awaitTask(ctx context.Context, taskID string) error {
	deadline := time.Now().Add(c.taskTimeout)

	for {
		resp, err := c.do(ctx, http.MethodGet, "/tasks/"+taskID, "")
		if err != nil {
			return err
		}

		var st taskStatus
		err = json.NewDecoder(resp.Body).Decode(&st)
		httpkit.DrainAndClose(resp.Body, 4096)
		if err != nil {
			return fmt.Errorf("decode task status: %w", err)
		}

		switch st.Code {
		case "COMPLETE":
			return nil
		case "ERROR":
			return fmt.Errorf("task %s failed: %s", taskID, st.Message)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("task %s timed out after %s", taskID, c.taskTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// downloadResult fetches the completed task's exported zone data.
func (c *Client) downloadResult(ctx context.Context, taskID string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tasks/"+taskID+"/result", "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("download task %s result: status %d: %s", taskID, resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read task result: %w", err)
	}
	return string(data), nil
}

// startHealthCheck submits a health check and returns the poll location.
func (c *Client) startHealthCheck(ctx context.Context, name string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/zones/"+name+"/healthchecks", "{}")
	if err != nil {
		return "", err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("start health check for %s: status %d: %s", name, resp.StatusCode, body)
	}

	// The poll location arrives in the body; some deployments also set
	// the Location header. Prefer the body, fall back to the header.
	var result struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Location != "" {
		return result.Location, nil
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}
	return "", fmt.Errorf("start health check for %s: no poll location in response", name)
}

// awaitHealthCheck polls the health-check location until the check
// reaches a terminal state, returning the full report JSON.
func (c *Client) awaitHealthCheck(ctx context.Context, location string) (string, error) {
	deadline := time.Now().Add(c.taskTimeout)

	for {
		resp, err := c.do(ctx, http.MethodGet, location, "")
		if err != nil {
			return "", err
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read health check: %w", err)
		}

		var st struct {
			State string `json:"state"` // RUNNING, COMPLETED, FAILED
		}
		if err := json.Unmarshal(raw, &st); err != nil {
			return "", fmt.Errorf("decode health check: %w", err)
		}

		switch st.State {
		case "COMPLETED":
			return string(raw), nil
		case "FAILED":
			return "", fmt.Errorf("health check at %s failed", location)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("health check at %s timed out after %s", location, c.taskTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// FetchSystemStatus retrieves the provider's public status feed. No
// authentication is required.
func (c *Client) FetchSystemStatus(ctx context.Context) (string, error) {
	if c.statusURL == "" {
		return "", fmt.Errorf("no status URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch system status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("system status: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read system status: %w", err)
	}
	return string(data), nil
}
