// Package runnerclient is the HTTP client local runners use to talk to the
// orchestration server: poll for work, heartbeat, and report progress.
package runnerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/server/apiv1"
)

// ClientConfig is the configuration for the client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// Token authenticates the runner's user.
	Token string
	// RunnerID identifies the runner on callback routes. The server rejects
	// local-task callbacks that do not name an assigned, enabled runner.
	RunnerID string
	Client   *http.Client
	Logger   log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runnerclient.Client"})
	return nil
}

// Client talks to the server's v1 API.
type Client struct {
	baseURL  string
	token    string
	runnerID string
	client   *http.Client
	logger   log.Logger
}

// NewClient creates a new client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		runnerID: cfg.RunnerID,
		client:   cfg.Client,
		logger:   cfg.Logger,
	}, nil
}

// Heartbeat registers or refreshes the runner and returns its current state.
func (c *Client) Heartbeat(ctx context.Context, runnerID string, req apiv1.HeartbeatRequest) (*apiv1.Runner, error) {
	var runner apiv1.Runner
	url := fmt.Sprintf("%s/api/v1/runners/%s/heartbeat", c.baseURL, runnerID)
	if err := c.do(ctx, http.MethodPost, url, req, &runner); err != nil {
		return nil, fmt.Errorf("could not heartbeat: %w", err)
	}
	return &runner, nil
}

// Poll asks the server for pending work pinned to the runner.
func (c *Client) Poll(ctx context.Context, runnerID string) ([]apiv1.WorkItem, error) {
	var resp apiv1.PollResponse
	url := fmt.Sprintf("%s/api/v1/runners/%s/poll", c.baseURL, runnerID)
	if err := c.do(ctx, http.MethodPost, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("could not poll: %w", err)
	}
	return resp.Items, nil
}

// ListTasks returns the authenticated user's tasks.
func (c *Client) ListTasks(ctx context.Context) ([]apiv1.Task, error) {
	var tasks []apiv1.Task
	url := fmt.Sprintf("%s/api/v1/tasks", c.baseURL)
	if err := c.do(ctx, http.MethodGet, url, nil, &tasks); err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	return tasks, nil
}

// ListRunners returns the authenticated user's registered runners.
func (c *Client) ListRunners(ctx context.Context) ([]apiv1.Runner, error) {
	var runners []apiv1.Runner
	url := fmt.Sprintf("%s/api/v1/runners", c.baseURL)
	if err := c.do(ctx, http.MethodGet, url, nil, &runners); err != nil {
		return nil, fmt.Errorf("could not list runners: %w", err)
	}
	return runners, nil
}

// UpdateSubtask reports an execution callback for a subtask.
func (c *Client) UpdateSubtask(ctx context.Context, taskID, subtaskID string, req apiv1.SubtaskUpdateRequest) error {
	callbackURL := fmt.Sprintf("%s/api/v1/tasks/%s/subtasks/%s", c.baseURL, taskID, subtaskID)
	if c.runnerID != "" {
		callbackURL += "?runner_id=" + url.QueryEscape(c.runnerID)
	}
	if err := c.do(ctx, http.MethodPatch, callbackURL, req, nil); err != nil {
		return fmt.Errorf("could not update subtask: %w", err)
	}
	return nil
}

// Publisher adapts the callback endpoint to a result-partial publish function
// for one subtask. Each partial becomes its own callback.
func (c *Client) Publisher(taskID, subtaskID string) func(ctx context.Context, partial model.Result) error {
	return func(ctx context.Context, partial model.Result) error {
		return c.UpdateSubtask(ctx, taskID, subtaskID, apiv1.SubtaskUpdateRequest{Result: partial})
	}
}

func (c *Client) do(ctx context.Context, method, url string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("server returned 404: %w", model.ErrNotFound)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("server returned 403: %w", model.ErrNotAuthorized)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("server returned 409: %w", model.ErrConflict)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}

	return nil
}
