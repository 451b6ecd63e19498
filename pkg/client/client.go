package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running jenky daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8000",
		Timeout: 10 * time.Second,
	}
}

// New creates a new jenky API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// Repos fetches the current RepoDict.
func (c *Client) Repos(ctx context.Context) (RepoDict, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/repos", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var dict RepoDict
	if err := json.NewDecoder(body).Decode(&dict); err != nil {
		return nil, fmt.Errorf("decode repos: %w", err)
	}
	return dict, nil
}

// Action asks the daemon to kill or restart a process.
func (c *Client) Action(ctx context.Context, repoID, processID, action string) (ActionResponse, error) {
	c.logger.Debug("Sending process action", "repo", repoID, "process", processID, "action", action)

	data, err := json.Marshal(ActionRequest{Action: action})
	if err != nil {
		return ActionResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	u := fmt.Sprintf("%s/repos/%s/processes/%s", c.baseURL, url.PathEscape(repoID), url.PathEscape(processID))
	body, err := c.do(ctx, http.MethodPost, u, data)
	if err != nil {
		return ActionResponse{}, err
	}
	defer func() { _ = body.Close() }()

	var out ActionResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return ActionResponse{}, fmt.Errorf("decode action response: %w", err)
	}
	return out, nil
}

// Tail returns the tail of a process output file, e.g. logType "out".
func (c *Client) Tail(ctx context.Context, repoID, processID, logType string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/processes/%s/%s", c.baseURL,
		url.PathEscape(repoID), url.PathEscape(processID), url.PathEscape(logType))
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()
	b, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read tail: %w", err)
	}
	return string(b), nil
}

// Logs returns daemon log entries newer than created, newest first.
func (c *Client) Logs(ctx context.Context, created float64) ([]LogEntry, error) {
	u := c.baseURL + "/logs?created=" + strconv.FormatFloat(created, 'f', -1, 64)
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var entries []LogEntry
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return entries, nil
}

// do performs the request and returns the body on 200. The caller closes it.
func (c *Client) do(ctx context.Context, method, u string, body []byte) (io.ReadCloser, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, c.handleErrorResponse(resp)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("API error: %s", errorResp.Error)
}
