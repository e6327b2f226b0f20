// Package chatclient talks to a Wren server over HTTP: it sends chat
// turns, calls the report endpoints, pushes agent messages, and
// follows the agent-message websocket.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nugget/wren/internal/agent"
	"github.com/nugget/wren/internal/api"
	"github.com/nugget/wren/internal/httpkit"
	"github.com/nugget/wren/internal/reports"
)

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client is a Wren server client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the server at baseURL. A nil httpClient
// gets an httpkit client.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one turn and returns the normalized result.
func (c *Client) Chat(ctx context.Context, req *agent.Request) (*agent.Result, error) {
	var res agent.Result
	if err := c.do(ctx, http.MethodPost, "/chat", req, &res); err != nil {
		return nil, err
	}
	if res.ToolCalls == nil {
		res.ToolCalls = []agent.ToolInvocation{}
	}
	return &res, nil
}

// Health fetches the server's health probe.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var h api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Push sends an agent message to every connected client.
func (c *Client) Push(ctx context.Context, content, title string) (*api.PushResponse, error) {
	var ack api.PushResponse
	msg := api.AgentMessage{Content: content, Title: title}
	if err := c.do(ctx, http.MethodPost, "/api/agent-messages", msg, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// GenerateReport queues a report job.
func (c *Client) GenerateReport(ctx context.Context, reportType string) (*api.GenerateReportResponse, error) {
	var out api.GenerateReportResponse
	if err := c.do(ctx, http.MethodPost, "/api/reports/generate", api.GenerateReportRequest{ReportType: reportType}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportStatus fetches a report job.
func (c *Client) ReportStatus(ctx context.Context, id string) (*reports.Report, error) {
	var r reports.Report
	if err := c.do(ctx, http.MethodGet, "/api/reports/status/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("server request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw := httpkit.ReadErrorBody(resp.Body, 4096)
		var e api.ErrorResponse
		if json.Unmarshal([]byte(raw), &e) == nil && e.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: e.Error}
		}
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
