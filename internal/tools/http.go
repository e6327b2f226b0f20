package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nugget/wren/internal/httpkit"
)

// HTTPExecutor runs a tool by calling a JSON endpoint. String
// parameters named in Query become query parameters; the decoded JSON
// body is the tool's result.
type HTTPExecutor struct {
	Client  *http.Client
	BaseURL string
	Path    string
	Query   []string

	// FailureMessage replaces the status in the returned error.
	FailureMessage string
}

// Execute implements Executor.
func (h *HTTPExecutor) Execute(ctx context.Context, params map[string]any) (any, error) {
	u, err := url.Parse(strings.TrimRight(h.BaseURL, "/") + h.Path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	q := u.Query()
	for _, key := range h.Query {
		if v, ok := params[key]; ok && v != nil {
			s := fmt.Sprint(v)
			if s != "" {
				q.Set(key, s)
			}
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = httpkit.NewClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := httpkit.ReadErrorBody(resp.Body, 1024)
		if h.FailureMessage != "" {
			return nil, fmt.Errorf("%s (status %d)", h.FailureMessage, resp.StatusCode)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return data, nil
}
