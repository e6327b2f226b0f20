package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/wren/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API.
type OllamaClient struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
}

// OllamaOptions configures an [OllamaClient].
type OllamaOptions struct {
	URL         string
	Model       string
	Temperature float64
	MaxTokens   int
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(opts OllamaOptions, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.URL == "" {
		opts.URL = "http://localhost:11434"
	}

	// Large local models with tools bound can take minutes before the
	// first byte of the response.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 5 * time.Minute

	return &OllamaClient{
		baseURL:     strings.TrimRight(opts.URL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithTransport(t),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []ollamaTool   `json:"tools,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"` // object, not string
	} `json:"function"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Generate sends a non-streaming chat request to Ollama.
func (c *OllamaClient) Generate(ctx context.Context, messages []Message, tools []ToolSchema) (*RawResponse, error) {
	req := ollamaRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Tools:    convertToolsToOllama(tools),
		Options: &ollamaOptions{
			Temperature: c.temperature,
			NumPredict:  c.maxTokens,
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("preparing request", "model", c.model, "messages", len(messages), "tools", len(tools))
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, errBody)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "response payload", "json", string(body))

	var or ollamaResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &RawResponse{
		Model:        or.Model,
		Content:      TextContent(or.Message.Content),
		StopReason:   or.DoneReason,
		InputTokens:  or.PromptEvalCount,
		OutputTokens: or.EvalCount,
	}
	for _, tc := range or.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, RawToolCall{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}

	// Many models write the tool call into the content instead of
	// using the native tool_calls field.
	if len(result.ToolCalls) == 0 && or.Message.Content != "" {
		if parsed, prose := parseTextToolCalls(or.Message.Content); len(parsed) > 0 {
			c.logger.Debug("recovered tool calls from content", "count", len(parsed))
			result.ToolCalls = parsed
			result.Content = TextContent(prose)
		}
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.ToolCalls),
	)
	return result, nil
}

func convertToolsToOllama(tools []ToolSchema) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]ollamaTool, 0, len(tools))
	for _, tool := range tools {
		var params any = tool.Parameters
		if tool.Parameters == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

type textToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// parseTextToolCalls attempts to extract tool calls from content text.
// It handles common formats:
//   - Raw JSON object: {"name": "...", "arguments": {...}}
//   - JSON array: [{"name": "...", "arguments": {...}}]
//   - Tagged: <tool_call>...</tool_call>
//
// prose is the text outside a <tool_call> tag, trimmed; it is empty for
// bare JSON content.
func parseTextToolCalls(content string) (calls []RawToolCall, prose string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ""
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		before := strings.TrimSpace(content[:start])
		rest := content[start+len("<tool_call>"):]
		after := ""
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			after = strings.TrimSpace(rest[end+len("</tool_call>"):])
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
		switch {
		case before != "" && after != "":
			prose = before + "\n\n" + after
		default:
			prose = before + after
		}
	}

	var list []textToolCall
	if err := json.Unmarshal([]byte(content), &list); err == nil && len(list) > 0 {
		calls = make([]RawToolCall, 0, len(list))
		for _, c := range list {
			if c.Name == "" {
				continue
			}
			calls = append(calls, RawToolCall{Name: c.Name, Args: c.Arguments})
		}
		return calls, prose
	}

	var single textToolCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		return []RawToolCall{{Name: single.Name, Args: single.Arguments}}, prose
	}

	return nil, ""
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}
