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

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	url         string
	httpClient  *http.Client
	logger      *slog.Logger
}

// AnthropicOptions configures an [AnthropicClient].
type AnthropicOptions struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int

	// URL overrides the Messages endpoint (tests, proxies).
	URL string
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(opts AnthropicOptions, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.URL == "" {
		opts.URL = anthropicAPIURL
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}

	// Long prompts can hold back response headers well past the shared
	// transport's default.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &AnthropicClient{
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		url:         opts.URL,
		logger:      logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Anthropic request/response types

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []json.RawMessage `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      anthropicUsage    `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Generate sends a non-streaming Messages request.
func (c *AnthropicClient) Generate(ctx context.Context, messages []Message, tools []ToolSchema) (*RawResponse, error) {
	anthropicMsgs, systemPrompt := convertToAnthropic(messages)
	anthropicTools := convertToolsToAnthropic(tools)

	c.logger.Debug("preparing request",
		"model", c.model,
		"messages", len(anthropicMsgs),
		"tools", len(anthropicTools),
		"system_len", len(systemPrompt),
	)

	req := anthropicRequest{
		Model:       c.model,
		Messages:    anthropicMsgs,
		System:      systemPrompt,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Tools:       anthropicTools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	resp, err := c.post(ctx, jsonData)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, errBody)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "response payload", "json", string(body))

	var ar anthropicResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result := convertFromAnthropic(&ar)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"blocks", len(result.Content.Blocks()),
		"tool_calls", len(result.ToolCalls),
		"stop_reason", result.StopReason,
	)
	return result, nil
}

// Ping checks that the Anthropic API is reachable and the key is
// accepted by sending a one-token request.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	jsonData, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.post(ctx, jsonData)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status from Anthropic API: %d", resp.StatusCode)
	}
	return nil
}

func (c *AnthropicClient) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// convertToAnthropic converts messages to Anthropic format. System
// messages are pulled out into the separate system prompt; Anthropic
// does not accept them inline.
func convertToAnthropic(messages []Message) ([]anthropicMessage, string) {
	var systemParts []string
	var result []anthropicMessage

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case RoleUser, RoleAssistant:
			result = append(result, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	return result, strings.Join(systemParts, "\n\n")
}

// convertToolsToAnthropic converts tool schemas to Anthropic format.
func convertToolsToAnthropic(tools []ToolSchema) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		var params any = tool.Parameters
		if tool.Parameters == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: params,
		})
	}
	return result
}

// convertFromAnthropic keeps the block list intact and lifts tool_use
// blocks into ToolCalls. Blocks that fail to decode are kept with an
// empty type so the text of their neighbours still comes through.
func convertFromAnthropic(resp *anthropicResponse) *RawResponse {
	blocks := make([]Block, 0, len(resp.Content))
	var toolCalls []RawToolCall

	for _, raw := range resp.Content {
		var block anthropicContent
		if err := json.Unmarshal(raw, &block); err != nil {
			blocks = append(blocks, Block{Payload: raw})
			continue
		}
		blocks = append(blocks, Block{Type: block.Type, Text: block.Text, Payload: raw})
		if block.Type == "tool_use" {
			toolCalls = append(toolCalls, RawToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: block.Input,
			})
		}
	}

	return &RawResponse{
		Model:        resp.Model,
		Content:      BlockContent(blocks),
		ToolCalls:    toolCalls,
		StopReason:   resp.StopReason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
}
