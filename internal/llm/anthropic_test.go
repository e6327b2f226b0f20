package llm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToAnthropic_SystemExtracted(t *testing.T) {
	msgs, system := convertToAnthropic([]Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleSystem, Content: "and brief"},
	})

	if system != "be nice\n\nand brief" {
		t.Errorf("system = %q", system)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
}

func TestConvertFromAnthropic_LiftsToolUse(t *testing.T) {
	resp := &anthropicResponse{
		Model: "claude-test",
		Content: []json.RawMessage{
			json.RawMessage(`{"type":"text","text":"Let me check."}`),
			json.RawMessage(`{"type":"tool_use","id":"toolu_1","name":"getCurrentTime","input":{"timezone":"UTC"}}`),
		},
		StopReason: "tool_use",
		Usage:      anthropicUsage{InputTokens: 12, OutputTokens: 7},
	}

	got := convertFromAnthropic(resp)

	if got.Content.Kind() != ContentBlocks {
		t.Fatalf("kind = %v, want ContentBlocks", got.Content.Kind())
	}
	blocks := got.Content.Blocks()
	if len(blocks) != 2 || blocks[0].Text != "Let me check." || blocks[1].Type != "tool_use" {
		t.Errorf("blocks = %+v", blocks)
	}
	if len(got.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Name != "getCurrentTime" || string(tc.Args) != `{"timezone":"UTC"}` {
		t.Errorf("tool call = %+v (args %s)", tc, tc.Args)
	}
	if got.InputTokens != 12 || got.OutputTokens != 7 {
		t.Errorf("usage = %d/%d", got.InputTokens, got.OutputTokens)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"It is noon."}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicOptions{
		APIKey:      "sk-test",
		Model:       "claude-test",
		Temperature: 0.7,
		URL:         srv.URL,
	}, nil)

	resp, err := c.Generate(t.Context(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "time?"},
	}, []ToolSchema{{Name: "getCurrentTime", Description: "now"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotReq.System != "sys" || len(gotReq.Messages) != 1 {
		t.Errorf("request system=%q messages=%d", gotReq.System, len(gotReq.Messages))
	}
	if gotReq.MaxTokens != 4096 || gotReq.Temperature != 0.7 {
		t.Errorf("request max_tokens=%d temperature=%v", gotReq.MaxTokens, gotReq.Temperature)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].InputSchema == nil {
		t.Errorf("tools = %+v", gotReq.Tools)
	}
	if blocks := resp.Content.Blocks(); len(blocks) != 1 || blocks[0].Text != "It is noon." {
		t.Errorf("blocks = %+v", blocks)
	}
}

func TestAnthropicGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicOptions{APIKey: "k", Model: "m", URL: srv.URL}, nil)
	if _, err := c.Generate(t.Context(), []Message{{Role: RoleUser, Content: "x"}}, nil); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestAnthropicPing_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAnthropicClient(AnthropicOptions{APIKey: "bad", Model: "m", URL: srv.URL}, nil)
	err := c.Ping(t.Context())
	if err == nil || err.Error() != "invalid API key" {
		t.Errorf("Ping = %v, want invalid API key", err)
	}
}
