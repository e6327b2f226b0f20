package agent

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/nugget/wren/internal/llm"
)

func TestNormalize_Text(t *testing.T) {
	tests := []struct {
		name string
		raw  *llm.RawResponse
		want string
	}{
		{name: "nil response", raw: nil, want: ""},
		{name: "no content", raw: &llm.RawResponse{}, want: ""},
		{name: "scalar", raw: &llm.RawResponse{Content: llm.TextContent("It is noon.")}, want: "It is noon."},
		{
			name: "blocks keep only text in order",
			raw: &llm.RawResponse{Content: llm.BlockContent([]llm.Block{
				{Type: "text", Text: "Let me "},
				{Type: "tool_use", Payload: json.RawMessage(`{"type":"tool_use"}`)},
				{Type: "text", Text: "check."},
				{Type: "", Payload: json.RawMessage(`garbage`)},
			})},
			want: "Let me check.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
			if got.ToolCalls == nil {
				t.Error("ToolCalls must never be nil")
			}
		})
	}
}

func TestNormalize_ToolCalls(t *testing.T) {
	raw := &llm.RawResponse{
		Content: llm.TextContent(""),
		ToolCalls: []llm.RawToolCall{
			{ID: "toolu_1", Name: "getCurrentTime", Args: json.RawMessage(`{"timezone":"UTC"}`)},
			{Name: "getSampleData"},
			{Name: "getSampleData", Args: json.RawMessage(`{not json`)},
			{Name: "getSampleData", Args: json.RawMessage(`null`)},
			{Name: "getSampleData", Args: json.RawMessage(`"{\"category\":\"books\"}"`)},
			{Name: "getSampleData", Args: json.RawMessage(`[1,2]`)},
		},
	}

	got := Normalize(raw)
	if len(got.ToolCalls) != 6 {
		t.Fatalf("got %d tool calls, want 6", len(got.ToolCalls))
	}

	first := got.ToolCalls[0]
	if first.ID != "toolu_1" || first.ToolName != "getCurrentTime" || first.Parameters["timezone"] != "UTC" {
		t.Errorf("first = %+v", first)
	}

	for i, tc := range got.ToolCalls[1:] {
		if tc.Parameters == nil {
			t.Errorf("call %d: Parameters is nil, want empty map", i+1)
		}
	}
	if got.ToolCalls[4].Parameters["category"] != "books" {
		t.Errorf("string-encoded args not decoded: %+v", got.ToolCalls[4].Parameters)
	}
	for _, i := range []int{1, 2, 3, 5} {
		if n := len(got.ToolCalls[i].Parameters); n != 0 {
			t.Errorf("call %d: %d parameters, want 0", i, n)
		}
	}
}

func TestNormalize_SynthesizedIDsUnique(t *testing.T) {
	idPattern := regexp.MustCompile(`^call_\d+_[0-9a-z]{9}$`)

	raw := &llm.RawResponse{}
	for range 50 {
		raw.ToolCalls = append(raw.ToolCalls, llm.RawToolCall{Name: "getCurrentTime"})
	}

	seen := make(map[string]bool)
	for _, tc := range Normalize(raw).ToolCalls {
		if !idPattern.MatchString(tc.ID) {
			t.Errorf("id %q does not match %s", tc.ID, idPattern)
		}
		if seen[tc.ID] {
			t.Errorf("duplicate id %q", tc.ID)
		}
		seen[tc.ID] = true
	}
}
