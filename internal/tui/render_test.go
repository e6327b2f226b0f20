package tui

import (
	"strings"
	"testing"

	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/tools"
)

func TestRenderMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello there.", "Hello there."},
		{"emphasis dropped", "This is **bold** and *soft*.", "This is bold and soft."},
		{"bullets", "Items:\n\n- one\n- two", "Items:\n\n• one\n• two"},
		{"numbered", "1. first\n2. second", "1. first\n2. second"},
		{"code span", "Run `wren serve` now.", "Run `wren serve` now."},
		{"fenced code", "```\nwren ask hi\n```", "    wren ask hi"},
		{"link", "See [docs](https://example.com).", "See docs (https://example.com)."},
		{"heading", "# Report\n\nDone.", "Report\n\nDone."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderMarkdown(tt.in); got != tt.want {
				t.Errorf("renderMarkdown(%q) =\n%q\nwant\n%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderCard(t *testing.T) {
	tests := []struct {
		name     string
		result   session.ToolResult
		renderer string
		contains []string
	}{
		{
			name: "time",
			result: session.ToolResult{ToolName: tools.GetCurrentTime, Data: map[string]any{
				"formatted": "Sunday, June 1, 2025 at 3:04:05 PM UTC",
				"timezone":  "UTC",
			}},
			renderer: tools.RendererTime,
			contains: []string{"Current Time", "3:04:05 PM UTC"},
		},
		{
			name: "sample data",
			result: session.ToolResult{ToolName: tools.GetSampleData, Data: map[string]any{
				"title": "Books",
				"items": []any{map[string]any{"name": "Introduction to React", "value": "$29.99"}},
			}},
			renderer: tools.RendererSampleData,
			contains: []string{"Books", "• Introduction to React  $29.99"},
		},
		{
			name: "empty sample data",
			result: session.ToolResult{ToolName: tools.GetSampleData, Data: map[string]any{
				"title": "Toys",
				"items": []any{},
			}},
			renderer: tools.RendererSampleData,
			contains: []string{"Toys", "No items found."},
		},
		{
			name:     "unknown tool card",
			result:   session.ToolResult{ToolName: "launchRocket", Data: map[string]any{"error": "Unknown tool"}},
			contains: []string{"launchRocket", "Unknown tool"},
		},
		{
			name:     "fallback json",
			result:   session.ToolResult{ToolName: "custom", Data: map[string]any{"answer": 42}},
			contains: []string{"custom", `"answer": 42`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderCard(tt.result, tt.renderer)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("card missing %q:\n%s", want, got)
				}
			}
		})
	}
}
