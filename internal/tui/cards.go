package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/tools"
)

// renderCard formats one tool result for its pane. renderer is the
// registry's renderer name for the tool; unknown renderers fall back to
// indented JSON.
func renderCard(r session.ToolResult, renderer string) string {
	data, _ := r.Data.(map[string]any)

	if msg, ok := data["error"].(string); ok {
		return fmt.Sprintf("%s\n%s", r.ToolName, msg)
	}

	switch renderer {
	case tools.RendererTime:
		return timeCard(data)
	case tools.RendererSampleData:
		return sampleDataCard(data)
	}

	raw, err := json.MarshalIndent(r.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s\n%v", r.ToolName, r.Data)
	}
	return fmt.Sprintf("%s\n%s", r.ToolName, raw)
}

func timeCard(data map[string]any) string {
	var b strings.Builder
	b.WriteString("🕐 Current Time\n")
	if f, ok := data["formatted"].(string); ok {
		b.WriteString(f)
	}
	if tz, ok := data["timezone"].(string); ok && tz != "" {
		b.WriteString("\n" + tz)
	}
	return b.String()
}

func sampleDataCard(data map[string]any) string {
	var b strings.Builder
	title, _ := data["title"].(string)
	if title == "" {
		title = "Sample Data"
	}
	b.WriteString("📦 " + title)

	items, _ := data["items"].([]any)
	if len(items) == 0 {
		b.WriteString("\nNo items found.")
		return b.String()
	}
	for _, it := range items {
		item, _ := it.(map[string]any)
		name, _ := item["name"].(string)
		line := "\n• " + name
		if value, ok := item["value"].(string); ok && value != "" {
			line += "  " + value
		}
		if desc, ok := item["description"].(string); ok && desc != "" {
			line += "\n  " + desc
		}
		b.WriteString(line)
	}
	return b.String()
}
