package tools

import "github.com/nugget/wren/internal/llm"

// Tool names shared by the server-side catalog and the client registry.
const (
	GetCurrentTime = "getCurrentTime"
	GetSampleData  = "getSampleData"
)

// Catalog returns the tool descriptors bound to every model call, in
// the order they are offered to the model. The server only describes
// tools; the client executes them.
func Catalog() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name: GetCurrentTime,
			Description: `Get the current date and time. ONLY use this tool when the user explicitly asks about time, date, or "what time is it". ` +
				"Do NOT use for general questions, greetings, or unrelated queries.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timezone": map[string]any{
						"type":        "string",
						"description": `Optional timezone (e.g., "America/New_York", "Europe/Oslo"). Defaults to UTC if not provided.`,
					},
				},
				"required": []any{},
			},
		},
		{
			Name: GetSampleData,
			Description: "Get sample data items for demonstration purposes. Use this when the user asks to see sample data, demo data, or example items. " +
				"Supports optional category filtering.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{
						"type":        "string",
						"description": `Optional category to filter items (e.g., "books", "products", "services"). If not provided, returns all items.`,
					},
				},
				"required": []any{},
			},
		},
	}
}

// Lookup returns the catalog descriptor for name.
func Lookup(name string) (llm.ToolSchema, bool) {
	for _, d := range Catalog() {
		if d.Name == name {
			return d, true
		}
	}
	return llm.ToolSchema{}, false
}
