package prompts

import "github.com/nugget/wren/internal/llm"

// Assemble builds the provider-facing message sequence for one turn:
// the rendered system prompt, the history, then the new user message.
//
// History entries with a role other than user, assistant or system are
// dropped. Callers keep internal-only entries (tool markers) in the same
// list and rely on this.
func Assemble(tmpl *SystemTemplate, assistantName string, ctx map[string]any, history []llm.Message, newMessage string) ([]llm.Message, error) {
	system, err := tmpl.Render(assistantName, ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})

	for _, m := range history {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
			messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: newMessage})
	return messages, nil
}
