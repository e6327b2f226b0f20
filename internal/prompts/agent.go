package prompts

import "fmt"

// StandbyMessage is appended as the assistant's reply when the model
// invoked tools but returned no text, so the transcript never shows an
// empty assistant turn.
const StandbyMessage = "I've created a component for you."

// UnknownToolNotice is the text shown on a result card for a tool name
// the client has no entry for.
const UnknownToolNotice = "This tool is not available."

// ToolFailureNotice is the turn-level message shown when one tool of a
// turn fails. The other tools of the turn still run.
func ToolFailureNotice(toolName string, err error) string {
	return fmt.Sprintf("Sorry, the %s tool failed: %v", toolName, err)
}

// TurnFailureNotice is shown when the whole turn could not be delivered.
func TurnFailureNotice(err error) string {
	return fmt.Sprintf("Sorry, I couldn't reach the assistant: %v", err)
}
