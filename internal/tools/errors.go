package tools

import "fmt"

// UnknownToolError is returned when a tool call names a tool with no
// registry entry. Providers can hallucinate names, so callers turn this
// into a visible "unknown tool" card rather than failing the turn.
type UnknownToolError struct {
	ToolName string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.ToolName)
}

// ToolExecutionError is returned when a registered tool's executor
// fails or its parameters do not satisfy the tool's schema.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.ToolName, e.Err)
}

// Unwrap returns the underlying error.
func (e *ToolExecutionError) Unwrap() error { return e.Err }
