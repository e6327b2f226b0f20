package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Generate sends the messages with the tool set bound and returns
	// the provider's response.
	Generate(ctx context.Context, messages []Message, tools []ToolSchema) (*RawResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
