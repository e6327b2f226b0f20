// Package agent implements the request-scoped turn orchestrator: it
// assembles the prompt, calls the provider with the tool set bound, and
// normalizes what comes back.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/wren/internal/llm"
	"github.com/nugget/wren/internal/prompts"
)

// ProviderError wraps any failure of the provider call. It is surfaced
// to the caller as-is; the loop never retries.
type ProviderError struct {
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Request is one incoming chat turn.
type Request struct {
	Message string         `json:"message"`
	History []llm.Message  `json:"chatHistory,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Loop runs chat turns. It holds only what is fixed at construction and
// is safe for concurrent use.
type Loop struct {
	logger        *slog.Logger
	llm           llm.Client
	system        *prompts.SystemTemplate
	assistantName string
	tools         []llm.ToolSchema
}

// NewLoop creates a new agent loop. tools is bound to every model call
// in the given order.
func NewLoop(logger *slog.Logger, client llm.Client, system *prompts.SystemTemplate, assistantName string, tools []llm.ToolSchema) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:        logger,
		llm:           client,
		system:        system,
		assistantName: assistantName,
		tools:         tools,
	}
}

// Run processes one turn and returns the normalized result. A template
// render failure is returned as a *prompts.TemplateRenderError; any
// provider failure as a *ProviderError.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	requestID := generateRequestID()
	log := l.logger.With("request_id", requestID)
	start := time.Now()

	log.Info("turn started",
		"history", len(req.History),
		"context_keys", len(req.Context),
	)

	messages, err := prompts.Assemble(l.system, l.assistantName, req.Context, req.History, req.Message)
	if err != nil {
		log.Error("prompt assembly failed", "error", err)
		return nil, err
	}

	log.Debug("calling LLM", "messages", len(messages), "tools", len(l.tools))
	raw, err := l.llm.Generate(ctx, messages, l.tools)
	if err != nil {
		log.Error("LLM call failed", "error", err, "elapsed", time.Since(start))
		return nil, &ProviderError{Err: err}
	}

	result := Normalize(raw)

	// A provider that answers with nothing still yields an empty turn.
	if raw == nil {
		log.Warn("LLM returned no response", "elapsed", time.Since(start))
		return &result, nil
	}

	log.Info("turn completed",
		"model", raw.Model,
		"text_len", len(result.Text),
		"tool_calls", len(result.ToolCalls),
		"input_tokens", raw.InputTokens,
		"output_tokens", raw.OutputTokens,
		"elapsed", time.Since(start),
	)
	return &result, nil
}

// generateRequestID returns a short id for correlating the log lines of
// one turn: "r_" followed by 8 hex characters.
func generateRequestID() string {
	return "r_" + uuid.NewString()[:8]
}
