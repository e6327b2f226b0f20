package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nugget/wren/internal/agent"
	"github.com/nugget/wren/internal/buildinfo"
	"github.com/nugget/wren/internal/events"
	"github.com/nugget/wren/internal/prompts"
)

// handleChat runs one turn.
// POST /chat {"message": "...", "chatHistory": [...], "context": {...}}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, ok := req.Message.(string)
	if !ok || message == "" {
		s.errorResponse(w, http.StatusBadRequest, "Message is required and must be a string")
		return
	}

	start := s.now()
	s.bus.Emit(events.SourceAgent, events.KindTurnStart, map[string]any{
		"history": len(req.ChatHistory),
	})

	result, err := s.agent.Run(r.Context(), &agent.Request{
		Message: message,
		History: req.ChatHistory,
		Context: req.Context,
	})
	if err != nil {
		var renderErr *prompts.TemplateRenderError
		var provErr *agent.ProviderError
		switch {
		case errors.As(err, &renderErr):
			s.logger.Error("chat failed: system prompt render", "error", err)
		case errors.As(err, &provErr):
			s.logger.Error("chat failed: provider", "error", err)
		default:
			s.logger.Error("chat failed", "error", err)
		}
		// Internal detail stays in the log.
		s.errorResponse(w, http.StatusInternalServerError, "Failed to process chat request")
		return
	}

	s.bus.Emit(events.SourceAgent, events.KindTurnComplete, map[string]any{
		"tool_calls": len(result.ToolCalls),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	writeJSON(w, result, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "OK",
		Provider:  s.provider,
		Timestamp: s.now().UTC().Format(isoMillis),
		Version:   buildinfo.Version,
	}
	if s.health != nil {
		resp.Services = s.health.Status()
	}
	writeJSON(w, resp, s.logger)
}

// isoMillis is ISO 8601 in UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z"
