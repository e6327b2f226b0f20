package api

import (
	"time"

	"github.com/nugget/wren/internal/connwatch"
	"github.com/nugget/wren/internal/llm"
)

// ChatRequest is the body of POST /chat. Message is decoded loosely so
// a non-string value can be rejected with a clear error.
type ChatRequest struct {
	Message     any            `json:"message"`
	ChatHistory []llm.Message  `json:"chatHistory,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`

	// Services is the reachability of upstreams such as the LLM
	// provider, when a watcher is configured.
	Services map[string]connwatch.ServiceStatus `json:"services,omitempty"`
}

// TimeResponse is the body of GET /api/time.
type TimeResponse struct {
	Datetime  string `json:"datetime"`
	Timezone  string `json:"timezone"`
	Formatted string `json:"formatted"`
	Timestamp int64  `json:"timestamp"`
}

// SampleItem is one entry of the demo catalog.
type SampleItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Metadata    string `json:"metadata"`
}

// SampleDataResponse is the body of GET /api/sample-data.
type SampleDataResponse struct {
	Title string       `json:"title"`
	Items []SampleItem `json:"items"`
}

// GenerateReportRequest is the body of POST /api/reports/generate.
type GenerateReportRequest struct {
	ReportType string `json:"reportType"`
}

// GenerateReportResponse acknowledges a queued report.
type GenerateReportResponse struct {
	ReportID      string `json:"reportId"`
	Status        string `json:"status"`
	EstimatedTime string `json:"estimatedTime"`
}

// AgentMessage is a pushed message, both as accepted by
// POST /api/agent-messages and as streamed on the websocket.
type AgentMessage struct {
	ID        string    `json:"id,omitempty"`
	Content   string    `json:"content"`
	Title     string    `json:"title,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// PushResponse acknowledges an accepted agent message.
type PushResponse struct {
	ID          string `json:"id"`
	Subscribers int    `json:"subscribers"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
