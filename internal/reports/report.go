// Package reports runs the demo background job behind the agent-message
// channel: a report is queued, completes a few seconds later, and its
// completion is announced to the client as an agent-initiated message.
package reports

import (
	"fmt"
	"strings"
)

// Status is a report job state.
type Status string

// Report job states.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Done reports whether the job has stopped changing.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Report types.
const (
	TypeUsage       = "usage"
	TypePerformance = "performance"
)

// ValidType reports whether t names a report this service can build.
func ValidType(t string) bool {
	return t == TypeUsage || t == TypePerformance
}

// ReadyTitle is the title of the agent message announcing a finished
// report.
const ReadyTitle = "📊 Report Ready"

// Metrics are the figures in a finished report.
type Metrics struct {
	TotalRequests   int    `json:"totalRequests"`
	AvgResponseTime string `json:"avgResponseTime"`
	SuccessRate     string `json:"successRate"`
	ActiveUsers     int    `json:"activeUsers"`
}

// Data is the body of a finished report.
type Data struct {
	Summary string  `json:"summary"`
	Metrics Metrics `json:"metrics"`
	Period  string  `json:"period"`
}

// Report is one job as returned by the status endpoint.
type Report struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      Status `json:"status"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
	Data        *Data  `json:"data,omitempty"`
}

// ReadyMessageID is the agent message id used for r's completion
// notice. Every path that announces the same report uses it, so the
// session keeps one copy.
func ReadyMessageID(reportID string) string {
	return "report_ready_" + reportID
}

// ReadyMessage formats the completion notice for a finished report.
func ReadyMessage(r *Report) string {
	if r.Data == nil {
		return fmt.Sprintf("Your %s report is ready!", r.Type)
	}
	m := r.Data.Metrics

	var b strings.Builder
	fmt.Fprintf(&b, "Your %s report is ready!\n\n", r.Type)
	fmt.Fprintf(&b, "Summary: %s\n\n", r.Data.Summary)
	b.WriteString("Key Metrics:\n")
	fmt.Fprintf(&b, "• Total Requests: %d\n", m.TotalRequests)
	fmt.Fprintf(&b, "• Avg Response Time: %s\n", m.AvgResponseTime)
	fmt.Fprintf(&b, "• Success Rate: %s\n", m.SuccessRate)
	fmt.Fprintf(&b, "• Active Users: %d\n\n", m.ActiveUsers)
	fmt.Fprintf(&b, "Period: %s", r.Data.Period)
	return b.String()
}
