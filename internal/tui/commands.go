package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nugget/wren/internal/reports"
	"github.com/nugget/wren/internal/session"
)

const helpText = "/open /close · /remove <tool> · /clear-tools · /context k=v … · /clear-context · " +
	"/report usage|performance · /notify <text> · /read · /clear-messages · /quit"

type command struct {
	name string
	arg  string
}

func parseCommand(line string) command {
	name, arg, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(line), "/"), " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

// parseContext reads space-separated key=value pairs. Values that parse
// as JSON (numbers, booleans, objects) keep their type; anything else is
// a string.
func parseContext(arg string) (map[string]any, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return nil, fmt.Errorf("usage: /context key=value ...")
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid context pair %q (want key=value)", f)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			out[k] = parsed
		} else {
			out[k] = v
		}
	}
	return out, nil
}

func (m model) runCommand(c command) (tea.Model, tea.Cmd) {
	m.errLine = ""

	switch c.name {
	case "open":
		if !m.sess.ChatOpen() {
			return m.toggleChat()
		}
	case "close":
		if m.sess.ChatOpen() {
			return m.toggleChat()
		}
	case "remove":
		if c.arg == "" {
			m.errLine = "usage: /remove <tool>"
			break
		}
		m.sess.RemoveToolResult(c.arg)
		m.status = "removed " + c.arg
	case "clear-tools":
		m.sess.ClearToolResults()
		m.status = "tool results cleared"
	case "context":
		partial, err := parseContext(c.arg)
		if err != nil {
			m.errLine = err.Error()
			break
		}
		m.sess.MergeContext(partial)
		m.status = "context updated"
	case "clear-context":
		m.sess.ClearContext()
		m.status = "context cleared"
	case "read":
		m.sess.MarkAllAgentMessagesRead()
		m.status = "messages marked read"
	case "clear-messages":
		m.sess.ClearAgentMessages()
		m.status = "messages cleared"
	case "report":
		reportType := c.arg
		if reportType == "" {
			reportType = reports.TypeUsage
		}
		if !reports.ValidType(reportType) {
			m.errLine = fmt.Sprintf("unknown report type %q (valid: %s, %s)", reportType, reports.TypeUsage, reports.TypePerformance)
			break
		}
		m.status = fmt.Sprintf("generating %s report…", reportType)
		return m, m.reportCmd(reportType)
	case "notify":
		if c.arg == "" {
			m.errLine = "usage: /notify <text>"
			break
		}
		return m, m.pushCmd(c.arg)
	case "help":
		m.status = helpText
	case "quit", "exit":
		return m, tea.Quit
	default:
		m.errLine = fmt.Sprintf("unknown command /%s (try /help)", c.name)
	}
	return m, nil
}

// reportCmd queues a report and polls it to completion. A finished
// report is announced as an agent message; the server announces it too
// under the same id, so the session keeps one copy.
func (m model) reportCmd(reportType string) tea.Cmd {
	ctx, backend, sess, interval := m.ctx, m.backend, m.sess, m.pollInterval
	logger := m.logger
	return func() tea.Msg {
		ack, err := backend.GenerateReport(ctx, reportType)
		if err != nil {
			return reportDoneMsg{reportType: reportType, err: err}
		}
		logger.Info("report queued", "report_id", ack.ReportID, "estimated", ack.EstimatedTime)

		r, err := reports.Poll(ctx, backend, ack.ReportID, interval, nil)
		if err != nil {
			return reportDoneMsg{reportType: reportType, err: err}
		}
		if r.Status == reports.StatusCompleted {
			sess.PushAgentMessage(reports.ReadyMessage(r), session.PushOptions{
				ID:    reports.ReadyMessageID(r.ID),
				Title: reports.ReadyTitle,
			})
		}
		return reportDoneMsg{reportType: reportType, report: r}
	}
}

func (m model) pushCmd(text string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		ack, err := backend.Push(ctx, text, "")
		if err != nil {
			return actionDoneMsg{err: fmt.Errorf("push failed: %w", err)}
		}
		return actionDoneMsg{status: fmt.Sprintf("pushed %s to %d client(s)", ack.ID, ack.Subscribers)}
	}
}
