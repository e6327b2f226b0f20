package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nugget/wren/internal/api"
	"github.com/nugget/wren/internal/llm"
	"github.com/nugget/wren/internal/notify"
	"github.com/nugget/wren/internal/prompts"
	"github.com/nugget/wren/internal/reports"
	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/turn"
)

const (
	drawerWidth    = 36
	reservedHeight = 10
)

// Backend is the part of the server the client calls outside of chat
// turns.
type Backend interface {
	Push(ctx context.Context, content, title string) (*api.PushResponse, error)
	GenerateReport(ctx context.Context, reportType string) (*api.GenerateReportResponse, error)
	reports.StatusSource
}

// Renderers maps a tool name to the card renderer for its results.
type Renderers interface {
	Renderer(toolName string) string
}

type sessionChangedMsg struct{}

type popupChangedMsg struct{}

type streamStateMsg struct {
	connected bool
	err       error
}

type turnStateMsg turn.State

type turnDoneMsg struct {
	outcome *turn.Outcome
	err     error
}

type actionDoneMsg struct {
	status string
	err    error
}

type reportDoneMsg struct {
	reportType string
	report     *reports.Report
	err        error
}

type model struct {
	ctx          context.Context
	sess         *session.Engine
	turns        *turn.Controller
	backend      Backend
	renderers    Renderers
	popup        *notify.Popup
	pollInterval time.Duration
	logger       *slog.Logger

	serverURL     string
	assistantName string

	snap       session.Snapshot
	popupState notify.State
	popupMsg   session.AgentMessage
	turnState  turn.State
	sending    bool
	streamUp   bool
	status     string
	errLine    string

	width  int
	height int

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	theme      theme
}

func newModel(ctx context.Context, sess *session.Engine, turns *turn.Controller, backend Backend, renderers Renderers, popup *notify.Popup, opts Options) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask something, or /help"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	transcript := viewport.New(0, 0)
	transcript.MouseWheelEnabled = true

	name := opts.AssistantName
	if name == "" {
		name = "Assistant"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	return model{
		ctx:           ctx,
		sess:          sess,
		turns:         turns,
		backend:       backend,
		renderers:     renderers,
		popup:         popup,
		pollInterval:  interval,
		logger:        logger,
		serverURL:     opts.ServerURL,
		assistantName: name,
		status:        "ready",
		input:         input,
		transcript:    transcript,
		spinner:       sp,
		theme:         newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		func() tea.Msg { return sessionChangedMsg{} },
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyEsc:
			if m.popupState != notify.Hidden {
				return m, m.popupCmd(m.popup.Dismiss)
			}
			return m, nil
		case tea.KeyCtrlO:
			if m.popupState == notify.Visible {
				return m, m.popupCmd(m.popup.Click)
			}
			return m.toggleChat()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.transcript, cmd = m.transcript.Update(msg)
			return m, cmd
		}

	case sessionChangedMsg:
		m.refresh()
		return m, m.notifyCmd()

	case popupChangedMsg:
		m.popupState, m.popupMsg = m.popup.State()
		if m.popupState == notify.Hidden {
			return m, m.notifyCmd()
		}
		return m, nil

	case streamStateMsg:
		m.streamUp = msg.connected
		if !msg.connected && msg.err != nil {
			m.logger.Debug("agent message stream down", "error", msg.err)
		}
		return m, nil

	case turnStateMsg:
		m.turnState = turn.State(msg)
		return m, nil

	case turnDoneMsg:
		return m.finishTurn(msg)

	case actionDoneMsg:
		if msg.err != nil {
			m.errLine = msg.err.Error()
		} else {
			m.errLine = ""
			m.status = msg.status
		}
		return m, nil

	case reportDoneMsg:
		switch {
		case msg.err != nil:
			m.errLine = fmt.Sprintf("%s report failed: %v", msg.reportType, msg.err)
		case msg.report.Status == reports.StatusFailed:
			m.errLine = fmt.Sprintf("%s report failed", msg.reportType)
		default:
			m.status = fmt.Sprintf("%s report ready", msg.reportType)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles enter: slash commands run immediately, anything else
// starts a turn unless one is already in flight.
func (m model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}
	if strings.HasPrefix(line, "/") {
		m.input.Reset()
		return m.runCommand(parseCommand(line))
	}
	if m.sending {
		return m, nil
	}

	m.input.Reset()
	m.input.Blur()
	m.sending = true
	m.errLine = ""

	var cmds []tea.Cmd
	if !m.sess.ChatOpen() {
		m.sess.OpenChat()
		cmds = append(cmds, m.popupCmd(m.popup.Reset))
	}

	ctx, turns := m.ctx, m.turns
	cmds = append(cmds, func() tea.Msg {
		out, err := turns.SendMessage(ctx, line)
		return turnDoneMsg{outcome: out, err: err}
	})
	return m, tea.Batch(cmds...)
}

func (m model) finishTurn(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.input.Focus()

	var transportErr *turn.TransportError
	switch {
	case errors.As(msg.err, &transportErr):
		// The message was retracted; offer it back for resend.
		m.input.SetValue(transportErr.Text)
		m.input.CursorEnd()
		m.errLine = prompts.TurnFailureNotice(transportErr.Err) + " Press enter to retry."
	case msg.err != nil:
		m.errLine = msg.err.Error()
	case len(msg.outcome.Failures) > 0:
		notices := make([]string, 0, len(msg.outcome.Failures))
		for _, f := range msg.outcome.Failures {
			notices = append(notices, f.Notice)
		}
		m.errLine = strings.Join(notices, " ")
	default:
		m.errLine = ""
	}
	return m, textinput.Blink
}

func (m model) toggleChat() (tea.Model, tea.Cmd) {
	if m.sess.ChatOpen() {
		m.sess.CloseChat()
		m.status = "chat closed"
		return m, nil
	}
	m.sess.OpenChat()
	m.status = "chat open"
	return m, m.popupCmd(m.popup.Reset)
}

// notifyCmd shows the next unseen agent message when no popup is up.
func (m model) notifyCmd() tea.Cmd {
	if st, _ := m.popup.State(); st != notify.Hidden {
		return nil
	}
	msg, ok := m.sess.NextNotification()
	if !ok {
		return nil
	}
	popup := m.popup
	return m.popupCmd(func() { popup.Show(msg) })
}

// popupCmd runs a popup transition off the update loop; the popup's
// callbacks send messages back into the program.
func (m model) popupCmd(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return popupChangedMsg{}
	}
}

func (m *model) layout() {
	w := m.width - 4
	if len(m.snap.DrawerTools) > 0 {
		w -= drawerWidth + 2
	}
	m.transcript.Width = max(w, 20)
	m.transcript.Height = max(m.height-reservedHeight, 3)
	m.input.Width = max(m.width-8, 10)
}

func (m *model) refresh() {
	m.snap = m.sess.Snapshot()
	m.layout()
	m.transcript.SetContent(m.transcriptView())
	m.transcript.GotoBottom()
}

func (m model) transcriptView() string {
	if len(m.snap.Transcript) == 0 {
		return m.theme.help.Render("No messages yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(m.transcript.Width, 20))

	var b strings.Builder
	for i, en := range m.snap.Transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if en.Role == llm.RoleUser {
			b.WriteString(m.theme.user.Render("You") + "\n")
			b.WriteString(wrap.Render(en.Content))
			continue
		}
		b.WriteString(m.theme.assistant.Render(m.assistantName) + "\n")
		b.WriteString(wrap.Render(renderMarkdown(en.Content)))
	}
	return b.String()
}

func (m model) cards(results []session.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		renderer := ""
		if m.renderers != nil {
			renderer = m.renderers.Renderer(r.ToolName)
		}
		parts = append(parts, renderCard(r, renderer))
	}
	return strings.Join(parts, "\n\n")
}

func (m model) headerView() string {
	stream := "○ offline"
	if m.streamUp {
		stream = "● live"
	}
	parts := []string{"Wren", m.serverURL, stream}
	if n := unreadCount(m.snap.AgentMessages); n > 0 && m.snap.HasUnread {
		parts = append(parts, m.theme.badge.Render(fmt.Sprintf("✉ %d unread", n)))
	}
	if n := len(m.snap.Context); n > 0 {
		parts = append(parts, fmt.Sprintf("context: %d", n))
	}
	return m.theme.header.Render(strings.Join(parts, "  "))
}

func (m model) popupView() string {
	if m.popupState != notify.Visible && m.popupState != notify.Exiting {
		return ""
	}
	title := m.popupMsg.Title
	if title == "" {
		title = "New message"
	}
	body := m.theme.title.Render(title) + "\n" + truncate(m.popupMsg.Content, 160) +
		"\n" + m.theme.help.Render("ctrl+o open · esc dismiss")
	if m.popupState == notify.Exiting {
		return m.theme.popupDim.Render(body)
	}
	return m.theme.popup.Render(body)
}

func (m model) View() string {
	sections := []string{m.headerView()}

	if m.snap.ChatOpen {
		chat := m.theme.panel.Render(m.transcript.View())
		if len(m.snap.DrawerTools) > 0 {
			drawer := m.theme.panel.Width(drawerWidth).Render(
				m.theme.title.Render("Tools") + "\n" + m.cards(m.snap.DrawerTools))
			chat = lipgloss.JoinHorizontal(lipgloss.Top, chat, drawer)
		}
		sections = append(sections, chat)
	} else {
		sections = append(sections, m.theme.help.Render("Chat closed. Press ctrl+o or type /open."))
	}

	if len(m.snap.ComponentAreaTools) > 0 {
		sections = append(sections, m.theme.panel.Render(m.cards(m.snap.ComponentAreaTools)))
	}
	if p := m.popupView(); p != "" {
		sections = append(sections, p)
	}

	statusLine := m.theme.status.Render(m.status)
	if m.sending {
		statusLine = m.spinner.View() + " " + m.theme.status.Render(m.turnState.String())
	}
	if m.errLine != "" {
		statusLine += "  " + m.theme.errorLine.Render(m.errLine)
	}
	sections = append(sections,
		statusLine,
		m.theme.input.Render(m.input.View()),
		m.theme.help.Render("enter send · ctrl+o chat · esc dismiss · /help · ctrl+c quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func unreadCount(msgs []session.AgentMessage) int {
	n := 0
	for _, msg := range msgs {
		if !msg.Read {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
