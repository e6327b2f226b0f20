package tui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nugget/wren/internal/agent"
	"github.com/nugget/wren/internal/api"
	"github.com/nugget/wren/internal/chatclient"
	"github.com/nugget/wren/internal/config"
	"github.com/nugget/wren/internal/notify"
	"github.com/nugget/wren/internal/reports"
	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/tools"
	"github.com/nugget/wren/internal/turn"
)

type fakeTransport struct {
	result *agent.Result
	err    error
}

func (f *fakeTransport) Chat(context.Context, *agent.Request) (*agent.Result, error) {
	return f.result, f.err
}

type fakeBackend struct {
	mu       sync.Mutex
	pushed   []string
	statuses []*reports.Report
	polls    int
}

func (f *fakeBackend) Push(_ context.Context, content, _ string) (*api.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, content)
	return &api.PushResponse{ID: "agent_msg_1", Subscribers: 1}, nil
}

func (f *fakeBackend) GenerateReport(_ context.Context, reportType string) (*api.GenerateReportResponse, error) {
	return &api.GenerateReportResponse{ReportID: "report_1", Status: "processing", EstimatedTime: "4 seconds"}, nil
}

func (f *fakeBackend) ReportStatus(context.Context, string) (*reports.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.statuses[min(f.polls, len(f.statuses)-1)]
	f.polls++
	return r, nil
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	err := r.Register(tools.GetCurrentTime, tools.Entry{
		RenderLocation: config.LocationDrawer,
		Renderer:       tools.RendererTime,
		Executor: tools.ExecutorFunc(func(context.Context, map[string]any) (any, error) {
			return map[string]any{"formatted": "Sunday, June 1, 2025 at 3:04:05 PM UTC", "timezone": "UTC"}, nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

type harness struct {
	m         model
	sess      *session.Engine
	transport *fakeTransport
	backend   *fakeBackend
	popup     *notify.Popup
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := newRegistry(t)
	sess := session.New(reg)
	tr := &fakeTransport{result: &agent.Result{Text: "Hello!", ToolCalls: []agent.ToolInvocation{}}}
	backend := &fakeBackend{}
	popup := notify.New(notify.Timings{Enter: time.Hour, Display: time.Hour, Exit: time.Hour}, notify.Callbacks{}, logger)
	t.Cleanup(popup.Reset)

	turns := turn.New(sess, tr, reg, logger)
	m := newModel(t.Context(), sess, turns, backend, reg, popup, Options{
		ServerURL:    "http://localhost:8080",
		PollInterval: time.Millisecond,
		Logger:       logger,
	})
	h := &harness{m: m, sess: sess, transport: tr, backend: backend, popup: popup}
	h.update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(model)
	return cmd
}

// drain runs cmd and every command it batches, feeding the resulting
// messages back through Update.
func (h *harness) drain(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.drain(c)
		}
	case tea.QuitMsg:
	default:
		h.drain(h.update(msg))
	}
}

// enter submits a slash command and drains its commands.
func (h *harness) enter(text string) {
	h.m.input.SetValue(text)
	h.drain(h.update(tea.KeyMsg{Type: tea.KeyEnter}))
}

// submit presses enter without running the returned commands. A
// finished turn restarts the input's blink loop, which never drains.
func (h *harness) submit(text string) tea.Cmd {
	h.m.input.SetValue(text)
	return h.update(tea.KeyMsg{Type: tea.KeyEnter})
}

func runTurn(h *harness, text string) turnDoneMsg {
	cmd := h.submit(text)
	for _, msg := range collect(cmd) {
		if done, ok := msg.(turnDoneMsg); ok {
			h.update(done)
			return done
		}
	}
	return turnDoneMsg{}
}

func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestSubmit_RunsTurnAndOpensChat(t *testing.T) {
	h := newHarness(t)
	h.transport.result = &agent.Result{
		Text:      "",
		ToolCalls: []agent.ToolInvocation{{ID: "call_1", ToolName: tools.GetCurrentTime}},
	}

	cmd := h.submit("what time is it?")
	if !h.m.sending || h.m.input.Focused() {
		t.Fatal("input should be disabled while the turn is in flight")
	}
	if !h.sess.ChatOpen() {
		t.Error("sending should open the chat surface")
	}

	for _, msg := range collect(cmd) {
		if done, ok := msg.(turnDoneMsg); ok {
			h.update(done)
		}
	}
	h.update(sessionChangedMsg{})

	if h.m.sending || !h.m.input.Focused() {
		t.Error("input not re-enabled after the turn")
	}
	if h.m.errLine != "" {
		t.Errorf("errLine = %q", h.m.errLine)
	}
	if len(h.m.snap.DrawerTools) != 1 {
		t.Fatalf("drawer = %+v", h.m.snap.DrawerTools)
	}
	view := h.m.View()
	if !strings.Contains(view, "Current Time") || !strings.Contains(view, "what time is it?") {
		t.Errorf("view missing transcript or drawer card:\n%s", view)
	}
}

func TestSubmit_IgnoredWhileSending(t *testing.T) {
	h := newHarness(t)
	h.m.sending = true
	h.m.input.SetValue("second")
	if cmd := h.update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("a second turn must not start while one is in flight")
	}
	if h.m.input.Value() != "second" {
		t.Error("pending input should be kept")
	}
}

func TestTransportError_RestoresInput(t *testing.T) {
	h := newHarness(t)
	h.transport.err = errors.New("connection refused")

	done := runTurn(h, "hello?")
	if done.err == nil {
		t.Fatal("expected a turn error")
	}
	if h.m.input.Value() != "hello?" {
		t.Errorf("input = %q, want the retracted message", h.m.input.Value())
	}
	if !strings.Contains(h.m.errLine, "connection refused") {
		t.Errorf("errLine = %q", h.m.errLine)
	}
	if got := h.sess.VisibleTranscript(); len(got) != 0 {
		t.Errorf("transcript = %+v, want rollback", got)
	}
}

func TestToolFailure_ShowsNotice(t *testing.T) {
	h := newHarness(t)
	h.transport.result = &agent.Result{
		Text:      "Launching.",
		ToolCalls: []agent.ToolInvocation{{ID: "call_1", ToolName: "launchRocket"}},
	}
	runTurn(h, "launch")
	if !strings.Contains(h.m.errLine, "launchRocket") {
		t.Errorf("errLine = %q, want the tool failure notice", h.m.errLine)
	}
}

func TestCommands(t *testing.T) {
	h := newHarness(t)

	h.enter("/context page=catalog count=3 admin=true")
	ctx := h.sess.Context()
	if ctx["page"] != "catalog" || ctx["count"] != float64(3) || ctx["admin"] != true {
		t.Errorf("context = %v", ctx)
	}

	h.enter("/clear-context")
	if len(h.sess.Context()) != 0 {
		t.Error("context not cleared")
	}

	h.sess.UpsertToolResult(session.ToolResult{ToolName: tools.GetCurrentTime, ToolID: "call_1"})
	h.enter("/remove " + tools.GetCurrentTime)
	if len(h.sess.ToolResults()) != 0 {
		t.Error("tool result not removed")
	}

	h.enter("/open")
	if !h.sess.ChatOpen() {
		t.Error("/open did not open the chat")
	}
	h.enter("/close")
	if h.sess.ChatOpen() {
		t.Error("/close did not close the chat")
	}

	h.enter("/bogus")
	if !strings.Contains(h.m.errLine, "unknown command /bogus") {
		t.Errorf("errLine = %q", h.m.errLine)
	}

	h.enter("/report weekly")
	if !strings.Contains(h.m.errLine, `unknown report type "weekly"`) {
		t.Errorf("errLine = %q", h.m.errLine)
	}

	h.enter("/notify Build finished")
	if len(h.backend.pushed) != 1 || h.backend.pushed[0] != "Build finished" {
		t.Errorf("pushed = %v", h.backend.pushed)
	}
	if !strings.Contains(h.m.status, "agent_msg_1") {
		t.Errorf("status = %q", h.m.status)
	}
}

func TestQuitCommand(t *testing.T) {
	h := newHarness(t)
	h.m.input.SetValue("/quit")
	cmd := h.update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("/quit should quit")
	}
}

func TestReportCommand_PushesReadyMessageOnce(t *testing.T) {
	h := newHarness(t)
	done := &reports.Report{
		ID:     "report_1",
		Type:   reports.TypeUsage,
		Status: reports.StatusCompleted,
		Data:   &reports.Data{Summary: "Usage Report - 6/1/2025", Period: "Last 30 days"},
	}
	h.backend.statuses = []*reports.Report{
		{ID: "report_1", Type: reports.TypeUsage, Status: reports.StatusProcessing},
		done,
	}

	// The server announces the same report over the stream.
	receive(h.sess, api.AgentMessage{ID: reports.ReadyMessageID("report_1"), Content: reports.ReadyMessage(done), Title: reports.ReadyTitle})

	h.enter("/report usage")

	msgs := h.sess.AgentMessages()
	if len(msgs) != 1 {
		t.Fatalf("agent messages = %d, want 1", len(msgs))
	}
	if msgs[0].Title != reports.ReadyTitle || !strings.Contains(msgs[0].Content, "Your usage report is ready!") {
		t.Errorf("message = %+v", msgs[0])
	}
	if h.m.status != "usage report ready" {
		t.Errorf("status = %q", h.m.status)
	}
}

func TestNotification_ShownOncePerMessage(t *testing.T) {
	h := newHarness(t)
	receive(h.sess, api.AgentMessage{ID: "agent_msg_a", Content: "Backup done", Title: "NAS"})

	h.drain(h.update(sessionChangedMsg{}))
	state, msg := h.popup.State()
	if state != notify.Entering || msg.ID != "agent_msg_a" {
		t.Fatalf("popup = %v %+v", state, msg)
	}

	// The message stays unread, but its id has been shown.
	h.popup.Reset()
	h.sess.DismissNotification("agent_msg_a")
	h.drain(h.update(sessionChangedMsg{}))
	if state, _ := h.popup.State(); state != notify.Hidden {
		t.Errorf("popup re-shown: %v", state)
	}
}

func TestNotification_ClickOpensChat(t *testing.T) {
	h := newHarness(t)
	receive(h.sess, api.AgentMessage{ID: "agent_msg_a", Content: "Backup done"})
	h.drain(h.update(sessionChangedMsg{}))

	h.update(tea.KeyMsg{Type: tea.KeyCtrlO})
	if !h.sess.ChatOpen() {
		t.Fatal("ctrl+o should open the chat")
	}
	if h.sess.HasUnread() {
		t.Error("opening the chat should mark messages read")
	}
	entries := h.sess.VisibleTranscript()
	if len(entries) != 1 || entries[0].Content != "Backup done" {
		t.Errorf("transcript = %+v", entries)
	}
}

func TestReceive_Dedupes(t *testing.T) {
	sess := session.New(nil)
	msg := api.AgentMessage{ID: "agent_msg_x", Content: "Hi", Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	receive(sess, msg)
	receive(sess, msg)
	got := sess.AgentMessages()
	if len(got) != 1 || !got[0].Timestamp.Equal(msg.Timestamp) {
		t.Errorf("messages = %+v", got)
	}
}

func TestParseContext(t *testing.T) {
	for _, bad := range []string{"", "novalue", "=x"} {
		if _, err := parseContext(bad); err == nil {
			t.Errorf("parseContext(%q) should fail", bad)
		}
	}
	got, err := parseContext(`user={"id":7} note=hello`)
	if err != nil {
		t.Fatal(err)
	}
	if u, _ := got["user"].(map[string]any); u["id"] != float64(7) || got["note"] != "hello" {
		t.Errorf("got %v", got)
	}
}

func TestFollowStream_LogsTerminalError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := chatclient.New("http://[::1", nil, logger)

	var sent []tea.Msg
	followStream(t.Context(), client, session.New(nil), func(m tea.Msg) { sent = append(sent, m) }, logger)

	if !strings.Contains(logs.String(), "agent message stream ended") {
		t.Errorf("logs = %q, want the terminal stream error", logs.String())
	}
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want one offline state", sent)
	}
	if st, ok := sent[0].(streamStateMsg); !ok || st.connected || st.err == nil {
		t.Errorf("sent = %#v", sent[0])
	}
}

func TestFollowStream_QuietOnCancel(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := chatclient.New("http://127.0.0.1:1", nil, logger)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	followStream(ctx, client, session.New(nil), func(tea.Msg) {}, logger)

	if strings.Contains(logs.String(), "agent message stream ended") {
		t.Errorf("cancelled stream logged as a failure: %q", logs.String())
	}
}
