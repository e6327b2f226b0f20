// Package turn drives one user chat turn end to end: it appends the
// user's message, asks the agent for a response, records the reply,
// and runs each requested tool in order, merging the results into the
// session.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/wren/internal/agent"
	"github.com/nugget/wren/internal/llm"
	"github.com/nugget/wren/internal/prompts"
	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/tools"
)

// ErrTurnInFlight is returned by SendMessage while another turn on the
// same controller has not finished.
var ErrTurnInFlight = errors.New("a message is already being sent")

// TransportError reports that the turn could not be delivered or the
// agent failed. The user's message has been retracted from the
// transcript; Text holds it so the caller can offer it for resend.
type TransportError struct {
	Text string
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("send message: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// State is the controller's turn state.
type State int

// Turn states. TextOnly and ToolCalls describe how the last successful
// turn was answered; the controller returns to Idle after each turn.
const (
	Idle State = iota
	Sending
	TextOnly
	ToolCalls
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case TextOnly:
		return "text-only"
	case ToolCalls:
		return "tool-calls"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Transport delivers a turn to the agent.
type Transport interface {
	Chat(ctx context.Context, req *agent.Request) (*agent.Result, error)
}

// Dispatcher executes tool calls by name.
type Dispatcher interface {
	Execute(ctx context.Context, name string, params map[string]any) (any, error)
}

// ToolFailure is one tool of a turn that did not produce a result.
type ToolFailure struct {
	ToolName string
	ToolID   string
	Err      error

	// Notice is the user-facing message naming the tool.
	Notice string
}

// Outcome describes a completed turn.
type Outcome struct {
	State    State // TextOnly or ToolCalls
	Reply    string
	Results  []session.ToolResult
	Failures []ToolFailure
}

// Controller runs turns against one session. At most one turn is in
// flight at a time.
type Controller struct {
	session   *session.Engine
	transport Transport
	tools     Dispatcher
	logger    *slog.Logger

	inFlight atomic.Bool

	mu      sync.Mutex
	state   State
	onState func(State)
}

// Option configures a Controller.
type Option func(*Controller)

// WithStateHook registers fn to be called on every state change.
func WithStateHook(fn func(State)) Option {
	return func(c *Controller) { c.onState = fn }
}

// New creates a controller.
func New(sess *session.Engine, transport Transport, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		session:   sess,
		transport: transport,
		tools:     dispatcher,
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	hook := c.onState
	c.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// SendMessage runs one turn for text.
//
// The user message is appended before the agent is called. If the
// agent cannot be reached the message is removed again and a
// *TransportError is returned. Tool failures do not fail the turn; they
// are reported in Outcome.Failures and the remaining tools still run.
func (c *Controller) SendMessage(ctx context.Context, text string) (*Outcome, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer c.inFlight.Store(false)
	defer c.setState(Idle)

	start := time.Now()

	// History is taken before the new message goes in; the agent adds
	// the new message itself.
	req := &agent.Request{
		Message: text,
		History: c.session.History(),
		Context: c.session.Context(),
	}
	userEntry := c.session.AppendMessage(llm.RoleUser, text)
	c.setState(Sending)

	result, err := c.transport.Chat(ctx, req)
	if err != nil {
		c.session.RemoveEntry(userEntry)
		c.setState(Failed)
		c.logger.Warn("turn failed", "error", err, "elapsed", time.Since(start))
		return nil, &TransportError{Text: text, Err: err}
	}

	if result == nil {
		result = &agent.Result{}
	}

	out := &Outcome{}

	if len(result.ToolCalls) == 0 {
		out.State = TextOnly
		c.setState(TextOnly)
		if strings.TrimSpace(result.Text) != "" {
			out.Reply = result.Text
			c.session.AppendMessage(llm.RoleAssistant, result.Text)
		}
		c.logger.Info("turn completed", "tool_calls", 0, "elapsed", time.Since(start))
		return out, nil
	}

	out.State = ToolCalls
	c.setState(ToolCalls)

	out.Reply = result.Text
	if strings.TrimSpace(result.Text) == "" {
		out.Reply = prompts.StandbyMessage
	}
	c.session.AppendMessage(llm.RoleAssistant, out.Reply)

	// Sequential: results and markers land in the order the model
	// declared the calls.
	for _, call := range result.ToolCalls {
		res, failure := c.runTool(ctx, call)
		if failure != nil {
			out.Failures = append(out.Failures, *failure)
		}
		if res != nil {
			out.Results = append(out.Results, *res)
		}
	}

	c.logger.Info("turn completed",
		"tool_calls", len(result.ToolCalls),
		"failures", len(out.Failures),
		"elapsed", time.Since(start),
	)
	return out, nil
}

func (c *Controller) runTool(ctx context.Context, call agent.ToolInvocation) (*session.ToolResult, *ToolFailure) {
	data, err := c.tools.Execute(tools.WithCallID(ctx, call.ID), call.ToolName, call.Parameters)
	if err == nil {
		res := session.ToolResult{ToolName: call.ToolName, ToolID: call.ID, Data: data}
		c.session.UpsertToolResult(res)
		c.session.AppendToolMarker(res)
		return &res, nil
	}

	failure := &ToolFailure{
		ToolName: call.ToolName,
		ToolID:   call.ID,
		Err:      err,
		Notice:   prompts.ToolFailureNotice(call.ToolName, err),
	}
	c.logger.Warn("tool call failed", "tool", call.ToolName, "call_id", call.ID, "error", err)

	// An unknown tool still gets a card so the user sees what the model
	// asked for.
	var unknown *tools.UnknownToolError
	if errors.As(err, &unknown) {
		res := session.ToolResult{
			ToolName: call.ToolName,
			ToolID:   call.ID,
			Data:     map[string]any{"error": prompts.UnknownToolNotice},
		}
		c.session.UpsertToolResult(res)
		return &res, failure
	}
	return nil, failure
}
