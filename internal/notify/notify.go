// Package notify drives the popup shown for an agent-initiated message:
// a short delay before it becomes visible, an auto-dismiss after the
// display period, and an exit transition before it is gone. Dismissal
// and clicks go through the same exit transition.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/wren/internal/session"
)

// State is the popup lifecycle state.
type State int

// Popup states, in lifecycle order.
const (
	Hidden State = iota
	Entering
	Visible
	Exiting
)

func (s State) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Entering:
		return "entering"
	case Visible:
		return "visible"
	case Exiting:
		return "exiting"
	}
	return "unknown"
}

// Timings are the popup delays.
type Timings struct {
	Enter   time.Duration // Hidden to Visible
	Display time.Duration // auto-dismiss, counted from Show
	Exit    time.Duration // exit transition
}

// DefaultTimings returns 100ms enter, 5s display, 300ms exit.
func DefaultTimings() Timings {
	return Timings{
		Enter:   100 * time.Millisecond,
		Display: 5 * time.Second,
		Exit:    300 * time.Millisecond,
	}
}

// Callbacks are invoked without the popup's lock held, usually from
// timer goroutines. Exactly one of OnDismiss or OnClick fires per shown
// popup that runs to the end of its exit transition. OnChange fires on
// every state transition.
type Callbacks struct {
	OnDismiss func(msg session.AgentMessage)
	OnClick   func(msg session.AgentMessage)
	OnChange  func(state State, msg session.AgentMessage)
}

type exitReason int

const (
	reasonDismiss exitReason = iota
	reasonClick
)

// Popup is the state machine for one popup slot. Showing a new message
// replaces the current one; every transition out of a state stops the
// timers that state started.
type Popup struct {
	mu      sync.Mutex
	timings Timings
	cb      Callbacks
	logger  *slog.Logger

	state   State
	msg     session.AgentMessage
	gen     uint64
	timers  []*time.Timer
	pending []change
}

// New creates a hidden popup.
func New(timings Timings, cb Callbacks, logger *slog.Logger) *Popup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Popup{timings: timings, cb: cb, logger: logger}
}

// State returns the current state and message.
func (p *Popup) State() (State, session.AgentMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.msg
}

// Show starts the popup for msg. A popup already in flight is dropped
// without firing its callbacks.
func (p *Popup) Show(msg session.AgentMessage) {
	p.mu.Lock()
	defer p.unlockAndNotify()

	p.stopTimersLocked()
	p.gen++
	gen := p.gen
	p.msg = msg
	p.setLocked(Entering)

	p.logger.Debug("popup shown", "message_id", msg.ID)

	p.timers = append(p.timers,
		time.AfterFunc(p.timings.Enter, func() { p.becomeVisible(gen) }),
		time.AfterFunc(p.timings.Display, func() { p.exit(gen, reasonDismiss) }),
	)
}

// Dismiss starts the exit transition; OnDismiss fires when it ends.
func (p *Popup) Dismiss() {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	p.exit(gen, reasonDismiss)
}

// Click starts the exit transition; OnClick fires when it ends.
func (p *Popup) Click() {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	p.exit(gen, reasonClick)
}

// Reset hides the popup immediately without firing OnDismiss or
// OnClick.
func (p *Popup) Reset() {
	p.mu.Lock()
	defer p.unlockAndNotify()
	p.stopTimersLocked()
	p.gen++
	if p.state != Hidden {
		p.setLocked(Hidden)
	}
}

func (p *Popup) becomeVisible(gen uint64) {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if gen != p.gen || p.state != Entering {
		return
	}
	p.setLocked(Visible)
}

func (p *Popup) exit(gen uint64, reason exitReason) {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if gen != p.gen || (p.state != Entering && p.state != Visible) {
		return
	}

	p.stopTimersLocked()
	p.setLocked(Exiting)
	p.timers = append(p.timers, time.AfterFunc(p.timings.Exit, func() { p.finish(gen, reason) }))
}

func (p *Popup) finish(gen uint64, reason exitReason) {
	p.mu.Lock()
	if gen != p.gen || p.state != Exiting {
		p.mu.Unlock()
		return
	}
	p.timers = nil
	msg := p.msg
	p.setLocked(Hidden)
	p.unlockAndNotify()

	switch reason {
	case reasonClick:
		if p.cb.OnClick != nil {
			p.cb.OnClick(msg)
		}
	default:
		if p.cb.OnDismiss != nil {
			p.cb.OnDismiss(msg)
		}
	}
}

type change struct {
	state State
	msg   session.AgentMessage
}

// setLocked records a transition; OnChange sees it after the lock is
// released.
func (p *Popup) setLocked(s State) {
	p.state = s
	p.pending = append(p.pending, change{state: s, msg: p.msg})
	if s == Hidden {
		p.msg = session.AgentMessage{}
	}
}

// unlockAndNotify releases p.mu and then reports pending transitions,
// so callbacks may call back into the popup.
func (p *Popup) unlockAndNotify() {
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if p.cb.OnChange == nil {
		return
	}
	for _, c := range pending {
		p.cb.OnChange(c.state, c.msg)
	}
}

func (p *Popup) stopTimersLocked() {
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}
