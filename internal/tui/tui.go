// Package tui is Wren's terminal client. It runs chat turns against a
// Wren server, executes the tools the agent asks for, shows their
// results in the drawer and component-area panes, and pops up
// agent-initiated messages streamed from the server.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nugget/wren/internal/api"
	"github.com/nugget/wren/internal/chatclient"
	"github.com/nugget/wren/internal/notify"
	"github.com/nugget/wren/internal/session"
	"github.com/nugget/wren/internal/tools"
	"github.com/nugget/wren/internal/turn"
)

// Options configures the terminal client.
type Options struct {
	Client        *chatclient.Client
	Session       *session.Engine
	Tools         *tools.Registry
	ServerURL     string
	AssistantName string
	Timings       notify.Timings
	PollInterval  time.Duration
	Logger        *slog.Logger
}

// Run starts the client and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	if opts.Client == nil || opts.Session == nil || opts.Tools == nil {
		return errors.New("tui: client, session and tools are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tui")
	if opts.ServerURL == "" {
		opts.ServerURL = opts.Client.BaseURL()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Callbacks below only fire once the program is running.
	var p *tea.Program
	sess := opts.Session

	popup := notify.New(opts.Timings, notify.Callbacks{
		OnChange: func(notify.State, session.AgentMessage) { p.Send(popupChangedMsg{}) },
		OnDismiss: func(msg session.AgentMessage) {
			sess.DismissNotification(msg.ID)
		},
		OnClick: func(msg session.AgentMessage) {
			sess.DismissNotification(msg.ID)
			sess.OpenChat()
		},
	}, logger)
	defer popup.Reset()

	turns := turn.New(sess, opts.Client, opts.Tools, logger,
		turn.WithStateHook(func(s turn.State) { p.Send(turnStateMsg(s)) }))

	m := newModel(ctx, sess, turns, opts.Client, opts.Tools, popup, opts)
	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		watchSession(ctx, sess, p.Send)
	}()
	go func() {
		defer wg.Done()
		followStream(ctx, opts.Client, sess, p.Send, logger)
	}()

	_, err := p.Run()
	cancel()
	wg.Wait()

	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// watchSession forwards session change signals into the program until
// ctx ends.
func watchSession(ctx context.Context, sess *session.Engine, send func(tea.Msg)) {
	ch, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			send(sessionChangedMsg{})
		}
	}
}

// followStream feeds pushed agent messages into the session until ctx
// ends. A stream that gives up for any other reason is logged and shown
// as offline.
func followStream(ctx context.Context, client *chatclient.Client, sess *session.Engine, send func(tea.Msg), logger *slog.Logger) {
	err := client.Stream(ctx,
		func(msg api.AgentMessage) { receive(sess, msg) },
		func(connected bool, err error) { send(streamStateMsg{connected: connected, err: err}) },
	)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logger.Debug("agent message stream ended", "error", err)
	send(streamStateMsg{err: err})
}

// receive records a streamed agent message in the session.
func receive(sess *session.Engine, msg api.AgentMessage) session.AgentMessage {
	return sess.PushAgentMessage(msg.Content, session.PushOptions{
		ID:        msg.ID,
		Title:     msg.Title,
		Timestamp: msg.Timestamp,
	})
}
