package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/wren/internal/api"
)

// Backoff bounds for reconnecting the agent-message stream.
const (
	streamInitialDelay = time.Second
	streamMaxDelay     = 30 * time.Second
)

// streamURL converts the server URL to the websocket endpoint.
func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/api/agent-messages/ws"
	return u.String(), nil
}

// Stream follows the agent-message websocket and calls handle for every
// message, from the calling goroutine. It reconnects with exponential
// backoff until ctx ends, then returns ctx.Err(). onState, if non-nil,
// is told when the stream connects or drops.
func (c *Client) Stream(ctx context.Context, handle func(api.AgentMessage), onState func(connected bool, err error)) error {
	target, err := c.streamURL()
	if err != nil {
		return err
	}

	delay := streamInitialDelay
	for {
		connected, err := c.streamOnce(ctx, target, handle, onState)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = streamInitialDelay
		}
		if onState != nil {
			onState(false, err)
		}
		c.logger.Debug("agent message stream dropped", "error", err, "retry_in", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, streamMaxDelay)
	}
}

func (c *Client) streamOnce(ctx context.Context, target string, handle func(api.AgentMessage), onState func(bool, error)) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.Close()

	c.logger.Info("agent message stream connected", "url", target)
	if onState != nil {
		onState(true, nil)
	}

	// Unblock ReadJSON when ctx ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg api.AgentMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("server closed the stream")
			}
			return true, fmt.Errorf("read: %w", err)
		}
		if msg.Content == "" {
			continue
		}
		handle(msg)
	}
}
