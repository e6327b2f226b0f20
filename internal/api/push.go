package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nugget/wren/internal/events"
)

const (
	pushBuffer   = 64
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	// Same policy as withCORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleAgentMessagePush publishes a message to every connected client.
// POST /api/agent-messages {"content": "...", "title": "..."}
func (s *Server) handleAgentMessagePush(w http.ResponseWriter, r *http.Request) {
	var msg AgentMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		s.errorResponse(w, http.StatusBadRequest, "content is required")
		return
	}

	// The server assigns the id so every client files the message under
	// the same key.
	if msg.ID == "" {
		msg.ID = "agent_msg_" + uuid.NewString()
	}
	s.bus.Publish(events.AgentMessage(events.SourceAPI, msg.ID, msg.Content, msg.Title))

	s.logger.Info("agent message pushed", "id", msg.ID, "subscribers", s.bus.SubscriberCount())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, PushResponse{ID: msg.ID, Subscribers: s.bus.SubscriberCount()}, s.logger)
}

// handleAgentMessageStream upgrades to a websocket and forwards every
// agent message published on the bus until the client goes away or the
// server shuts down.
// GET /api/agent-messages/ws
func (s *Server) handleAgentMessageStream(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "push channel not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.streams.Add(1)
	defer s.streams.Done()

	sub := s.bus.Subscribe(pushBuffer)
	defer s.bus.Unsubscribe(sub)

	log := s.logger.With("remote", r.RemoteAddr)
	log.Info("push client connected", "subscribers", s.bus.SubscriberCount())

	// The read side only exists to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-gone
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			log.Info("push client disconnected")
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug("push ping failed", "error", err)
				return
			}
		case e, ok := <-sub:
			if !ok {
				return
			}
			if e.Kind != events.KindAgentMessage {
				continue
			}
			if err := s.writeAgentMessage(conn, e); err != nil {
				log.Debug("push write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeAgentMessage(conn *websocket.Conn, e events.Event) error {
	msg := AgentMessage{
		ID:        e.Field("id"),
		Content:   e.Field("content"),
		Title:     e.Field("title"),
		Timestamp: e.Timestamp,
	}
	if ts, ok := e.Data["timestamp"].(time.Time); ok {
		msg.Timestamp = ts
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
