// Package events fans backend events out to interested listeners: the
// agent-message websocket, the report processor, and the MQTT bridge.
// A nil *Bus is valid and discards everything, so publishers never
// need to check whether anyone is listening.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sources name the component that published an event.
const (
	SourceAPI     = "api"
	SourceReports = "reports"
	SourceMQTT    = "mqtt"
	SourceAgent   = "agent"
)

// Kinds describe what happened.
const (
	// KindAgentMessage carries a message for the client's notification
	// channel. Data: id, content, title (optional), timestamp.
	KindAgentMessage = "agent_message"

	// KindTurnStart and KindTurnComplete bracket one /chat request.
	// Data: request_id; on complete also tool_calls, elapsed_ms.
	KindTurnStart    = "turn_start"
	KindTurnComplete = "turn_complete"

	// KindReportQueued and KindReportComplete track a report job.
	// Data: report_id, report_type; on complete also status.
	KindReportQueued   = "report_queued"
	KindReportComplete = "report_complete"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus broadcasts events to buffered subscriber channels. A subscriber
// that falls behind loses events instead of stalling the publisher.
type Bus struct {
	mu sync.RWMutex
	// Keyed by the receive side handed to the caller so Unsubscribe
	// can find the send side it must close.
	subs map[<-chan Event]chan Event

	dropped atomic.Uint64
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[<-chan Event]chan Event)}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit is shorthand for publishing an event stamped with the current
// time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe registers a listener with the given buffer size. Pair
// every call with Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscription and closes its channel. Unknown
// or already-removed channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	send, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(send)
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a
// subscriber's buffer was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Field returns the string value stored under key in e.Data, or "".
func (e Event) Field(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// AgentMessage builds a KindAgentMessage event. An empty id lets the
// receiver assign one.
func AgentMessage(source, id, content, title string) Event {
	now := time.Now()
	data := map[string]any{
		"content":   content,
		"timestamp": now,
	}
	if id != "" {
		data["id"] = id
	}
	if title != "" {
		data["title"] = title
	}
	return Event{Timestamp: now, Source: source, Kind: KindAgentMessage, Data: data}
}
