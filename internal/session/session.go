// Package session holds the client-resident state of one assistant
// session: the chat transcript, the caller's context snapshot, the
// de-duplicated tool results, and the queue of agent-initiated
// messages with its read and popup bookkeeping.
//
// The [Engine] exclusively owns these collections. Consumers mutate
// them only through its operations and read copies, so several render
// surfaces can share one engine without stepping on each other.
package session

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/wren/internal/config"
	"github.com/nugget/wren/internal/llm"
)

// RoleTool marks transcript bookkeeping entries for executed tools.
// They are never shown as chat text and never sent to the model.
const RoleTool = "tool"

// Entry is one transcript line. Tool markers carry ToolName, ToolID
// and Data; every other entry carries Content.
type Entry struct {
	ID        uint64    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	ToolName string `json:"toolName,omitempty"`
	ToolID   string `json:"toolId,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// ToolResult is the live result of a tool, at most one per ToolName.
type ToolResult struct {
	ToolName string `json:"toolName"`
	ToolID   string `json:"toolId"`
	Data     any    `json:"data"`
}

// AgentMessage is a message pushed into the session outside of any
// chat turn.
type AgentMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Title     string    `json:"title,omitempty"`
}

// PushOptions carries optional fields for PushAgentMessage. Zero values
// are filled in: a fresh id and the current time.
type PushOptions struct {
	ID        string
	Title     string
	Timestamp time.Time
}

// Locator resolves a tool name to its render location.
type Locator interface {
	RenderLocation(toolName string) string
}

// Engine is the session state owner. All methods are safe for
// concurrent use; each call is one atomic mutation or read.
type Engine struct {
	mu      sync.Mutex
	locator Locator

	context    map[string]any
	transcript []Entry
	nextID     uint64
	results    []ToolResult

	agentMessages []AgentMessage
	hasUnread     bool
	seen          map[string]bool
	current       string
	chatOpen      bool

	subs map[chan struct{}]struct{}
	now  func() time.Time
}

// New creates an empty session. locator decides which surface each
// tool result belongs to; nil puts everything in the drawer.
func New(locator Locator) *Engine {
	return &Engine{
		locator: locator,
		context: map[string]any{},
		seen:    map[string]bool{},
		subs:    map[chan struct{}]struct{}{},
		now:     time.Now,
	}
}

// Subscribe returns a channel that receives a signal after every
// mutation. Signals coalesce: a slow reader sees one pending signal,
// not one per change. Call the returned func to unsubscribe.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
	}
}

// changed notifies subscribers. Caller holds e.mu.
func (e *Engine) changed() {
	for ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Context

// MergeContext shallow-merges partial into the context snapshot; later
// keys win.
func (e *Engine) MergeContext(partial map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	maps.Copy(e.context, partial)
	e.changed()
}

// ReplaceContext discards the snapshot and uses full instead.
func (e *Engine) ReplaceContext(full map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.context = maps.Clone(full)
	if e.context == nil {
		e.context = map[string]any{}
	}
	e.changed()
}

// ClearContext resets the snapshot to empty.
func (e *Engine) ClearContext() {
	e.ReplaceContext(nil)
}

// Context returns a copy of the snapshot.
func (e *Engine) Context() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.context)
}

// Transcript

// AppendMessage appends a chat message and returns its entry id.
func (e *Engine) AppendMessage(role, content string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.appendLocked(Entry{Role: role, Content: content, Timestamp: e.now()})
	e.changed()
	return id
}

// AppendToolMarker records an executed tool in the transcript.
func (e *Engine) AppendToolMarker(r ToolResult) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.appendLocked(Entry{
		Role:      RoleTool,
		ToolName:  r.ToolName,
		ToolID:    r.ToolID,
		Data:      r.Data,
		Timestamp: e.now(),
	})
	e.changed()
	return id
}

func (e *Engine) appendLocked(entry Entry) uint64 {
	e.nextID++
	entry.ID = e.nextID
	e.transcript = append(e.transcript, entry)
	return entry.ID
}

// RemoveEntry deletes the transcript entry with id. It reports whether
// an entry was removed.
func (e *Engine) RemoveEntry(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := slices.IndexFunc(e.transcript, func(en Entry) bool { return en.ID == id })
	if i < 0 {
		return false
	}
	e.transcript = slices.Delete(e.transcript, i, i+1)
	e.changed()
	return true
}

// Transcript returns a copy of every entry, tool markers included.
func (e *Engine) Transcript() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.transcript)
}

// VisibleTranscript returns the entries shown as chat text.
func (e *Engine) VisibleTranscript() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, 0, len(e.transcript))
	for _, en := range e.transcript {
		if en.Role != RoleTool {
			out = append(out, en)
		}
	}
	return out
}

// History returns the transcript as provider-facing history, without
// tool markers.
func (e *Engine) History() []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]llm.Message, 0, len(e.transcript))
	for _, en := range e.transcript {
		if en.Role == RoleTool {
			continue
		}
		out = append(out, llm.Message{Role: en.Role, Content: en.Content})
	}
	return out
}

// Tool results

// UpsertToolResult stores r, replacing any result with the same tool
// name in place. A new name is appended.
func (e *Engine) UpsertToolResult(r ToolResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := slices.IndexFunc(e.results, func(x ToolResult) bool { return x.ToolName == r.ToolName }); i >= 0 {
		e.results[i] = r
	} else {
		e.results = append(e.results, r)
	}
	e.changed()
}

// RemoveToolResult drops the result for toolName. Removing an absent
// name is a no-op.
func (e *Engine) RemoveToolResult(toolName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.results)
	e.results = slices.DeleteFunc(e.results, func(x ToolResult) bool { return x.ToolName == toolName })
	if len(e.results) != n {
		e.changed()
	}
}

// ClearToolResults drops every result.
func (e *Engine) ClearToolResults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = nil
	e.changed()
}

// ToolResults returns every live result in insertion order.
func (e *Engine) ToolResults() []ToolResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.results)
}

// DrawerTools returns the results shown in the drawer.
func (e *Engine) DrawerTools() []ToolResult {
	return e.resultsAt(config.LocationDrawer)
}

// ComponentAreaTools returns the results shown in the component area.
func (e *Engine) ComponentAreaTools() []ToolResult {
	return e.resultsAt(config.LocationComponentArea)
}

func (e *Engine) resultsAt(location string) []ToolResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []ToolResult
	for _, r := range e.results {
		if e.locationOf(r.ToolName) == location {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) locationOf(toolName string) string {
	if e.locator == nil {
		return config.LocationDrawer
	}
	if e.locator.RenderLocation(toolName) == config.LocationComponentArea {
		return config.LocationComponentArea
	}
	return config.LocationDrawer
}

// Agent messages

// PushAgentMessage appends an unread agent message and raises the
// unread flag. While the chat surface is open the message is merged
// into the transcript and marked read straight away, and is never
// offered as a popup. Pushing an id that is already present is a
// no-op that returns the existing message.
func (e *Engine) PushAgentMessage(content string, opts PushOptions) AgentMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	if opts.ID != "" {
		if i := slices.IndexFunc(e.agentMessages, func(m AgentMessage) bool { return m.ID == opts.ID }); i >= 0 {
			return e.agentMessages[i]
		}
	}

	msg := AgentMessage{
		ID:        opts.ID,
		Content:   content,
		Timestamp: opts.Timestamp,
		Title:     opts.Title,
	}
	if msg.ID == "" {
		msg.ID = "agent_msg_" + uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = e.now()
	}

	e.agentMessages = append(e.agentMessages, msg)
	e.hasUnread = true
	if e.chatOpen {
		e.mergeUnreadLocked()
	}
	e.changed()
	return msg
}

// MarkAllAgentMessagesRead flags every agent message read and clears
// the unread flag. Messages are kept.
func (e *Engine) MarkAllAgentMessagesRead() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.markReadLocked()
	e.changed()
}

func (e *Engine) markReadLocked() {
	for i := range e.agentMessages {
		e.agentMessages[i].Read = true
	}
	e.hasUnread = false
}

// ClearAgentMessages drops every agent message and clears the unread
// flag. The seen set is kept so a re-pushed id is still not shown again.
func (e *Engine) ClearAgentMessages() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agentMessages = nil
	e.hasUnread = false
	e.changed()
}

// AgentMessages returns a copy of the agent message list.
func (e *Engine) AgentMessages() []AgentMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.agentMessages)
}

// HasUnread reports whether any agent message arrived since the last
// mark-read.
func (e *Engine) HasUnread() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasUnread
}

// Chat surface and notifications

// OpenChat marks the chat surface open. Unread agent messages are
// merged into the transcript as assistant entries, skipping any already
// present with the same content and timestamp, and then all messages
// are marked read. An in-flight popup is dropped.
func (e *Engine) OpenChat() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chatOpen = true
	e.current = ""
	e.mergeUnreadLocked()
	e.changed()
}

func (e *Engine) mergeUnreadLocked() {
	for _, msg := range e.agentMessages {
		if msg.Read {
			continue
		}
		exists := slices.ContainsFunc(e.transcript, func(en Entry) bool {
			return en.Role == llm.RoleAssistant && en.Content == msg.Content && en.Timestamp.Equal(msg.Timestamp)
		})
		if !exists {
			e.appendLocked(Entry{Role: llm.RoleAssistant, Content: msg.Content, Timestamp: msg.Timestamp})
		}
	}
	e.markReadLocked()
}

// CloseChat marks the chat surface closed.
func (e *Engine) CloseChat() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chatOpen = false
	e.changed()
}

// ChatOpen reports whether the chat surface is open.
func (e *Engine) ChatOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatOpen
}

// NextNotification picks the agent message to show as a popup: the
// first unread message whose id has never been shown. It returns false
// while another popup is current. The returned id is recorded so it is
// never offered again in this session.
func (e *Engine) NextNotification() (AgentMessage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != "" {
		return AgentMessage{}, false
	}
	for _, msg := range e.agentMessages {
		if msg.Read || e.seen[msg.ID] {
			continue
		}
		e.seen[msg.ID] = true
		e.current = msg.ID
		e.changed()
		return msg, true
	}
	return AgentMessage{}, false
}

// CurrentNotification returns the id of the popup in flight, or "".
func (e *Engine) CurrentNotification() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// DismissNotification clears the popup in flight if it is id. A stale
// dismiss for an earlier popup is ignored.
func (e *Engine) DismissNotification(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == id {
		e.current = ""
		e.changed()
	}
}

// Snapshot is a consistent copy of everything a render pass needs.
type Snapshot struct {
	Context            map[string]any
	Transcript         []Entry
	DrawerTools        []ToolResult
	ComponentAreaTools []ToolResult
	AgentMessages      []AgentMessage
	HasUnread          bool
	ChatOpen           bool
	CurrentPopup       string
}

// Snapshot returns a consistent copy of the session state. Transcript
// holds the visible entries only.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		Context:       maps.Clone(e.context),
		AgentMessages: slices.Clone(e.agentMessages),
		HasUnread:     e.hasUnread,
		ChatOpen:      e.chatOpen,
		CurrentPopup:  e.current,
	}
	for _, en := range e.transcript {
		if en.Role != RoleTool {
			s.Transcript = append(s.Transcript, en)
		}
	}
	for _, r := range e.results {
		if e.locationOf(r.ToolName) == config.LocationComponentArea {
			s.ComponentAreaTools = append(s.ComponentAreaTools, r)
		} else {
			s.DrawerTools = append(s.DrawerTools, r)
		}
	}
	return s
}
