// Package llm provides the provider adapters that turn an ordered list
// of role-tagged messages plus a tool schema set into a generated
// message. Adapters return the provider's response shape largely as-is
// (see [RawResponse]); interpreting it is the agent package's job.
package llm

import (
	"encoding/json"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged entry of the provider-facing transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSchema describes one tool the model may invoke. Parameters is a
// JSON Schema object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ContentKind tags which variant a [Content] holds.
type ContentKind int

const (
	// ContentNone means the provider returned no content at all.
	ContentNone ContentKind = iota
	// ContentScalar is a single plain string.
	ContentScalar
	// ContentBlocks is an ordered sequence of typed blocks.
	ContentBlocks
)

// Block is one typed element of block-structured content. Text is set
// for "text" blocks; Payload keeps the provider's raw JSON for every
// other block type.
type Block struct {
	Type    string
	Text    string
	Payload json.RawMessage
}

// Content is the generated message body: either a scalar string or an
// ordered list of typed blocks. The zero value is ContentNone.
type Content struct {
	kind   ContentKind
	text   string
	blocks []Block
}

// TextContent returns scalar content.
func TextContent(s string) Content {
	return Content{kind: ContentScalar, text: s}
}

// BlockContent returns block-structured content.
func BlockContent(blocks []Block) Content {
	return Content{kind: ContentBlocks, blocks: blocks}
}

// Kind reports which variant c holds.
func (c Content) Kind() ContentKind { return c.kind }

// Scalar returns the scalar text and true when c is ContentScalar.
func (c Content) Scalar() (string, bool) {
	return c.text, c.kind == ContentScalar
}

// Blocks returns the block list when c is ContentBlocks, nil otherwise.
func (c Content) Blocks() []Block {
	if c.kind != ContentBlocks {
		return nil
	}
	return c.blocks
}

// RawToolCall is a tool invocation as the provider reported it. ID may
// be empty (Ollama never assigns one). Args is the undecoded argument
// object and may be empty or malformed.
type RawToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// RawResponse is what a [Client] returns from Generate.
type RawResponse struct {
	Model      string
	Content    Content
	ToolCalls  []RawToolCall
	StopReason string

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}
