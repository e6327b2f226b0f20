package agent

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nugget/wren/internal/llm"
)

// ToolInvocation is a tool call the model asked for, in the shape the
// client dispatches.
type ToolInvocation struct {
	ID         string         `json:"id"`
	ToolName   string         `json:"toolName"`
	Parameters map[string]any `json:"parameters"`
}

// Result is the normalized outcome of one turn.
type Result struct {
	Text      string           `json:"text"`
	ToolCalls []ToolInvocation `json:"toolCalls"`
}

// Normalize extracts the plain text and the tool invocations from a
// provider response. It never fails: anything it cannot interpret
// becomes empty text or is skipped, so whatever was understood still
// reaches the user. ToolCalls is never nil.
func Normalize(raw *llm.RawResponse) Result {
	result := Result{ToolCalls: []ToolInvocation{}}
	if raw == nil {
		return result
	}

	switch raw.Content.Kind() {
	case llm.ContentScalar:
		result.Text, _ = raw.Content.Scalar()
	case llm.ContentBlocks:
		var sb strings.Builder
		for _, b := range raw.Content.Blocks() {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		result.Text = sb.String()
	}

	for _, tc := range raw.ToolCalls {
		id := tc.ID
		if id == "" {
			id = newCallID()
		}
		result.ToolCalls = append(result.ToolCalls, ToolInvocation{
			ID:         id,
			ToolName:   tc.Name,
			Parameters: decodeArgs(tc.Args),
		})
	}
	return result
}

// decodeArgs returns the argument object, or an empty map when args are
// absent, null, malformed, or not an object.
func decodeArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return args
	}

	// Some models send the arguments object JSON-encoded as a string.
	var s string
	if json.Unmarshal(raw, &s) == nil {
		raw = []byte(s)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return args
	}
	return decoded
}

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// newCallID returns call_<unix ms>_<9 random base36 chars>.
func newCallID() string {
	var sb strings.Builder
	base := big.NewInt(int64(len(idAlphabet)))
	for range 9 {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			sb.WriteByte('0')
			continue
		}
		sb.WriteByte(idAlphabet[n.Int64()])
	}
	return fmt.Sprintf("call_%d_%s", time.Now().UnixMilli(), sb.String())
}
