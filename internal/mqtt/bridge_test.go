package mqtt

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/wren/internal/config"
	"github.com/nugget/wren/internal/events"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantText  string
		wantTitle string
	}{
		{"plain text", "  Garage door open  ", "Garage door open", "home/alerts"},
		{"json content", `{"content":"Backup done","title":"NAS"}`, "Backup done", "NAS"},
		{"json message", `{"message":"Laundry finished"}`, "Laundry finished", "home/alerts"},
		{"json text", `{"text":"Doorbell"}`, "Doorbell", "home/alerts"},
		{"json without text", `{"state":"on"}`, `{"state":"on"}`, "home/alerts"},
		{"json blank content falls through", `{"content":" ","text":"fallback"}`, "fallback", "home/alerts"},
		{"empty", "", "", "home/alerts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, title := decodePayload("home/alerts", []byte(tt.payload))
			if text != tt.wantText || title != tt.wantTitle {
				t.Errorf("decodePayload() = %q, %q; want %q, %q", text, title, tt.wantText, tt.wantTitle)
			}
		})
	}
}

func TestDecodePayload_Truncates(t *testing.T) {
	text, _ := decodePayload("t", []byte(strings.Repeat("x", maxContentLen+10)))
	if !strings.HasSuffix(text, "…") || len(text) != maxContentLen+len("…") {
		t.Errorf("len = %d", len(text))
	}
}

func TestHandle_PublishesAgentMessage(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(4)
	defer bus.Unsubscribe(ch)

	b := NewBridge(config.MQTTConfig{RateLimitPerMinute: 10}, "", bus, quietLogger())
	b.handle("home/alerts", []byte(`{"content":"Water leak detected","title":"Basement"}`))

	select {
	case e := <-ch:
		if e.Kind != events.KindAgentMessage || e.Source != events.SourceMQTT {
			t.Errorf("event = %+v", e)
		}
		if e.Field("content") != "Water leak detected" || e.Field("title") != "Basement" {
			t.Errorf("data = %+v", e.Data)
		}
		if !strings.HasPrefix(e.Field("id"), "agent_msg_") {
			t.Errorf("id = %q", e.Field("id"))
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestHandle_RateLimited(t *testing.T) {
	bus := events.New()
	ch := bus.Subscribe(16)
	defer bus.Unsubscribe(ch)

	b := NewBridge(config.MQTTConfig{RateLimitPerMinute: 2}, "", bus, quietLogger())
	for range 5 {
		b.handle("t", []byte("ping"))
	}
	if got := len(ch); got != 2 {
		t.Errorf("forwarded %d messages, want 2", got)
	}
}

func TestRateLimiter_ResetLogsDrops(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	rl := newRateLimiter(1, time.Minute, logger)

	rl.allow()
	if rl.allow() {
		t.Fatal("second message should be dropped")
	}
	rl.reset()

	if !strings.Contains(buf.String(), "dropped=1") {
		t.Errorf("log = %s", buf.String())
	}
	if !rl.allow() {
		t.Error("window did not reset")
	}
}

func TestLoadOrCreateInstanceID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	id1, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	id2, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if id1 == "" || id1 != id2 {
		t.Errorf("ids = %q, %q; want stable non-empty", id1, id2)
	}

	raw, _ := os.ReadFile(filepath.Join(dir, "mqtt_instance_id"))
	if strings.TrimSpace(string(raw)) != id1 {
		t.Errorf("persisted = %q", raw)
	}
}

func TestClientID(t *testing.T) {
	for _, tt := range []struct{ prefix, id, want string }{
		{"wren", "0190b6a2-7c1e-7d3f-9a2b-1234567890ab", "wren-1234567890ab"},
		{"wren", "", "wren"},
	} {
		if got := clientID(tt.prefix, tt.id); got != tt.want {
			t.Errorf("clientID(%q, %q) = %q, want %q", tt.prefix, tt.id, got, tt.want)
		}
	}
}

func TestBridge_NotStarted(t *testing.T) {
	b := NewBridge(config.MQTTConfig{}, "", events.New(), quietLogger())

	if err := b.AwaitConnection(t.Context()); err == nil {
		t.Error("AwaitConnection before Start should fail")
	}
	if err := b.Stop(t.Context()); err != nil {
		t.Errorf("Stop before Start = %v, want nil", err)
	}
}
