package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/nugget/wren/internal/config"
	"github.com/nugget/wren/internal/events"
)

// maxContentLen caps the text carried into an agent message.
const maxContentLen = 4000

// Bridge subscribes to the configured topics and republishes each
// message as an agent message on the event bus.
type Bridge struct {
	cfg        config.MQTTConfig
	instanceID string
	bus        *events.Bus
	limiter    *rateLimiter
	logger     *slog.Logger

	mu sync.Mutex
	cm *autopaho.ConnectionManager
}

// NewBridge creates a bridge but does not connect. Call [Bridge.Start]
// to connect and begin forwarding.
func NewBridge(cfg config.MQTTConfig, instanceID string, bus *events.Bus, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt")
	return &Bridge{
		cfg:        cfg,
		instanceID: instanceID,
		bus:        bus,
		limiter:    newRateLimiter(int64(cfg.RateLimitPerMinute), time.Minute, logger),
		logger:     logger,
	}
}

// Start connects to the broker and forwards messages until ctx is
// cancelled. Connection loss is retried in the background.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker)
			b.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(b.cfg.ClientID, b.instanceID),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					b.handle(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
			OnClientError: func(err error) {
				b.logger.Warn("mqtt client error", "error", err)
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.mu.Lock()
	b.cm = cm
	b.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil && ctx.Err() == nil {
		// autopaho keeps retrying.
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	b.limiter.run(ctx)
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cm := b.cm
	b.mu.Unlock()
	if cm == nil {
		return nil
	}
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx
// expires. It backs the mqtt health watcher.
func (b *Bridge) AwaitConnection(ctx context.Context) error {
	b.mu.Lock()
	cm := b.cm
	b.mu.Unlock()
	if cm == nil {
		return errors.New("mqtt bridge not started")
	}
	return cm.AwaitConnection(ctx)
}

func (b *Bridge) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	subs := make([]paho.SubscribeOptions, 0, len(b.cfg.Topics))
	for _, t := range b.cfg.Topics {
		subs = append(subs, paho.SubscribeOptions{Topic: t, QoS: 1})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		b.logger.Error("mqtt subscribe failed", "topics", b.cfg.Topics, "error", err)
		return
	}
	b.logger.Info("mqtt subscribed", "topics", b.cfg.Topics)
}

// handle turns one broker message into an agent message.
func (b *Bridge) handle(topic string, payload []byte) {
	if !b.limiter.allow() {
		return
	}

	content, title := decodePayload(topic, payload)
	if content == "" {
		b.logger.Debug("mqtt message ignored: empty content", "topic", topic)
		return
	}

	id := "agent_msg_" + uuid.NewString()
	b.bus.Publish(events.AgentMessage(events.SourceMQTT, id, content, title))
	b.logger.Debug("mqtt message forwarded", "topic", topic, "id", id, "payload_size", len(payload))
}

// decodePayload extracts the message text and title. A JSON object may
// carry the text as content, message, or text, with an optional title;
// anything else is taken as plain text. The title defaults to the
// topic.
func decodePayload(topic string, payload []byte) (content, title string) {
	title = topic

	var obj map[string]any
	if json.Unmarshal(payload, &obj) == nil {
		for _, key := range []string{"content", "message", "text"} {
			if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
				content = s
				break
			}
		}
		if t, ok := obj["title"].(string); ok && t != "" {
			title = t
		}
		if content == "" {
			// A JSON object without a text field is shown as-is.
			content = string(payload)
		}
	} else {
		content = string(payload)
	}

	content = strings.TrimSpace(content)
	if len(content) > maxContentLen {
		content = content[:maxContentLen] + "…"
	}
	return content, title
}
