package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	// QoS 1: at-least-once, so a failed handler gets the broker's redelivery.
	defaultQoS byte = 1
)

// BusConfig holds MQTT broker settings.
type BusConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// Bus is a thin MQTT wrapper that publishes and consumes enveloped events
// with identity propagation. Subscriptions are tracked and restored on
// reconnect. All methods are safe for concurrent use.
type Bus struct {
	client pahomqtt.Client
	logger *slog.Logger

	subMu         sync.RWMutex
	subscriptions map[string]HandlerFunc
}

// Connect establishes the broker connection.
func Connect(cfg BusConfig, logger *slog.Logger) (*Bus, error) {
	b := &Bus{
		logger:        logger,
		subscriptions: make(map[string]HandlerFunc),
	}

	// Manual acks plus a persistent session: a message is acknowledged only
	// after its handler succeeds, so failed messages stay with the broker.
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetAutoAckDisabled(true).
		SetOnConnectHandler(func(_ pahomqtt.Client) { b.resubscribe() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	b.client = pahomqtt.NewClient(opts)
	tok := b.client.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timeout after %v", defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return b, nil
}

// Publish seals payload into an envelope with the ambient principal and
// trace id injected, and publishes it to topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	headers := map[string]string{}
	if err := Inject(ctx, headers); err != nil {
		return err
	}

	data, err := Seal(headers, payload)
	if err != nil {
		return err
	}

	tok := b.client.Publish(topic, defaultQoS, false, data)
	if !tok.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish to %s: timeout after %v", topic, defaultPublishTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The consumed envelope's headers are
// rebuilt into a fresh context before the handler runs; a message whose
// headers cannot be extracted fails without invoking the handler.
func (b *Bus) Subscribe(topic string, handler HandlerFunc) error {
	b.subMu.Lock()
	b.subscriptions[topic] = handler
	b.subMu.Unlock()

	return b.subscribe(topic, handler)
}

func (b *Bus) subscribe(topic string, handler HandlerFunc) error {
	tok := b.client.Subscribe(topic, defaultQoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.dispatch(msg.Topic(), msg.Payload(), msg.Ack, handler)
	})
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("subscribe to %s: timeout", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return nil
}

// dispatch runs handler under the rebuilt message context and acknowledges
// only on success, leaving failed messages to the broker's redelivery policy.
// Messages that can never succeed (malformed envelope, invalid identity
// headers) are acknowledged and dropped: redelivery would replay the same
// bytes into the same failure.
func (b *Bus) dispatch(topic string, data []byte, ack func(), handler HandlerFunc) {
	env, err := Open(data)
	if err != nil {
		b.logger.Error("dropping malformed message", "topic", topic, "error", err)
		ack()
		return
	}

	ctx, err := Extract(context.Background(), env.Headers)
	if err != nil {
		b.logger.Error("dropping message with invalid identity headers", "topic", topic, "error", err)
		ack()
		return
	}

	if err := handler(ctx, env.Payload); err != nil {
		b.logger.Error("message handler failed, leaving unacknowledged", "topic", topic,
			"trace_id", env.Headers[HeaderTraceID], "error", err)
		return
	}
	ack()
}

// resubscribe restores subscriptions after a reconnect.
func (b *Bus) resubscribe() {
	b.subMu.RLock()
	subs := make(map[string]HandlerFunc, len(b.subscriptions))
	for t, h := range b.subscriptions {
		subs[t] = h
	}
	b.subMu.RUnlock()

	for topic, handler := range subs {
		if err := b.subscribe(topic, handler); err != nil {
			b.logger.Error("resubscribe failed", "topic", topic, "error", err)
		}
	}
}

// Close disconnects from the broker.
func (b *Bus) Close() {
	b.client.Disconnect(250)
}
