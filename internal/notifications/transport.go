package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Transport carries a notice from the publisher to the hubs holding the
// patron's handles.
type Transport interface {
	Name() string
	Publish(ctx context.Context, patronID string, notice Notice) error
}

// MemoryTransport delivers straight into a hub in the same process.
type MemoryTransport struct {
	hub *Hub
}

func NewMemoryTransport(hub *Hub) (*MemoryTransport, error) {
	if hub == nil {
		return nil, errors.New("hub required for memory transport")
	}
	return &MemoryTransport{hub: hub}, nil
}

func (t *MemoryTransport) Name() string { return "memory" }

func (t *MemoryTransport) Publish(ctx context.Context, patronID string, notice Notice) error {
	t.hub.Deliver(ctx, patronID, notice)
	return nil
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// RedisTransport fans notices out over a Redis pub/sub channel.
type RedisTransport struct {
	client  redisPublisher
	channel string
}

func NewRedisTransport(client redisPublisher, channel string) (*RedisTransport, error) {
	if client == nil {
		return nil, errors.New("redis client required for redis transport")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, errors.New("redis notification channel required")
	}
	return &RedisTransport{client: client, channel: channel}, nil
}

func (t *RedisTransport) Name() string { return "redis" }

func (t *RedisTransport) Publish(ctx context.Context, patronID string, notice Notice) error {
	data, err := EncodeEnvelope(patronID, notice)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.channel, data); err != nil {
		return fmt.Errorf("redis publish %s: %w", t.channel, err)
	}
	return nil
}

// PubSubTransport publishes notices to a Google Cloud Pub/Sub topic.
type PubSubTransport struct {
	publisher *pubsub.Publisher
}

func NewPubSubTransport(publisher *pubsub.Publisher) (*PubSubTransport, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required for pubsub transport")
	}
	return &PubSubTransport{publisher: publisher}, nil
}

func (t *PubSubTransport) Name() string { return "pubsub" }

func (t *PubSubTransport) Publish(ctx context.Context, patronID string, notice Notice) error {
	data, err := EncodeEnvelope(patronID, notice)
	if err != nil {
		return err
	}
	result := t.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: messageAttributes(patronID),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (t *PubSubTransport) Stop() {
	t.publisher.Stop()
}

func messageAttributes(patronID string) map[string]string {
	return map[string]string{
		"patron_id":  patronID,
		"event_type": EventNotification,
	}
}
