package notifications

import (
	"context"
	"errors"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// relay decodes wire envelopes into the local hub.
type relay struct {
	hub  *Hub
	logg *logger.Logger
}

func (r relay) deliver(ctx context.Context, data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "discarding malformed notification")
		return
	}
	r.hub.Deliver(ctx, env.PatronID, env.Payload)
}

type redisSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
}

// RedisBridge relays notices published on a Redis channel into the local hub.
type RedisBridge struct {
	relay
	client  redisSubscriber
	channel string
}

func NewRedisBridge(client redisSubscriber, channel string, hub *Hub, logg *logger.Logger) (*RedisBridge, error) {
	if client == nil {
		return nil, errors.New("redis client required for notification bridge")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, errors.New("redis notification channel required")
	}
	if hub == nil || logg == nil {
		return nil, errors.New("hub and logger required for notification bridge")
	}
	return &RedisBridge{relay: relay{hub: hub, logg: logg}, client: client, channel: channel}, nil
}

// Run relays until ctx is canceled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub, err := b.client.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer sub.Close()

	b.logg.Info(b.logg.WithField(ctx, "channel", b.channel), "notification bridge subscribed")
	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis notification channel closed")
			}
			b.deliver(ctx, []byte(msg.Payload))
		}
	}
}

// PubSubBridge relays notices from a Pub/Sub subscription into the local hub.
type PubSubBridge struct {
	relay
	subscriber *pubsub.Subscriber
}

func NewPubSubBridge(subscriber *pubsub.Subscriber, hub *Hub, logg *logger.Logger) (*PubSubBridge, error) {
	if subscriber == nil {
		return nil, errors.New("pubsub subscription required for notification bridge")
	}
	if hub == nil || logg == nil {
		return nil, errors.New("hub and logger required for notification bridge")
	}
	return &PubSubBridge{relay: relay{hub: hub, logg: logg}, subscriber: subscriber}, nil
}

// Run relays until ctx is canceled. Notices are ephemeral, so every message is
// acked whether or not a subscriber was connected.
func (b *PubSubBridge) Run(ctx context.Context) error {
	return b.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if msg.Attributes["event_type"] != EventNotification {
			msg.Ack()
			return
		}
		b.deliver(ctx, msg.Data)
		msg.Ack()
	})
}
