package docstore

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the Redis pub/sub channel used for change events.
const DefaultChannel = "summerjobs:docstore:changes"

// RedisNotifier publishes change events on a Redis channel and relays events
// from every replica (including this one) into a local Hub.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRedisNotifier returns nil when client is nil.
func NewRedisNotifier(client *redis.Client, channel string, hub *Hub) *RedisNotifier {
	if client == nil || hub == nil {
		return nil
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel, hub: hub}
}

// Publish sends collection on the channel.
func (n *RedisNotifier) Publish(ctx context.Context, collection string) error {
	if n == nil || n.client == nil {
		return errors.New("redis notifier not configured")
	}
	return n.client.Publish(ctx, n.channel, collection).Err()
}

// Run relays channel messages to the hub until ctx ends.
func (n *RedisNotifier) Run(ctx context.Context) error {
	if n == nil || n.client == nil {
		return errors.New("redis notifier not configured")
	}
	ps := n.client.Subscribe(ctx, n.channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed before relaying.
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	log.Info().Str("channel", n.channel).Msg("docstore: redis change relay started")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.hub.Notify(msg.Payload)
		}
	}
}
