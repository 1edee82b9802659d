package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tcriess/lightspeed-presence/config"
	"github.com/tcriess/lightspeed-presence/globals"
)

// RedisBackend delegates broadcast to Redis pub/sub so that room members
// spread over several nodes all receive the fan-out. Every node, including
// the publishing one, delivers on receipt of the subscribed message.
type RedisBackend struct {
	client redis.UniversalClient
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewRedisBackend(cfg *config.BackendConfig) (*RedisBackend, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBackend) Subscribe(handler func(channel string, payload []byte)) error {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.pubsub = b.client.PSubscribe(ctx, "presence.*")
	if _, err := b.pubsub.Receive(ctx); err != nil {
		cancel()
		return fmt.Errorf("could not subscribe: %w", err)
	}
	ch := b.pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					globals.AppLogger.Warn("redis pubsub channel closed")
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (b *RedisBackend) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			globals.AppLogger.Error("could not close pubsub", "error", err)
		}
	}
	return b.client.Close()
}
