package fanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// RedisBus fans out over a redis PUBLISH/SUBSCRIBE channel.
type RedisBus struct {
	client   redis.UniversalClient
	channel  string
	envelope envelope
}

// NewRedisBus creates a bus on channel (DefaultChannel when empty)
func NewRedisBus(client redis.UniversalClient, channel, origin string, clock clockwork.Clock) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:   client,
		channel:  channel,
		envelope: newEnvelope(origin, clock),
	}
}

func (b *RedisBus) Publish(ctx context.Context, room *models.Room) error {
	data, err := b.envelope.encode(room)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			dispatch(ctx, "redis", []byte(msg.Payload), handler)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	log.Info().Str("channel", b.channel).Msg("subscribed to room updates")
	return sub, nil
}

func (b *RedisBus) Close() error {
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	once   sync.Once
	done   chan struct{}
}

func (s *redisSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
