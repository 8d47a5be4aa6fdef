package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/model"
)

// RedisBus implements Bus over Redis pub/sub so events published on one
// node reach subscribers on every node. Channel naming follows the webapp
// convention of one channel per school.
type RedisBus struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisBus creates a Bus over an open Redis client.
func NewRedisBus(client *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

func channelName(schoolID string) string {
	return "messages:" + schoolID
}

// Publish broadcasts the message on its school's channel.
func (b *RedisBus) Publish(ctx context.Context, message model.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(message.SchoolID), payload).Err(); err != nil {
		return fmt.Errorf("publishing message event: %w", err)
	}
	return nil
}

// Subscribe opens a school-scoped stream backed by a Redis subscription.
// The returned Subscription's Close tears the Redis subscription down and
// closes the event channel.
func (b *RedisBus) Subscribe(ctx context.Context, schoolID string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelName(schoolID))

	// Force the subscription to be established before returning so the
	// caller cannot miss events between Subscribe and the first receive.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channelName(schoolID), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan model.Message, subscriptionBuffer),
	}
	go sub.pump(b.log)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan model.Message
	once   sync.Once
}

func (s *redisSubscription) pump(log *zap.Logger) {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		var message model.Message
		if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
			log.Warn("dropping undecodable message event",
				zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		select {
		case s.events <- message:
		default:
			// subscriber is saturated, drop
		}
	}
}

func (s *redisSubscription) Events() <-chan model.Message {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
