package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// RedisFeed implements Feed over Redis pub/sub with one channel per video
type RedisFeed struct {
	redis *redis.Client
}

// NewRedisFeed creates a Redis-backed change feed
func NewRedisFeed(redisClient *redis.Client) *RedisFeed {
	return &RedisFeed{redis: redisClient}
}

func channelName(videoID string) string {
	return fmt.Sprintf("video:changes:%s", videoID)
}

// Publish sends a change event to the video's channel
func (f *RedisFeed) Publish(ctx context.Context, event ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := f.redis.Publish(ctx, channelName(event.VideoID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe opens a per-video subscription. The returned handle must be
// closed when the observer is torn down.
func (f *RedisFeed) Subscribe(ctx context.Context, videoID string) (Subscription, error) {
	pubsub := f.redis.Subscribe(ctx, channelName(videoID))

	// Wait for the subscription to be confirmed so no events are missed
	// between subscribe and the observer's first poll.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channelName(videoID), err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan ChangeEvent, 16),
	}
	go sub.pump(pubsub.Channel())

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan ChangeEvent
}

func (s *redisSubscription) pump(msgs <-chan *redis.Message) {
	defer close(s.events)
	for msg := range msgs {
		var event ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("realtime: dropping malformed change event: %v", err)
			continue
		}
		// Same contract as the in-memory feed: a consumer that stopped
		// draining loses events instead of wedging the pump. Observers
		// re-verify terminal state on their own, so drops are recoverable.
		select {
		case s.events <- event:
		default:
		}
	}
}

func (s *redisSubscription) Events() <-chan ChangeEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
