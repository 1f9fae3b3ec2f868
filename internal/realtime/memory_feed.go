package realtime

import (
	"context"
	"sync"
)

// MemoryFeed is an in-process Feed used by tests and by deployments without
// Redis. Delivery semantics match RedisFeed: fan-out per video id, buffered,
// closed subscriptions receive nothing.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[string][]*memorySubscription
}

// NewMemoryFeed creates an in-memory change feed
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string][]*memorySubscription)}
}

// Publish fans an event out to all subscribers of the video
func (f *MemoryFeed) Publish(ctx context.Context, event ChangeEvent) error {
	f.mu.Lock()
	subs := make([]*memorySubscription, len(f.subs[event.VideoID]))
	copy(subs, f.subs[event.VideoID])
	f.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(event)
	}
	return nil
}

// Subscribe opens a per-video subscription
func (f *MemoryFeed) Subscribe(ctx context.Context, videoID string) (Subscription, error) {
	sub := &memorySubscription{
		feed:    f,
		videoID: videoID,
		events:  make(chan ChangeEvent, 16),
	}

	f.mu.Lock()
	f.subs[videoID] = append(f.subs[videoID], sub)
	f.mu.Unlock()

	return sub, nil
}

type memorySubscription struct {
	feed    *MemoryFeed
	videoID string
	events  chan ChangeEvent

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(event ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		// Subscriber is not draining; drop rather than block the publisher.
	}
}

func (s *memorySubscription) Events() <-chan ChangeEvent {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	f := s.feed
	f.mu.Lock()
	subs := f.subs[s.videoID]
	for i, sub := range subs {
		if sub == s {
			f.subs[s.videoID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(f.subs[s.videoID]) == 0 {
		delete(f.subs, s.videoID)
	}
	f.mu.Unlock()

	return nil
}
