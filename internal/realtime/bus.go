// Package realtime fans out message-insert events to school-scoped
// subscribers. The bus is the seam between the chat synchronizer and the
// delivery infrastructure: tests run on the in-memory implementation,
// deployments put Redis pub/sub behind the same interface.
package realtime

import (
	"context"
	"sync"

	"github.com/kmohamed-dz/abcher/internal/model"
)

// Bus publishes confirmed message inserts and hands out per-school
// subscriptions.
type Bus interface {
	Publish(ctx context.Context, message model.Message) error
	Subscribe(ctx context.Context, schoolID string) (Subscription, error)
}

// Subscription is one open event stream. Close must be called exactly once
// per Subscribe; after Close the event channel is closed and no further
// events are delivered.
type Subscription interface {
	Events() <-chan model.Message
	Close() error
}

// subscriptionBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind loses events rather than blocking the publisher;
// the view recovers via a full reload.
const subscriptionBuffer = 64

// MemoryBus is an in-process Bus. It backs single-node deployments and all
// tests.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[*memorySubscription]struct{}{}}
}

// Publish delivers the message to every subscriber of its school.
func (b *MemoryBus) Publish(_ context.Context, message model.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[message.SchoolID] {
		select {
		case sub.events <- message:
		default:
			// subscriber is saturated, drop
		}
	}
	return nil
}

// Subscribe opens a stream of inserts scoped to one school.
func (b *MemoryBus) Subscribe(_ context.Context, schoolID string) (Subscription, error) {
	sub := &memorySubscription{
		bus:      b,
		schoolID: schoolID,
		events:   make(chan model.Message, subscriptionBuffer),
	}
	b.mu.Lock()
	if b.subs[schoolID] == nil {
		b.subs[schoolID] = map[*memorySubscription]struct{}{}
	}
	b.subs[schoolID][sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// SubscriberCount reports the open subscriptions for a school.
func (b *MemoryBus) SubscriberCount(schoolID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[schoolID])
}

type memorySubscription struct {
	bus      *MemoryBus
	schoolID string
	events   chan model.Message
	once     sync.Once
}

func (s *memorySubscription) Events() <-chan model.Message {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if set, ok := s.bus.subs[s.schoolID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.schoolID)
			}
		}
		s.bus.mu.Unlock()
		close(s.events)
	})
	return nil
}
