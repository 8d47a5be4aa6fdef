package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/realtime"
)

// Conversation is one open view onto the messages exchanged with a peer.
// It is fed by two paths, the optimistic insert response on Send and the
// school's broadcast stream, and reconciles them into a single list that is
// always sorted ascending by creation time and free of duplicates.
//
// The caller owns the lifecycle: Open once, Close exactly once. Switching
// peers means closing the old conversation before opening the next, so
// events can never leak across views.
type Conversation struct {
	svc      *Service
	schoolID string
	self     string
	peer     string

	sub realtime.Subscription

	mu   sync.Mutex
	byID map[string]struct{}
	list []model.Message

	closeOnce sync.Once
}

// Open loads the conversation with peer and starts applying broadcast
// events to it. The subscription is established before the history load so
// an insert landing in between is caught by one path or the other; the
// dedup rule collapses any overlap.
func (s *Service) Open(ctx context.Context, schoolID, self, peer string) (*Conversation, error) {
	sub, err := s.bus.Subscribe(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("subscribing to school stream: %w", err)
	}

	conv := &Conversation{
		svc:      s,
		schoolID: schoolID,
		self:     self,
		peer:     peer,
		sub:      sub,
		byID:     map[string]struct{}{},
	}
	go conv.pump()

	history, err := s.messages.ListConversation(ctx, schoolID, self, peer)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	for _, message := range history {
		conv.apply(message)
	}
	return conv, nil
}

// pump applies broadcast events until the subscription closes.
func (c *Conversation) pump() {
	for message := range c.sub.Events() {
		if !message.InConversation(c.self, c.peer) {
			continue
		}
		c.apply(message)
	}
}

// apply appends a message unless one with the same id is already present,
// keeping the list sorted by creation time.
func (c *Conversation) apply(message model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.byID[message.ID]; seen {
		return
	}
	c.byID[message.ID] = struct{}{}

	// Insert after any entry with an equal or earlier timestamp.
	at := sort.Search(len(c.list), func(i int) bool {
		return c.list[i].CreatedAt.After(message.CreatedAt)
	})
	c.list = append(c.list, model.Message{})
	copy(c.list[at+1:], c.list[at:])
	c.list[at] = message
}

// Send inserts a message addressed to the peer and applies the confirmed
// row locally. The same row also arrives over the subscription; whichever
// path lands second is dropped by the dedup rule.
func (c *Conversation) Send(ctx context.Context, body string) (model.Message, error) {
	message, err := c.svc.Send(ctx, c.schoolID, c.self, c.peer, body)
	if err != nil {
		return model.Message{}, err
	}
	c.apply(message)
	return message, nil
}

// Messages returns a snapshot of the visible list, ascending by creation
// time.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.list))
	copy(out, c.list)
	return out
}

// Close releases the subscription. Safe to call more than once; only the
// first call does anything.
func (c *Conversation) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.sub.Close()
	})
	return err
}
