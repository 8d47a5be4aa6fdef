// Package chat keeps per-conversation message lists in sync between the
// store and the realtime broadcast stream. A sent message reaches its own
// sender twice, once as the insert response and once over the subscription;
// both paths funnel through the same dedup-by-id append so the visible list
// converges on exactly one entry per message, ordered by timestamp.
package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kmohamed-dz/abcher/internal/model"
	"github.com/kmohamed-dz/abcher/internal/realtime"
)

// MessageStore is the slice of the data store the chat layer needs.
type MessageStore interface {
	ListConversation(ctx context.Context, schoolID, a, b string) ([]model.Message, error)
	CreateMessage(ctx context.Context, message model.Message) (model.Message, error)
}

// Service inserts direct messages and broadcasts the confirmed rows.
type Service struct {
	messages MessageStore
	bus      realtime.Bus
	log      *zap.Logger
}

// NewService creates a chat service over an injected store and bus.
func NewService(messages MessageStore, bus realtime.Bus, log *zap.Logger) *Service {
	return &Service{messages: messages, bus: bus, log: log}
}

// Send inserts a message and publishes the stored row (with its assigned id
// and timestamp) to the school's subscribers. A failed broadcast is
// non-fatal: subscribers fall back to reloading, but the message is stored.
func (s *Service) Send(ctx context.Context, schoolID, senderID, receiverID, body string) (model.Message, error) {
	message, err := s.messages.CreateMessage(ctx, model.Message{
		SchoolID:   schoolID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("storing message: %w", err)
	}

	if err := s.bus.Publish(ctx, message); err != nil {
		s.log.Warn("message broadcast failed",
			zap.String("message_id", message.ID), zap.Error(err))
	}
	return message, nil
}

// History loads the conversation between the pair {self, peer}, oldest
// first, without opening a subscription.
func (s *Service) History(ctx context.Context, schoolID, self, peer string) ([]model.Message, error) {
	return s.messages.ListConversation(ctx, schoolID, self, peer)
}
