package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kmohamed-dz/abcher/internal/model"
)

// conversationLimit caps how much history a single load pulls in.
const conversationLimit = 200

// ListConversation returns the messages exchanged between the pair {a, b}
// within one school, oldest first. The pair is unordered: rows match with
// either participant as sender.
func (s *Store) ListConversation(ctx context.Context, schoolID, a, b string) ([]model.Message, error) {
	var messages []model.Message
	result := s.db.WithContext(ctx).
		Where("school_id = ?", schoolID).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at ASC").
		Limit(conversationLimit).
		Find(&messages)
	if result.Error != nil {
		return nil, classify(result.Error)
	}
	return messages, nil
}

// CreateMessage inserts a message, assigning the identifier and timestamp
// the rest of the system dedups and orders by, and returns the stored row.
func (s *Store) CreateMessage(ctx context.Context, message model.Message) (model.Message, error) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	result := s.db.WithContext(ctx).Create(&message)
	if result.Error != nil {
		return model.Message{}, classify(result.Error)
	}
	return message, nil
}
