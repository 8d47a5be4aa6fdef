package model

import "time"

// Message represents one direct message between two school members.
// Rows are immutable once created: there is no edit or delete path, and no
// soft-delete column. The same row reaches the sender twice (insert response
// and realtime broadcast) and is recognised as one message by ID.
type Message struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey"`
	SchoolID   string    `json:"school_id" gorm:"type:uuid;index;not null"`
	SenderID   string    `json:"sender_id" gorm:"type:uuid;index;not null"`
	ReceiverID string    `json:"receiver_id" gorm:"type:uuid;index;not null"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// InConversation reports whether the message belongs to the unordered
// participant pair {a, b}.
func (m *Message) InConversation(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
