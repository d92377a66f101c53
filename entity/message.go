package entity

import "time"

type MessageKind string

const (
	MessageKindUser   MessageKind = "USER"
	MessageKindSystem MessageKind = "SYSTEM"
)

type Message struct {
	ID        string      `json:"id"`
	BookingID string      `json:"booking_id"`
	Kind      MessageKind `json:"kind"`
	SenderID  string      `json:"sender_id,omitempty"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Before orders messages by timestamp, then by id.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
