package realtime

import "encoding/json"

const (
	EventJoinBooking  = "join-booking"
	EventLeaveBooking = "leave-booking"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"

	EventNewMessage     = "new-message"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RoomPayload struct {
	BookingID string `json:"bookingId"`
}

type SendMessagePayload struct {
	BookingID string `json:"bookingId"`
	Content   string `json:"content"`
}

type TypingPayload struct {
	BookingID string `json:"bookingId,omitempty"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
}
