package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"gigs/entity"
)

func chatPath(bookingID string) string {
	return "/chat/booking/" + url.PathEscape(bookingID)
}

func (c *Client) ListMessages(ctx context.Context, bookingID string) ([]entity.Message, error) {
	var messages []entity.Message
	if err := c.do(ctx, request{method: http.MethodGet, path: chatPath(bookingID)}, &messages); err != nil {
		return nil, fmt.Errorf("listing messages for booking %s: %w", bookingID, err)
	}
	return messages, nil
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage is the fallback path used when the realtime channel is down.
// The server assigns the id and broadcasts the message to the room.
func (c *Client) SendMessage(ctx context.Context, bookingID, content string) (entity.Message, error) {
	var m entity.Message
	req := request{method: http.MethodPost, path: chatPath(bookingID), body: sendMessageRequest{Content: content}}
	if err := c.do(ctx, req, &m); err != nil {
		return entity.Message{}, fmt.Errorf("sending message to booking %s: %w", bookingID, err)
	}
	return m, nil
}
