package event

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

// ChatOpener starts and stops the chat of a booking as it enters and leaves
// the statuses in which messaging is allowed.
type ChatOpener interface {
	OpenChat(ctx context.Context, bookingID string) error
	CloseChat(ctx context.Context, bookingID string) error
}

type Handler struct {
	chats ChatOpener
}

func NewHandler(c ChatOpener) Handler {
	return Handler{
		chats: c,
	}
}

func (h Handler) OpenChat(ctx context.Context, e *BookingConfirmed) error {
	log.FromContext(ctx).WithField("booking_id", e.BookingID).Info("Opening chat for confirmed booking")

	if err := h.chats.OpenChat(ctx, e.BookingID); err != nil {
		return fmt.Errorf("opening chat for booking %s: %w", e.BookingID, err)
	}

	return nil
}

func (h Handler) CloseChatOnCancel(ctx context.Context, e *BookingCancelled) error {
	if err := h.chats.CloseChat(ctx, e.BookingID); err != nil {
		return fmt.Errorf("closing chat for booking %s: %w", e.BookingID, err)
	}

	return nil
}

func (h Handler) CloseChatOnDispute(ctx context.Context, e *DisputeRaised) error {
	if err := h.chats.CloseChat(ctx, e.BookingID); err != nil {
		return fmt.Errorf("closing chat for booking %s: %w", e.BookingID, err)
	}

	return nil
}
