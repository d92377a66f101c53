package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"gigs/entity"

	"github.com/shopspring/decimal"
)

func bookingPath(bookingID string, suffix string) string {
	return "/bookings/" + url.PathEscape(bookingID) + suffix
}

func (c *Client) CreateBooking(ctx context.Context, req entity.BookingRequest) (entity.Booking, error) {
	var b entity.Booking
	err := c.do(ctx, request{method: http.MethodPost, path: "/bookings", body: req}, &b)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("creating booking: %w", err)
	}
	return b, nil
}

func (c *Client) ListBookings(ctx context.Context) ([]entity.Booking, error) {
	var bookings []entity.Booking
	if err := c.do(ctx, request{method: http.MethodGet, path: "/bookings"}, &bookings); err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	return bookings, nil
}

func (c *Client) GetBooking(ctx context.Context, bookingID string) (entity.Booking, error) {
	var b entity.Booking
	if err := c.do(ctx, request{method: http.MethodGet, path: bookingPath(bookingID, "")}, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("getting booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (c *Client) AcceptBooking(ctx context.Context, bookingID string) (entity.Booking, error) {
	var b entity.Booking
	if err := c.do(ctx, request{method: http.MethodPut, path: bookingPath(bookingID, "/accept")}, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("accepting booking %s: %w", bookingID, err)
	}
	return b, nil
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (c *Client) RejectBooking(ctx context.Context, bookingID, reason string) (entity.Booking, error) {
	var b entity.Booking
	req := request{method: http.MethodPut, path: bookingPath(bookingID, "/reject"), body: reasonRequest{Reason: reason}}
	if err := c.do(ctx, req, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("rejecting booking %s: %w", bookingID, err)
	}
	return b, nil
}

type counterOfferRequest struct {
	ProposedRate decimal.Decimal `json:"proposed_rate"`
}

func (c *Client) CounterOffer(ctx context.Context, bookingID string, rate decimal.Decimal) (entity.Booking, error) {
	var b entity.Booking
	req := request{method: http.MethodPost, path: bookingPath(bookingID, "/counter-offer"), body: counterOfferRequest{ProposedRate: rate}}
	if err := c.do(ctx, req, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("sending counter-offer for booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID, reason string) (entity.Booking, error) {
	var b entity.Booking
	req := request{method: http.MethodPut, path: bookingPath(bookingID, "/cancel"), body: reasonRequest{Reason: reason}}
	if err := c.do(ctx, req, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("cancelling booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (c *Client) RaiseDispute(ctx context.Context, bookingID, reason string) (entity.Booking, error) {
	var b entity.Booking
	req := request{method: http.MethodPost, path: bookingPath(bookingID, "/dispute"), body: reasonRequest{Reason: reason}}
	if err := c.do(ctx, req, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("raising dispute for booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (c *Client) SubmitReview(ctx context.Context, review entity.Review) error {
	if err := c.do(ctx, request{method: http.MethodPost, path: "/reviews", body: review}, nil); err != nil {
		return fmt.Errorf("submitting review for booking %s: %w", review.BookingID, err)
	}
	return nil
}
