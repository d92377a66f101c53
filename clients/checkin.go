package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"gigs/entity"
)

func checkinPath(bookingID, action string) string {
	return "/checkin/booking/" + url.PathEscape(bookingID) + "/" + action
}

func (c *Client) CheckIn(ctx context.Context, bookingID string, req entity.CheckInRequest) (entity.Booking, error) {
	var b entity.Booking
	if err := c.do(ctx, request{method: http.MethodPost, path: checkinPath(bookingID, "checkin"), body: req}, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("checking in to booking %s: %w", bookingID, err)
	}
	return b, nil
}

type checkOutRequest struct {
	Location entity.Location `json:"location"`
}

func (c *Client) CheckOut(ctx context.Context, bookingID string, location entity.Location) (entity.Booking, error) {
	var b entity.Booking
	req := request{method: http.MethodPost, path: checkinPath(bookingID, "checkout"), body: checkOutRequest{Location: location}}
	if err := c.do(ctx, req, &b); err != nil {
		return entity.Booking{}, fmt.Errorf("checking out of booking %s: %w", bookingID, err)
	}
	return b, nil
}
