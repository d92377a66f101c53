package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"gigs/entity"
)

func paymentPath(bookingID string) string {
	return "/payments/booking/" + url.PathEscape(bookingID)
}

type createPaymentRequest struct {
	Method entity.PaymentMethod `json:"method"`
}

// CreatePayment starts a payment attempt. Retries of the same call carry the
// same idempotency key so the provider never charges twice.
func (c *Client) CreatePayment(ctx context.Context, bookingID string, method entity.PaymentMethod, idempotencyKey string) (entity.PaymentAttempt, error) {
	var p entity.PaymentAttempt
	req := request{
		method:         http.MethodPost,
		path:           paymentPath(bookingID),
		body:           createPaymentRequest{Method: method},
		idempotencyKey: idempotencyKey,
	}
	if err := c.do(ctx, req, &p); err != nil {
		return entity.PaymentAttempt{}, fmt.Errorf("creating payment for booking %s: %w", bookingID, err)
	}
	return p, nil
}

func (c *Client) GetPayment(ctx context.Context, bookingID string) (entity.PaymentAttempt, error) {
	var p entity.PaymentAttempt
	if err := c.do(ctx, request{method: http.MethodGet, path: paymentPath(bookingID)}, &p); err != nil {
		return entity.PaymentAttempt{}, fmt.Errorf("getting payment for booking %s: %w", bookingID, err)
	}
	return p, nil
}
