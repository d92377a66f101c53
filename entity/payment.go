package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodPix  PaymentMethod = "PIX"
	PaymentMethodCard PaymentMethod = "CARD"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentMethodPix, PaymentMethodCard:
		return m, nil
	default:
		return "", fmt.Errorf("unknown payment method %q", s)
	}
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed
}

type PaymentAttempt struct {
	ID        string          `json:"id"`
	BookingID string          `json:"booking_id"`
	Method    PaymentMethod   `json:"method"`
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	PixCode   string          `json:"pix_code,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
