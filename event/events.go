package event

import (
	"time"

	"gigs/entity"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/shopspring/decimal"
)

type header struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func newHeader(idempotencyKey string) header {
	return header{
		ID:             watermill.NewUUID(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type BookingRequested struct {
	Header       header          `json:"header"`
	BookingID    string          `json:"booking_id"`
	ContractorID string          `json:"contractor_id"`
	ArtistID     string          `json:"artist_id"`
	Total        decimal.Decimal `json:"total"`
}

func NewBookingRequested(idempotencyKey string, b entity.Booking) BookingRequested {
	return BookingRequested{
		Header:       newHeader(idempotencyKey),
		BookingID:    b.ID,
		ContractorID: b.ContractorID,
		ArtistID:     b.ArtistID,
		Total:        b.Terms.Total,
	}
}

type BookingAccepted struct {
	Header    header `json:"header"`
	BookingID string `json:"booking_id"`
	ArtistID  string `json:"artist_id"`
}

func NewBookingAccepted(idempotencyKey string, b entity.Booking) BookingAccepted {
	return BookingAccepted{
		Header:    newHeader(idempotencyKey),
		BookingID: b.ID,
		ArtistID:  b.ArtistID,
	}
}

type BookingRejected struct {
	Header    header `json:"header"`
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

func NewBookingRejected(idempotencyKey string, b entity.Booking, reason string) BookingRejected {
	return BookingRejected{
		Header:    newHeader(idempotencyKey),
		BookingID: b.ID,
		Reason:    reason,
	}
}

type CounterOfferMade struct {
	Header     header          `json:"header"`
	BookingID  string          `json:"booking_id"`
	ProposedBy entity.Role     `json:"proposed_by"`
	Rate       decimal.Decimal `json:"rate"`
	Total      decimal.Decimal `json:"total"`
	Round      int             `json:"round"`
}

func NewCounterOfferMade(idempotencyKey string, b entity.Booking, proposedBy entity.Role) CounterOfferMade {
	return CounterOfferMade{
		Header:     newHeader(idempotencyKey),
		BookingID:  b.ID,
		ProposedBy: proposedBy,
		Rate:       b.Terms.ProposedRate,
		Total:      b.Terms.Total,
		Round:      len(b.Negotiation),
	}
}

type BookingConfirmed struct {
	Header    header `json:"header"`
	BookingID string `json:"booking_id"`
	PaymentID string `json:"payment_id"`
}

func NewBookingConfirmed(idempotencyKey string, b entity.Booking) BookingConfirmed {
	return BookingConfirmed{
		Header:    newHeader(idempotencyKey),
		BookingID: b.ID,
		PaymentID: b.PaymentID,
	}
}

type ArtistCheckedIn struct {
	Header    header    `json:"header"`
	BookingID string    `json:"booking_id"`
	At        time.Time `json:"at"`
}

func NewArtistCheckedIn(idempotencyKey string, b entity.Booking) ArtistCheckedIn {
	e := ArtistCheckedIn{
		Header:    newHeader(idempotencyKey),
		BookingID: b.ID,
	}
	if b.CheckIn != nil {
		e.At = b.CheckIn.At
	}
	return e
}

type ArtistCheckedOut struct {
	Header    header    `json:"header"`
	BookingID string    `json:"booking_id"`
	At        time.Time `json:"at"`
}

func NewArtistCheckedOut(idempotencyKey string, b entity.Booking) ArtistCheckedOut {
	e := ArtistCheckedOut{
		Header:    newHeader(idempotencyKey),
		BookingID: b.ID,
	}
	if b.CheckOut != nil {
		e.At = b.CheckOut.At
	}
	return e
}

type ReviewSubmitted struct {
	Header       header      `json:"header"`
	BookingID    string      `json:"booking_id"`
	ReviewerRole entity.Role `json:"reviewer_role"`
}

func NewReviewSubmitted(idempotencyKey string, b entity.Booking, reviewer entity.Role) ReviewSubmitted {
	return ReviewSubmitted{
		Header:       newHeader(idempotencyKey),
		BookingID:    b.ID,
		ReviewerRole: reviewer,
	}
}

type BookingCancelled struct {
	Header      header      `json:"header"`
	BookingID   string      `json:"booking_id"`
	CancelledBy entity.Role `json:"cancelled_by"`
	Reason      string      `json:"reason"`
}

func NewBookingCancelled(idempotencyKey string, b entity.Booking, by entity.Role, reason string) BookingCancelled {
	return BookingCancelled{
		Header:      newHeader(idempotencyKey),
		BookingID:   b.ID,
		CancelledBy: by,
		Reason:      reason,
	}
}

type DisputeRaised struct {
	Header    header      `json:"header"`
	BookingID string      `json:"booking_id"`
	RaisedBy  entity.Role `json:"raised_by"`
	Reason    string      `json:"reason"`
}

func NewDisputeRaised(idempotencyKey string, b entity.Booking, by entity.Role, reason string) DisputeRaised {
	return DisputeRaised{
		Header:    newHeader(idempotencyKey),
		BookingID: b.ID,
		RaisedBy:  by,
		Reason:    reason,
	}
}

type PaymentFailed struct {
	Header    header               `json:"header"`
	BookingID string               `json:"booking_id"`
	PaymentID string               `json:"payment_id"`
	Method    entity.PaymentMethod `json:"method"`
}

func NewPaymentFailed(idempotencyKey string, p entity.PaymentAttempt) PaymentFailed {
	return PaymentFailed{
		Header:    newHeader(idempotencyKey),
		BookingID: p.BookingID,
		PaymentID: p.ID,
		Method:    p.Method,
	}
}
