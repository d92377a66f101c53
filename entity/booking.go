package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "BRL"

var platformFeeRate = decimal.RequireFromString("0.10")

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Terms struct {
	ProposedRate  decimal.Decimal `json:"proposed_rate"`
	DurationHours decimal.Decimal `json:"duration_hours"`
	ArtistPayout  decimal.Decimal `json:"artist_payout"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
}

// NewTerms prices an engagement: the artist receives rate x hours and the
// platform fee is charged on top of that.
func NewTerms(rate, hours decimal.Decimal) Terms {
	payout := rate.Mul(hours).Round(2)
	fee := payout.Mul(platformFeeRate).Round(2)

	return Terms{
		ProposedRate:  rate,
		DurationHours: hours,
		ArtistPayout:  payout,
		PlatformFee:   fee,
		Total:         payout.Add(fee),
		Currency:      DefaultCurrency,
	}
}

func (t Terms) WithRate(rate decimal.Decimal) Terms {
	terms := NewTerms(rate, t.DurationHours)
	if t.Currency != "" {
		terms.Currency = t.Currency
	}
	return terms
}

type Proposal struct {
	Rate       decimal.Decimal `json:"rate"`
	ProposedBy Role            `json:"proposed_by"`
	ProposedAt time.Time       `json:"proposed_at"`
}

type CheckIn struct {
	At       time.Time `json:"at"`
	Location Location  `json:"location"`
	PhotoRef string    `json:"photo_ref"`
}

type CheckOut struct {
	At       time.Time `json:"at"`
	Location Location  `json:"location"`
}

type Booking struct {
	ID           string     `json:"id"`
	ContractorID string     `json:"contractor_id"`
	ArtistID     string     `json:"artist_id"`
	Status       Status     `json:"status"`
	Terms        Terms      `json:"terms"`
	EventDate    time.Time  `json:"event_date"`
	Venue        string     `json:"venue"`
	Notes        string     `json:"notes,omitempty"`
	Negotiation  []Proposal `json:"negotiation"`
	PaymentID    string     `json:"payment_id,omitempty"`
	CheckIn      *CheckIn   `json:"check_in,omitempty"`
	CheckOut     *CheckOut  `json:"check_out,omitempty"`

	ContractorReviewed bool `json:"contractor_reviewed"`
	ArtistReviewed     bool `json:"artist_reviewed"`

	StatusReason string    `json:"status_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with b.
func (b Booking) Clone() Booking {
	c := b
	c.Negotiation = append([]Proposal(nil), b.Negotiation...)
	if b.CheckIn != nil {
		checkIn := *b.CheckIn
		c.CheckIn = &checkIn
	}
	if b.CheckOut != nil {
		checkOut := *b.CheckOut
		c.CheckOut = &checkOut
	}
	return c
}

// PartyID returns the id of the booking party playing role.
func (b Booking) PartyID(role Role) string {
	if role == RoleArtist {
		return b.ArtistID
	}
	return b.ContractorID
}

func (b Booking) Reviewed(role Role) bool {
	if role == RoleArtist {
		return b.ArtistReviewed
	}
	return b.ContractorReviewed
}

type BookingRequest struct {
	ArtistID      string          `json:"artist_id"`
	EventDate     time.Time       `json:"event_date"`
	Venue         string          `json:"venue"`
	ProposedRate  decimal.Decimal `json:"proposed_rate"`
	DurationHours decimal.Decimal `json:"duration_hours"`
	Notes         string          `json:"notes,omitempty"`
}

type CheckInRequest struct {
	Location Location `json:"location"`
	PhotoRef string   `json:"photo_ref"`
}

type Review struct {
	BookingID    string            `json:"booking_id"`
	ReviewerID   string            `json:"reviewer_id"`
	ReviewerRole Role              `json:"reviewer_role"`
	Ratings      map[Criterion]int `json:"ratings"`
	Comment      string            `json:"comment,omitempty"`
}
