// Package readmodel holds projections built from booking lifecycle events.
package readmodel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gigs/event"
)

type Entry struct {
	EventID     string    `json:"event_id"`
	BookingID   string    `json:"booking_id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// ActivityFeed is the per-booking timeline shown next to the chat. Events
// are delivered at least once, so entries are keyed by event id.
type ActivityFeed struct {
	lock    sync.RWMutex
	entries map[string]map[string]Entry
}

func NewActivityFeed() *ActivityFeed {
	return &ActivityFeed{
		entries: make(map[string]map[string]Entry),
	}
}

func (f *ActivityFeed) Feed(bookingID string) []Entry {
	f.lock.RLock()
	entries := make([]Entry, 0, len(f.entries[bookingID]))
	for _, e := range f.entries[bookingID] {
		entries = append(entries, e)
	}
	f.lock.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].At.Equal(entries[j].At) {
			return entries[i].At.Before(entries[j].At)
		}
		return entries[i].EventID < entries[j].EventID
	})

	return entries
}

func (f *ActivityFeed) add(e Entry) {
	f.lock.Lock()
	defer f.lock.Unlock()

	byID, ok := f.entries[e.BookingID]
	if !ok {
		byID = make(map[string]Entry)
		f.entries[e.BookingID] = byID
	}
	byID[e.EventID] = e
}

func (f *ActivityFeed) OnBookingRequested(_ context.Context, e *event.BookingRequested) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "requested",
		Description: fmt.Sprintf("Booking requested, total %s", e.Total.StringFixed(2)),
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnBookingAccepted(_ context.Context, e *event.BookingAccepted) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "accepted",
		Description: "Artist accepted the booking",
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnBookingRejected(_ context.Context, e *event.BookingRejected) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "rejected",
		Description: "Artist rejected the booking: " + e.Reason,
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnCounterOfferMade(_ context.Context, e *event.CounterOfferMade) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "counter_offer",
		Description: fmt.Sprintf("%s proposed %s per hour (round %d)", e.ProposedBy.Label(), e.Rate.StringFixed(2), e.Round),
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnBookingConfirmed(_ context.Context, e *event.BookingConfirmed) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "confirmed",
		Description: "Payment confirmed, chat is open",
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnArtistCheckedIn(_ context.Context, e *event.ArtistCheckedIn) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "checked_in",
		Description: "Artist checked in at the venue",
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnArtistCheckedOut(_ context.Context, e *event.ArtistCheckedOut) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "checked_out",
		Description: "Artist checked out, performance completed",
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnReviewSubmitted(_ context.Context, e *event.ReviewSubmitted) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "reviewed",
		Description: e.ReviewerRole.Label() + " submitted a review",
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnBookingCancelled(_ context.Context, e *event.BookingCancelled) error {
	description := e.CancelledBy.Label() + " cancelled the booking"
	if e.Reason != "" {
		description += ": " + e.Reason
	}
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "cancelled",
		Description: description,
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnDisputeRaised(_ context.Context, e *event.DisputeRaised) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "disputed",
		Description: e.RaisedBy.Label() + " raised a dispute: " + e.Reason,
		At:          e.Header.PublishedAt,
	})
	return nil
}

func (f *ActivityFeed) OnPaymentFailed(_ context.Context, e *event.PaymentFailed) error {
	f.add(Entry{
		EventID:     e.Header.ID,
		BookingID:   e.BookingID,
		Kind:        "payment_failed",
		Description: fmt.Sprintf("%s payment failed", e.Method),
		At:          e.Header.PublishedAt,
	})
	return nil
}
