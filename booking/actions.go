package booking

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"gigs/entity"
	"gigs/event"

	"github.com/shopspring/decimal"
)

const MinRejectReasonLength = 10

// Actor is whoever requests a transition: one of the two booking parties, or
// the system itself for transitions driven by payment reconciliation.
type Actor struct {
	UserID string
	Role   entity.Role
	system bool
}

var System = Actor{system: true}

func ActorFor(user entity.User) Actor {
	return Actor{UserID: user.ID, Role: user.Role}
}

func (a Actor) IsSystem() bool {
	return a.system
}

func (a Actor) String() string {
	if a.system {
		return "system"
	}
	return string(a.Role) + ":" + a.UserID
}

type rule struct {
	from   []entity.Status
	noop   []entity.Status
	roles  []entity.Role
	system bool
}

var (
	bothParties = []entity.Role{entity.RoleContractor, entity.RoleArtist}
	artistOnly  = []entity.Role{entity.RoleArtist}
)

// Action is a request to move a booking through its lifecycle.
type Action interface {
	Name() string

	rule() rule
	// validate checks the action's own input and runs before anything else.
	validate() *TransitionError
	// guard checks preconditions that depend on the booking.
	guard(b entity.Booking, actor Actor) *TransitionError
	apply(b *entity.Booking, actor Actor, now time.Time)
	remote(ctx context.Context, api API, b entity.Booking, actor Actor) (entity.Booking, error)
	event(b entity.Booking, actor Actor, idempotencyKey string) any
}

type Accept struct{}

func (Accept) Name() string { return "accept" }

func (Accept) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusPending},
		noop:  []entity.Status{entity.StatusAccepted},
		roles: artistOnly,
	}
}

func (Accept) validate() *TransitionError { return nil }

func (Accept) guard(entity.Booking, Actor) *TransitionError { return nil }

func (Accept) apply(b *entity.Booking, _ Actor, _ time.Time) {
	b.Status = entity.StatusAccepted
}

func (Accept) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.AcceptBooking(ctx, b.ID)
}

func (Accept) event(b entity.Booking, _ Actor, key string) any {
	return event.NewBookingAccepted(key, b)
}

type Reject struct {
	Reason string
}

func (Reject) Name() string { return "reject" }

func (Reject) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusPending},
		roles: artistOnly,
	}
}

func (a Reject) validate() *TransitionError {
	if n := utf8.RuneCountInString(strings.TrimSpace(a.Reason)); n < MinRejectReasonLength {
		return guardFailed("reason must be at least %d characters, got %d", MinRejectReasonLength, n)
	}
	return nil
}

func (Reject) guard(entity.Booking, Actor) *TransitionError { return nil }

func (a Reject) apply(b *entity.Booking, _ Actor, _ time.Time) {
	b.Status = entity.StatusCancelled
	b.StatusReason = strings.TrimSpace(a.Reason)
}

func (a Reject) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.RejectBooking(ctx, b.ID, strings.TrimSpace(a.Reason))
}

func (a Reject) event(b entity.Booking, _ Actor, key string) any {
	return event.NewBookingRejected(key, b, strings.TrimSpace(a.Reason))
}

// CounterOffer renegotiates the hourly rate without leaving PENDING.
type CounterOffer struct {
	Rate decimal.Decimal
}

func (CounterOffer) Name() string { return "counter-offer" }

func (CounterOffer) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusPending},
		roles: artistOnly,
	}
}

func (a CounterOffer) validate() *TransitionError {
	if !a.Rate.IsPositive() {
		return guardFailed("proposed value must be greater than zero, got %s", a.Rate)
	}
	return nil
}

func (CounterOffer) guard(entity.Booking, Actor) *TransitionError { return nil }

func (a CounterOffer) apply(b *entity.Booking, actor Actor, now time.Time) {
	if len(b.Negotiation) == 0 {
		b.Negotiation = append(b.Negotiation, entity.Proposal{
			Rate:       b.Terms.ProposedRate,
			ProposedBy: entity.RoleContractor,
			ProposedAt: b.CreatedAt,
		})
	}
	b.Negotiation = append(b.Negotiation, entity.Proposal{
		Rate:       a.Rate,
		ProposedBy: actor.Role,
		ProposedAt: now,
	})
	b.Terms = b.Terms.WithRate(a.Rate)
}

func (a CounterOffer) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.CounterOffer(ctx, b.ID, a.Rate)
}

func (a CounterOffer) event(b entity.Booking, actor Actor, key string) any {
	return event.NewCounterOfferMade(key, b, actor.Role)
}

// PaymentConfirmed is raised by payment reconciliation once the provider
// reports a confirmed attempt.
type PaymentConfirmed struct {
	Attempt entity.PaymentAttempt
}

func (PaymentConfirmed) Name() string { return "payment-confirmed" }

func (PaymentConfirmed) rule() rule {
	return rule{
		from:   []entity.Status{entity.StatusAccepted},
		noop:   []entity.Status{entity.StatusConfirmed, entity.StatusInProgress, entity.StatusCompleted},
		system: true,
	}
}

func (a PaymentConfirmed) validate() *TransitionError {
	if a.Attempt.Status != entity.PaymentStatusConfirmed {
		return guardFailed("payment attempt %s is %s, not confirmed", a.Attempt.ID, a.Attempt.Status)
	}
	return nil
}

func (a PaymentConfirmed) guard(b entity.Booking, _ Actor) *TransitionError {
	if a.Attempt.BookingID != "" && a.Attempt.BookingID != b.ID {
		return guardFailed("payment attempt %s belongs to booking %s", a.Attempt.ID, a.Attempt.BookingID)
	}
	return nil
}

func (a PaymentConfirmed) apply(b *entity.Booking, _ Actor, _ time.Time) {
	b.Status = entity.StatusConfirmed
	b.PaymentID = a.Attempt.ID
}

func (PaymentConfirmed) remote(context.Context, API, entity.Booking, Actor) (entity.Booking, error) {
	return entity.Booking{}, nil
}

func (PaymentConfirmed) event(b entity.Booking, _ Actor, key string) any {
	return event.NewBookingConfirmed(key, b)
}

type CheckIn struct {
	Location *entity.Location
	PhotoRef string
}

func (CheckIn) Name() string { return "check-in" }

func (CheckIn) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusConfirmed},
		noop:  []entity.Status{entity.StatusInProgress},
		roles: artistOnly,
	}
}

func (a CheckIn) validate() *TransitionError {
	if a.Location == nil {
		return guardFailed("check-in requires a geolocation")
	}
	if strings.TrimSpace(a.PhotoRef) == "" {
		return guardFailed("check-in requires photo evidence")
	}
	return nil
}

func (CheckIn) guard(entity.Booking, Actor) *TransitionError { return nil }

func (a CheckIn) apply(b *entity.Booking, _ Actor, now time.Time) {
	b.Status = entity.StatusInProgress
	b.CheckIn = &entity.CheckIn{At: now, Location: *a.Location, PhotoRef: a.PhotoRef}
}

func (a CheckIn) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.CheckIn(ctx, b.ID, entity.CheckInRequest{Location: *a.Location, PhotoRef: a.PhotoRef})
}

func (CheckIn) event(b entity.Booking, _ Actor, key string) any {
	return event.NewArtistCheckedIn(key, b)
}

type CheckOut struct {
	Location *entity.Location
}

func (CheckOut) Name() string { return "check-out" }

func (CheckOut) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusInProgress},
		noop:  []entity.Status{entity.StatusCompleted},
		roles: artistOnly,
	}
}

func (a CheckOut) validate() *TransitionError {
	if a.Location == nil {
		return guardFailed("check-out requires a geolocation")
	}
	return nil
}

func (CheckOut) guard(entity.Booking, Actor) *TransitionError { return nil }

func (a CheckOut) apply(b *entity.Booking, _ Actor, now time.Time) {
	b.Status = entity.StatusCompleted
	b.CheckOut = &entity.CheckOut{At: now, Location: *a.Location}
}

func (a CheckOut) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.CheckOut(ctx, b.ID, *a.Location)
}

func (CheckOut) event(b entity.Booking, _ Actor, key string) any {
	return event.NewArtistCheckedOut(key, b)
}

// Review rates the other party once the booking is completed. The ratings
// must cover exactly the criteria of the reviewer's role, each from 1 to 5.
type Review struct {
	Ratings map[entity.Criterion]int
	Comment string
}

func (Review) Name() string { return "review" }

func (Review) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusCompleted},
		roles: bothParties,
	}
}

func (Review) validate() *TransitionError { return nil }

func (a Review) guard(b entity.Booking, actor Actor) *TransitionError {
	if b.Reviewed(actor.Role) {
		return guardFailed("%s has already reviewed this booking", actor.Role.Label())
	}

	criteria := actor.Role.ReviewCriteria()
	if len(a.Ratings) != len(criteria) {
		return guardFailed("expected %d ratings, got %d", len(criteria), len(a.Ratings))
	}
	for _, c := range criteria {
		score, ok := a.Ratings[c]
		if !ok {
			return guardFailed("missing rating for %s", c)
		}
		if score < 1 || score > 5 {
			return guardFailed("rating for %s must be between 1 and 5, got %d", c, score)
		}
	}

	return nil
}

func (Review) apply(b *entity.Booking, actor Actor, _ time.Time) {
	if actor.Role == entity.RoleArtist {
		b.ArtistReviewed = true
	} else {
		b.ContractorReviewed = true
	}
}

func (a Review) remote(ctx context.Context, api API, b entity.Booking, actor Actor) (entity.Booking, error) {
	review := entity.Review{
		BookingID:    b.ID,
		ReviewerID:   actor.UserID,
		ReviewerRole: actor.Role,
		Ratings:      a.Ratings,
		Comment:      strings.TrimSpace(a.Comment),
	}
	return entity.Booking{}, api.SubmitReview(ctx, review)
}

func (Review) event(b entity.Booking, actor Actor, key string) any {
	return event.NewReviewSubmitted(key, b, actor.Role)
}

// Cancel is open to the contractor until the performance starts. The artist
// can only cancel after accepting; before that the way out is Reject.
type Cancel struct {
	Reason string
}

func (Cancel) Name() string { return "cancel" }

func (Cancel) rule() rule {
	return rule{
		from:  []entity.Status{entity.StatusPending, entity.StatusAccepted, entity.StatusConfirmed},
		noop:  []entity.Status{entity.StatusCancelled},
		roles: bothParties,
	}
}

func (Cancel) validate() *TransitionError { return nil }

func (Cancel) guard(b entity.Booking, actor Actor) *TransitionError {
	if actor.Role == entity.RoleArtist && b.Status == entity.StatusPending {
		return unauthorized("artist must reject a pending booking instead of cancelling it")
	}
	return nil
}

func (a Cancel) apply(b *entity.Booking, _ Actor, _ time.Time) {
	b.Status = entity.StatusCancelled
	b.StatusReason = strings.TrimSpace(a.Reason)
}

func (a Cancel) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.CancelBooking(ctx, b.ID, strings.TrimSpace(a.Reason))
}

func (a Cancel) event(b entity.Booking, actor Actor, key string) any {
	return event.NewBookingCancelled(key, b, actor.Role, strings.TrimSpace(a.Reason))
}

type Dispute struct {
	Reason string
}

func (Dispute) Name() string { return "dispute" }

func (Dispute) rule() rule {
	var active []entity.Status
	for _, s := range entity.AllStatuses() {
		if s.Active() {
			active = append(active, s)
		}
	}
	return rule{
		from:  active,
		noop:  []entity.Status{entity.StatusDisputed},
		roles: bothParties,
	}
}

func (a Dispute) validate() *TransitionError {
	if strings.TrimSpace(a.Reason) == "" {
		return guardFailed("a dispute needs a description of the conflict")
	}
	return nil
}

func (Dispute) guard(entity.Booking, Actor) *TransitionError { return nil }

func (a Dispute) apply(b *entity.Booking, _ Actor, _ time.Time) {
	b.Status = entity.StatusDisputed
	b.StatusReason = strings.TrimSpace(a.Reason)
}

func (a Dispute) remote(ctx context.Context, api API, b entity.Booking, _ Actor) (entity.Booking, error) {
	return api.RaiseDispute(ctx, b.ID, strings.TrimSpace(a.Reason))
}

func (a Dispute) event(b entity.Booking, actor Actor, key string) any {
	return event.NewDisputeRaised(key, b, actor.Role, strings.TrimSpace(a.Reason))
}

// Next computes the booking that results from actor applying action to b.
// It reports noop when the action was already applied, which lets callers
// retry safely. On error b is returned unchanged.
func Next(b entity.Booking, actor Actor, action Action, now time.Time) (next entity.Booking, noop bool, err error) {
	r := action.rule()

	reject := func(e *TransitionError) (entity.Booking, bool, error) {
		e.Action = action.Name()
		e.BookingID = b.ID
		e.Status = b.Status
		return b, false, e
	}

	if r.system != actor.IsSystem() {
		return reject(unauthorized("%s cannot %s", actor, action.Name()))
	}
	if !r.system {
		if !slices.Contains(r.roles, actor.Role) {
			return reject(unauthorized("%s cannot %s", actor.Role.Label(), action.Name()))
		}
		if party := b.PartyID(actor.Role); actor.UserID != "" && party != "" && party != actor.UserID {
			return reject(unauthorized("user %s is not the %s of this booking", actor.UserID, actor.Role.Label()))
		}
	}

	if e := action.validate(); e != nil {
		return reject(e)
	}

	if slices.Contains(r.noop, b.Status) {
		return b, true, nil
	}

	if !slices.Contains(r.from, b.Status) {
		return reject(rejection(InvalidTransition, "not allowed from "+string(b.Status)))
	}

	if e := action.guard(b, actor); e != nil {
		return reject(e)
	}

	next = b.Clone()
	action.apply(&next, actor, now)
	next.UpdatedAt = now

	return next, false, nil
}
