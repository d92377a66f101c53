// Package payment creates payment attempts and polls the provider until they
// settle, confirming the booking when they do.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gigs/booking"
	"gigs/clients"
	"gigs/entity"
	"gigs/event"
	"gigs/scope"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const DefaultPollInterval = 5 * time.Second

var ErrNotPayable = errors.New("booking is not awaiting payment")

type API interface {
	CreatePayment(ctx context.Context, bookingID string, method entity.PaymentMethod, idempotencyKey string) (entity.PaymentAttempt, error)
	GetPayment(ctx context.Context, bookingID string) (entity.PaymentAttempt, error)
}

type Bookings interface {
	Get(bookingID string) (entity.Booking, bool)
	Load(ctx context.Context, bookingID string) (entity.Booking, error)
	Apply(ctx context.Context, bookingID string, actor booking.Actor, action booking.Action) (entity.Booking, error)
}

type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Result is reported once per poller, when it stops on its own.
type Result struct {
	BookingID string
	Attempt   entity.PaymentAttempt
	Err       error
}

func (r Result) Confirmed() bool {
	return r.Err == nil && r.Attempt.Status == entity.PaymentStatusConfirmed
}

type poller struct {
	refs   int
	cancel context.CancelFunc
}

type Reconciler struct {
	api       API
	bookings  Bookings
	publisher Publisher
	clock     clockwork.Clock
	interval  time.Duration

	mu        sync.Mutex
	pollers   map[string]*poller
	observers map[int]func(Result)
	nextID    int
}

func NewReconciler(api API, bookings Bookings, publisher Publisher, clock clockwork.Clock, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Reconciler{
		api:       api,
		bookings:  bookings,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		pollers:   make(map[string]*poller),
		observers: make(map[int]func(Result)),
	}
}

// Create starts a payment attempt for an accepted booking and, unless the
// attempt settled right away, starts watching it.
func (r *Reconciler) Create(ctx context.Context, bookingID string, method entity.PaymentMethod) (entity.PaymentAttempt, func(), error) {
	b, ok := r.bookings.Get(bookingID)
	if !ok {
		var err error
		b, err = r.bookings.Load(ctx, bookingID)
		if err != nil {
			return entity.PaymentAttempt{}, nil, fmt.Errorf("loading booking %s: %w", bookingID, err)
		}
	}
	if b.Status != entity.StatusAccepted {
		return entity.PaymentAttempt{}, nil, fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, ErrNotPayable)
	}

	attempt, err := r.api.CreatePayment(ctx, bookingID, method, uuid.NewString())
	if err != nil {
		return entity.PaymentAttempt{}, nil, err
	}

	log.FromContext(ctx).WithField("booking_id", bookingID).WithField("payment_id", attempt.ID).
		Infof("Payment attempt created with status %s", attempt.Status)

	if attempt.Status.Terminal() {
		r.report(r.settle(ctx, bookingID, attempt))
		return attempt, func() {}, nil
	}

	return attempt, r.Watch(ctx, bookingID), nil
}

// Watch polls the booking's payment until it is confirmed or failed. Only one
// poller runs per booking; it stops when every watcher has released it or
// their contexts are done.
func (r *Reconciler) Watch(ctx context.Context, bookingID string) (release func()) {
	r.mu.Lock()
	p, ok := r.pollers[bookingID]
	if !ok {
		pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p = &poller{cancel: cancel}
		r.pollers[bookingID] = p
		go r.run(pollCtx, bookingID, p)
	}
	p.refs++
	r.mu.Unlock()

	unwatch := scope.Once(func() {
		r.unwatch(bookingID, p)
	})
	stop := context.AfterFunc(ctx, unwatch)

	return func() {
		stop()
		unwatch()
	}
}

func (r *Reconciler) unwatch(bookingID string, p *poller) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pollers[bookingID] != p {
		return
	}
	p.refs--
	if p.refs <= 0 {
		p.cancel()
		delete(r.pollers, bookingID)
	}
}

func (r *Reconciler) finish(bookingID string, p *poller) {
	r.mu.Lock()
	if r.pollers[bookingID] == p {
		delete(r.pollers, bookingID)
	}
	r.mu.Unlock()

	p.cancel()
}

func (r *Reconciler) Polling(bookingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.pollers[bookingID]
	return ok
}

func (r *Reconciler) run(ctx context.Context, bookingID string, p *poller) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		result, done := r.poll(ctx, bookingID)
		if done {
			cancelled := ctx.Err() != nil
			r.finish(bookingID, p)
			if !cancelled {
				r.report(result)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (r *Reconciler) poll(ctx context.Context, bookingID string) (Result, bool) {
	logger := log.FromContext(ctx).WithField("booking_id", bookingID)
	result := Result{BookingID: bookingID}

	attempt, err := r.api.GetPayment(ctx, bookingID)
	if err != nil {
		if ctx.Err() != nil {
			return result, true
		}
		if errors.Is(err, clients.ErrUnauthorized) || errors.Is(err, clients.ErrForbidden) {
			result.Err = err
			return result, true
		}
		logger.WithError(err).Warn("Payment poll failed, trying again on the next tick")
		return result, false
	}

	if !attempt.Status.Terminal() {
		return Result{BookingID: bookingID, Attempt: attempt}, false
	}

	return r.settle(ctx, bookingID, attempt), true
}

// settle confirms the booking or announces the failure of a payment attempt
// that reached a terminal status.
func (r *Reconciler) settle(ctx context.Context, bookingID string, attempt entity.PaymentAttempt) Result {
	logger := log.FromContext(ctx).WithField("booking_id", bookingID).WithField("payment_id", attempt.ID)
	result := Result{BookingID: bookingID, Attempt: attempt}

	if attempt.Status == entity.PaymentStatusConfirmed {
		_, err := r.bookings.Apply(ctx, bookingID, booking.System, booking.PaymentConfirmed{Attempt: attempt})
		if err != nil {
			result.Err = fmt.Errorf("confirming booking %s: %w", bookingID, err)
			logger.WithError(err).Error("Payment confirmed but booking could not be updated")
		} else {
			logger.Info("Payment confirmed")
		}
		return result
	}

	logger.Warn("Payment failed")
	if err := r.publisher.Publish(ctx, event.NewPaymentFailed(uuid.NewString(), attempt)); err != nil {
		logger.WithError(err).Error("Failed to publish PaymentFailed")
	}
	return result
}

// OnResult calls fn whenever a poller settles on a result.
func (r *Reconciler) OnResult(fn func(Result)) (release func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()

	return scope.Once(func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	})
}

func (r *Reconciler) report(result Result) {
	r.mu.Lock()
	observers := make([]func(Result), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.Unlock()

	for _, fn := range observers {
		fn(result)
	}
}

// Close stops every poller.
func (r *Reconciler) Close() {
	r.mu.Lock()
	pollers := r.pollers
	r.pollers = make(map[string]*poller)
	r.mu.Unlock()

	for _, p := range pollers {
		p.cancel()
	}
}
