package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gigs/entity"
	"gigs/event"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type API interface {
	CreateBooking(ctx context.Context, req entity.BookingRequest) (entity.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (entity.Booking, error)
	AcceptBooking(ctx context.Context, bookingID string) (entity.Booking, error)
	RejectBooking(ctx context.Context, bookingID, reason string) (entity.Booking, error)
	CounterOffer(ctx context.Context, bookingID string, rate decimal.Decimal) (entity.Booking, error)
	CancelBooking(ctx context.Context, bookingID, reason string) (entity.Booking, error)
	RaiseDispute(ctx context.Context, bookingID, reason string) (entity.Booking, error)
	CheckIn(ctx context.Context, bookingID string, req entity.CheckInRequest) (entity.Booking, error)
	CheckOut(ctx context.Context, bookingID string, location entity.Location) (entity.Booking, error)
	SubmitReview(ctx context.Context, review entity.Review) error
}

type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Machine owns the local copy of every booking the session works with and
// is the only place their status changes. Transitions for the same booking
// are applied one at a time; a request waiting behind another sees its
// result before its own guards are evaluated.
type Machine struct {
	api       API
	publisher Publisher
	clock     clockwork.Clock

	mu        sync.Mutex
	bookings  map[string]entity.Booking
	locks     map[string]*sync.Mutex
	observers map[int]func(entity.Booking)
	nextID    int
}

func NewMachine(api API, publisher Publisher, clock clockwork.Clock) *Machine {
	return &Machine{
		api:       api,
		publisher: publisher,
		clock:     clock,
		bookings:  make(map[string]entity.Booking),
		locks:     make(map[string]*sync.Mutex),
		observers: make(map[int]func(entity.Booking)),
	}
}

func (m *Machine) lockFor(bookingID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[bookingID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[bookingID] = l
	}
	return l
}

func (m *Machine) Get(bookingID string) (entity.Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return entity.Booking{}, false
	}
	return b.Clone(), true
}

func (m *Machine) store(b entity.Booking) {
	m.mu.Lock()
	m.bookings[b.ID] = b.Clone()
	observers := make([]func(entity.Booking), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(b.Clone())
	}
}

// Subscribe calls fn with every booking stored by the machine.
func (m *Machine) Subscribe(fn func(entity.Booking)) (release func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// Load fetches the booking from the API and replaces the local copy.
func (m *Machine) Load(ctx context.Context, bookingID string) (entity.Booking, error) {
	l := m.lockFor(bookingID)
	l.Lock()
	defer l.Unlock()

	return m.load(ctx, bookingID)
}

func (m *Machine) load(ctx context.Context, bookingID string) (entity.Booking, error) {
	b, err := m.api.GetBooking(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, err
	}
	if !b.Status.Valid() {
		return entity.Booking{}, fmt.Errorf("booking %s has unknown status %q", bookingID, b.Status)
	}

	if current, ok := m.Get(bookingID); ok {
		b = reconcile(current, b)
	}
	m.store(b)

	return b, nil
}

func (m *Machine) Create(ctx context.Context, actor Actor, req entity.BookingRequest) (entity.Booking, error) {
	reject := func(e *TransitionError) (entity.Booking, error) {
		e.Action = "request"
		return entity.Booking{}, e
	}

	if actor.IsSystem() || actor.Role != entity.RoleContractor {
		return reject(unauthorized("only a contractor can request a booking"))
	}
	if req.ArtistID == "" {
		return reject(guardFailed("artist is required"))
	}
	if !req.ProposedRate.IsPositive() {
		return reject(guardFailed("proposed rate must be greater than zero"))
	}
	if !req.DurationHours.IsPositive() {
		return reject(guardFailed("duration must be greater than zero"))
	}

	b, err := m.api.CreateBooking(ctx, req)
	if err != nil {
		return entity.Booking{}, err
	}

	if len(b.Negotiation) == 0 {
		b.Negotiation = []entity.Proposal{{
			Rate:       req.ProposedRate,
			ProposedBy: entity.RoleContractor,
			ProposedAt: m.clock.Now(),
		}}
	}
	m.store(b)
	m.publish(ctx, event.NewBookingRequested(uuid.NewString(), b))

	return b, nil
}

// Apply validates action against the current booking and, if allowed, sends
// it to the API and stores the result. A rejected action leaves the booking
// untouched and returns a *TransitionError. Repeating an action that was
// already applied is a no-op.
func (m *Machine) Apply(ctx context.Context, bookingID string, actor Actor, action Action) (entity.Booking, error) {
	l := m.lockFor(bookingID)
	l.Lock()
	defer l.Unlock()

	logger := log.FromContext(ctx).WithField("booking_id", bookingID).WithField("action", action.Name())

	current, ok := m.Get(bookingID)
	if !ok {
		var err error
		current, err = m.load(ctx, bookingID)
		if err != nil {
			return entity.Booking{}, fmt.Errorf("loading booking %s: %w", bookingID, err)
		}
	}

	next, noop, err := Next(current, actor, action, m.clock.Now())
	if err != nil {
		logger.WithError(err).Info("Transition rejected")
		return current, err
	}
	if noop {
		logger.Debug("Transition already applied")
		return current, nil
	}

	remote, err := action.remote(ctx, m.api, current, actor)
	if err != nil {
		return current, fmt.Errorf("%s booking %s: %w", action.Name(), bookingID, err)
	}
	if remote.ID != "" {
		next = reconcile(next, remote)
	}

	m.store(next)
	logger.WithField("status", next.Status).Info("Transition applied")

	m.publish(ctx, action.event(next, actor, uuid.NewString()))

	return next, nil
}

func (m *Machine) publish(ctx context.Context, e any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, e); err != nil {
		log.FromContext(ctx).WithError(err).Errorf("Failed to publish %T", e)
	}
}

// reconcile takes the server copy as authoritative but keeps proposals the
// server did not echo back, so the negotiation history never shrinks.
func reconcile(local, server entity.Booking) entity.Booking {
	merged := server.Clone()
	if len(merged.Negotiation) < len(local.Negotiation) {
		merged.Negotiation = append([]entity.Proposal(nil), local.Negotiation...)
	}
	if merged.CheckIn == nil && local.CheckIn != nil && merged.Status == local.Status {
		merged.CheckIn = local.CheckIn
	}
	if merged.CheckOut == nil && local.CheckOut != nil && merged.Status == local.Status {
		merged.CheckOut = local.CheckOut
	}
	return merged
}

// IsRejection reports whether err is a local rejection rather than a
// transport or API failure.
func IsRejection(err error) bool {
	var transitionErr *TransitionError
	return errors.As(err, &transitionErr)
}
