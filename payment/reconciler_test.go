package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"gigs/booking"
	"gigs/clients"
	"gigs/entity"
	"gigs/event"
	"gigs/payment"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentAPIMock struct {
	lock     sync.Mutex
	created  entity.PaymentStatus
	statuses []entity.PaymentStatus
	errs     []error
	polls    int
	keys     []string
}

func (m *paymentAPIMock) CreatePayment(_ context.Context, bookingID string, method entity.PaymentMethod, key string) (entity.PaymentAttempt, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.keys = append(m.keys, key)

	status := m.created
	if status == "" {
		status = entity.PaymentStatusPending
	}
	return entity.PaymentAttempt{ID: "payment-1", BookingID: bookingID, Method: method, Status: status}, nil
}

func (m *paymentAPIMock) GetPayment(_ context.Context, bookingID string) (entity.PaymentAttempt, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	i := m.polls
	m.polls++

	if i < len(m.errs) && m.errs[i] != nil {
		return entity.PaymentAttempt{}, m.errs[i]
	}

	status := entity.PaymentStatusPending
	if i < len(m.statuses) {
		status = m.statuses[i]
	}
	return entity.PaymentAttempt{ID: "payment-1", BookingID: bookingID, Status: status}, nil
}

func (m *paymentAPIMock) Polls() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.polls
}

type bookingsMock struct {
	lock    sync.Mutex
	booking entity.Booking
	applied []string
}

func (b *bookingsMock) Get(string) (entity.Booking, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.booking, true
}

func (b *bookingsMock) Load(context.Context, string) (entity.Booking, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.booking, nil
}

func (b *bookingsMock) Apply(_ context.Context, _ string, actor booking.Actor, action booking.Action) (entity.Booking, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.applied = append(b.applied, actor.String()+":"+action.Name())
	b.booking.Status = entity.StatusConfirmed
	return b.booking, nil
}

func (b *bookingsMock) Applied() []string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]string(nil), b.applied...)
}

type publisherMock struct {
	lock   sync.Mutex
	events []any
}

func (p *publisherMock) Publish(_ context.Context, e any) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *publisherMock) Events() []any {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]any(nil), p.events...)
}

type resultRecorder struct {
	lock    sync.Mutex
	results []payment.Result
}

func (r *resultRecorder) record(result payment.Result) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) Results() []payment.Result {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]payment.Result(nil), r.results...)
}

type fixture struct {
	api       *paymentAPIMock
	bookings  *bookingsMock
	publisher *publisherMock
	clock     clockwork.FakeClock
	results   *resultRecorder
	r         *payment.Reconciler
}

func newFixture(t *testing.T, status entity.Status) *fixture {
	t.Helper()

	f := &fixture{
		api:       &paymentAPIMock{},
		bookings:  &bookingsMock{booking: entity.Booking{ID: "booking-1", Status: status}},
		publisher: &publisherMock{},
		clock:     clockwork.NewFakeClock(),
		results:   &resultRecorder{},
	}
	f.r = payment.NewReconciler(f.api, f.bookings, f.publisher, f.clock, payment.DefaultPollInterval)
	f.r.OnResult(f.results.record)
	t.Cleanup(f.r.Close)

	return f
}

// tick waits for the poller to finish its current poll and advances the clock
// by one interval.
func (f *fixture) tick(t *testing.T, polls int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return f.api.Polls() >= polls
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(payment.DefaultPollInterval)
}

func TestReconciler_ConfirmsBookingExactlyOnce(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)
	f.api.statuses = []entity.PaymentStatus{
		entity.PaymentStatusPending,
		entity.PaymentStatusPending,
		entity.PaymentStatusConfirmed,
	}

	f.r.Watch(context.Background(), "booking-1")

	f.tick(t, 1)
	f.tick(t, 2)

	require.Eventually(t, func() bool {
		return len(f.results.Results()) == 1
	}, time.Second, 5*time.Millisecond)

	result := f.results.Results()[0]
	assert.True(t, result.Confirmed())
	assert.Equal(t, []string{"system:payment-confirmed"}, f.bookings.Applied())
	assert.False(t, f.r.Polling("booking-1"))

	f.clock.Advance(10 * payment.DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, f.api.Polls())
}

func TestReconciler_FailedPaymentLeavesBookingAlone(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)
	f.api.statuses = []entity.PaymentStatus{entity.PaymentStatusFailed}

	f.r.Watch(context.Background(), "booking-1")

	require.Eventually(t, func() bool {
		return len(f.results.Results()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, entity.PaymentStatusFailed, f.results.Results()[0].Attempt.Status)
	assert.Empty(t, f.bookings.Applied())

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.IsType(t, event.PaymentFailed{}, events[0])
}

func TestReconciler_OnePollerPerBooking(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)

	releaseA := f.r.Watch(context.Background(), "booking-1")
	releaseB := f.r.Watch(context.Background(), "booking-1")

	f.tick(t, 1)
	require.Eventually(t, func() bool {
		return f.api.Polls() == 2
	}, time.Second, 5*time.Millisecond)

	releaseA()
	releaseA()
	assert.True(t, f.r.Polling("booking-1"))

	releaseB()
	assert.False(t, f.r.Polling("booking-1"))

	f.clock.Advance(10 * payment.DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, f.api.Polls())
	assert.Empty(t, f.results.Results())
}

func TestReconciler_StopsWhenContextIsDone(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)

	ctx, cancel := context.WithCancel(context.Background())
	f.r.Watch(ctx, "booking-1")

	require.Eventually(t, func() bool {
		return f.api.Polls() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		return !f.r.Polling("booking-1")
	}, time.Second, 5*time.Millisecond)

	f.clock.Advance(10 * payment.DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.api.Polls())
}

func TestReconciler_PollErrors(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)
	f.api.errs = []error{
		&clients.TransientError{Attempts: 4, Err: &clients.APIError{StatusCode: 503}},
		clients.ErrUnauthorized,
	}

	f.r.Watch(context.Background(), "booking-1")

	f.tick(t, 1)

	require.Eventually(t, func() bool {
		return len(f.results.Results()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.results.Results()[0].Err, clients.ErrUnauthorized)
	assert.False(t, f.r.Polling("booking-1"))
	assert.Equal(t, 2, f.api.Polls())
}

func TestReconciler_CreateRequiresAcceptedBooking(t *testing.T) {
	f := newFixture(t, entity.StatusPending)

	_, _, err := f.r.Create(context.Background(), "booking-1", entity.PaymentMethodPix)
	require.ErrorIs(t, err, payment.ErrNotPayable)

	f.api.lock.Lock()
	assert.Empty(t, f.api.keys)
	f.api.lock.Unlock()
}

func TestReconciler_CreateStartsWatching(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)

	attempt, release, err := f.r.Create(context.Background(), "booking-1", entity.PaymentMethodCard)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, entity.PaymentStatusPending, attempt.Status)
	assert.True(t, f.r.Polling("booking-1"))

	f.api.lock.Lock()
	defer f.api.lock.Unlock()
	require.Len(t, f.api.keys, 1)
	assert.NotEmpty(t, f.api.keys[0])
}

func TestReconciler_CreateSettledConfirmsWithoutPolling(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)
	f.api.created = entity.PaymentStatusConfirmed

	attempt, release, err := f.r.Create(context.Background(), "booking-1", entity.PaymentMethodCard)
	require.NoError(t, err)
	release()
	release()

	assert.Equal(t, entity.PaymentStatusConfirmed, attempt.Status)
	assert.False(t, f.r.Polling("booking-1"))
	assert.Equal(t, []string{"system:payment-confirmed"}, f.bookings.Applied())

	results := f.results.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].Confirmed())

	f.clock.Advance(10 * payment.DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.api.Polls())
}

func TestReconciler_CreateSettledFailurePublishesWithoutPolling(t *testing.T) {
	f := newFixture(t, entity.StatusAccepted)
	f.api.created = entity.PaymentStatusFailed

	attempt, release, err := f.r.Create(context.Background(), "booking-1", entity.PaymentMethodPix)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, entity.PaymentStatusFailed, attempt.Status)
	assert.False(t, f.r.Polling("booking-1"))
	assert.Empty(t, f.bookings.Applied())

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.IsType(t, event.PaymentFailed{}, events[0])

	results := f.results.Results()
	require.Len(t, results, 1)
	assert.Equal(t, entity.PaymentStatusFailed, results[0].Attempt.Status)

	f.clock.Advance(10 * payment.DefaultPollInterval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.api.Polls())
}
