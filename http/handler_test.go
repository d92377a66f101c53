package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gigs/booking"
	"gigs/chat"
	"gigs/clients"
	"gigs/entity"
	gigsHTTP "gigs/http"
	"gigs/payment"
	"gigs/readmodel"
	"gigs/realtime"
	"gigs/typing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionStub struct {
	valid bool
}

func (s sessionStub) User() entity.User {
	return entity.User{ID: "artist-1", Role: entity.RoleArtist}
}

func (s sessionStub) Valid() bool { return s.valid }

type bookingsMock struct {
	lock    sync.Mutex
	err     error
	actions []booking.Action
	actors  []booking.Actor
}

func (m *bookingsMock) Get(id string) (entity.Booking, bool) {
	return entity.Booking{ID: id, Status: entity.StatusConfirmed}, true
}

func (m *bookingsMock) Load(_ context.Context, id string) (entity.Booking, error) {
	return entity.Booking{ID: id, Status: entity.StatusConfirmed}, nil
}

func (m *bookingsMock) Create(_ context.Context, _ booking.Actor, req entity.BookingRequest) (entity.Booking, error) {
	return entity.Booking{ID: "booking-new", ArtistID: req.ArtistID, Status: entity.StatusPending}, m.err
}

func (m *bookingsMock) Apply(_ context.Context, id string, actor booking.Actor, action booking.Action) (entity.Booking, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.actions = append(m.actions, action)
	m.actors = append(m.actors, actor)
	if m.err != nil {
		return entity.Booking{}, m.err
	}
	return entity.Booking{ID: id, Status: entity.StatusInProgress}, nil
}

type listerStub struct{}

func (listerStub) ListBookings(context.Context) ([]entity.Booking, error) {
	return []entity.Booking{{ID: "booking-1", Status: entity.StatusPending}}, nil
}

type paymentsStub struct {
	err error
}

func (p paymentsStub) Pay(_ context.Context, id string, method entity.PaymentMethod) (entity.PaymentAttempt, error) {
	return entity.PaymentAttempt{ID: "payment-1", BookingID: id, Method: method, Status: entity.PaymentStatusPending}, p.err
}

func (p paymentsStub) Polling(string) bool { return true }

type conversationsStub struct {
	sendErr error
}

func (c conversationsStub) Messages(context.Context, string) ([]entity.Message, error) {
	return []entity.Message{{ID: "m1", Content: "hi"}}, nil
}

func (c conversationsStub) Send(context.Context, string, string) (chat.Route, error) {
	return chat.RouteREST, c.sendErr
}

func (c conversationsStub) InputChanged(context.Context, string, string) error { return nil }

func (c conversationsStub) Typing(context.Context, string) ([]typing.RemoteTyper, error) {
	return []typing.RemoteTyper{{UserID: "contractor-1", Name: "Caio"}}, nil
}

type connectionStub struct{}

func (connectionStub) State() realtime.State { return realtime.StateDisconnected }

func (connectionStub) Offline() bool { return true }

func (connectionStub) Reconnect(context.Context) error { return nil }

func newDeps() gigsHTTP.Deps {
	return gigsHTTP.Deps{
		Session:       sessionStub{valid: true},
		Bookings:      &bookingsMock{},
		Lister:        listerStub{},
		Payments:      paymentsStub{},
		Conversations: conversationsStub{},
		Connection:    connectionStub{},
		Activity:      readmodel.NewActivityFeed(),
	}
}

func do(t *testing.T, deps gigsHTTP.Deps, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()

	gigsHTTP.NewRouter(deps).ServeHTTP(rec, req)

	return rec
}

func TestApplyAction_BuildsActionFromRequest(t *testing.T) {
	deps := newDeps()
	bookings := deps.Bookings.(*bookingsMock)

	rec := do(t, deps, http.MethodPost, "/bookings/booking-1/actions/check-in",
		`{"location": {"latitude": -23.5, "longitude": -46.6}, "photo_ref": "photo-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "IN_PROGRESS", response["status"])
	assert.Equal(t, "In progress", response["status_label"])

	rec = do(t, deps, http.MethodPost, "/bookings/booking-1/actions/counter-offer", `{"rate": "275.50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, deps, http.MethodPost, "/bookings/booking-1/actions/accept", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	bookings.lock.Lock()
	defer bookings.lock.Unlock()
	require.Len(t, bookings.actions, 3)

	checkIn, ok := bookings.actions[0].(booking.CheckIn)
	require.True(t, ok)
	assert.Equal(t, "photo-1", checkIn.PhotoRef)
	require.NotNil(t, checkIn.Location)

	offer, ok := bookings.actions[1].(booking.CounterOffer)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("275.50").Equal(offer.Rate))

	assert.IsType(t, booking.Accept{}, bookings.actions[2])
	assert.Equal(t, entity.RoleArtist, bookings.actors[0].Role)
}

func TestApplyAction_UnknownAction(t *testing.T) {
	rec := do(t, newDeps(), http.MethodPost, "/bookings/booking-1/actions/payment-confirmed", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "guard failed",
			err:      &booking.TransitionError{Kind: booking.GuardFailed, Reason: "reason too short"},
			expected: http.StatusUnprocessableEntity,
		},
		{
			name:     "invalid transition",
			err:      &booking.TransitionError{Kind: booking.InvalidTransition},
			expected: http.StatusConflict,
		},
		{
			name:     "wrong role",
			err:      &booking.TransitionError{Kind: booking.Unauthorized},
			expected: http.StatusForbidden,
		},
		{
			name:     "session expired",
			err:      clients.ErrUnauthorized,
			expected: http.StatusUnauthorized,
		},
		{
			name:     "retries exhausted",
			err:      &clients.TransientError{Attempts: 4, Err: &clients.APIError{StatusCode: 502}},
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "api rejected",
			err:      &clients.APIError{StatusCode: http.StatusNotFound, Message: "booking not found"},
			expected: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			deps := newDeps()
			deps.Bookings.(*bookingsMock).err = tc.err

			rec := do(t, deps, http.MethodPost, "/bookings/booking-1/actions/reject", `{"reason": "no"}`)
			assert.Equal(t, tc.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePayment(t *testing.T) {
	rec := do(t, newDeps(), http.MethodPost, "/bookings/booking-1/payments", `{"method": "PIX"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, newDeps(), http.MethodPost, "/bookings/booking-1/payments", `{"method": "CASH"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	deps := newDeps()
	deps.Payments = paymentsStub{err: payment.ErrNotPayable}
	rec = do(t, deps, http.MethodPost, "/bookings/booking-1/payments", `{"method": "CARD"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSendMessage(t *testing.T) {
	rec := do(t, newDeps(), http.MethodPost, "/bookings/booking-1/messages", `{"content": "hello"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"route": "rest"}`, rec.Body.String())

	deps := newDeps()
	deps.Conversations = conversationsStub{sendErr: chat.ErrChatClosed}
	rec = do(t, deps, http.MethodPost, "/bookings/booking-1/messages", `{"content": "hello"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExpiredSessionIsRejected(t *testing.T) {
	deps := newDeps()
	deps.Session = sessionStub{valid: false}

	rec := do(t, deps, http.MethodGet, "/bookings/booking-1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, deps, http.MethodGet, "/connection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state": "DISCONNECTED", "offline": true}`, rec.Body.String())
}
