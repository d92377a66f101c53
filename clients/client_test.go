package clients_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gigs/clients"
	"gigs/entity"
	"gigs/session"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock     sync.Mutex
	requests []*http.Request
}

func (r *recorder) record(c echo.Context) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.requests = append(r.requests, c.Request().Clone(context.Background()))
}

func (r *recorder) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.requests)
}

func (r *recorder) last() *http.Request {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.requests[len(r.requests)-1]
}

func newTestClient(t *testing.T, e *echo.Echo) (*clients.Client, *session.Session) {
	t.Helper()

	server := httptest.NewServer(e)
	t.Cleanup(server.Close)

	s := session.New("secret-token", entity.User{ID: "artist-1", Role: entity.RoleArtist})
	c := clients.New(server.URL, s, clients.WithRetry(3, time.Millisecond))

	return c, s
}

func TestClient_SendsCredentialsAndDecodesBooking(t *testing.T) {
	rec := &recorder{}
	e := echo.New()
	e.GET("/bookings/:id", func(c echo.Context) error {
		rec.record(c)
		return c.JSON(http.StatusOK, entity.Booking{
			ID:     c.Param("id"),
			Status: entity.StatusPending,
			Terms:  entity.NewTerms(decimal.NewFromInt(200), decimal.NewFromInt(2)),
		})
	})

	c, _ := newTestClient(t, e)

	b, err := c.GetBooking(context.Background(), "booking-1")
	require.NoError(t, err)

	assert.Equal(t, "booking-1", b.ID)
	assert.Equal(t, entity.StatusPending, b.Status)
	assert.True(t, decimal.NewFromInt(440).Equal(b.Terms.Total))

	req := rec.last()
	assert.Equal(t, "Bearer secret-token", req.Header.Get("Authorization"))
	assert.NotEmpty(t, req.Header.Get("Correlation-ID"))
}

func TestClient_AuthorizationErrorsInvalidateSession(t *testing.T) {
	testCases := []struct {
		Name   string
		Status int
		Err    error
	}{
		{Name: "unauthorized", Status: http.StatusUnauthorized, Err: clients.ErrUnauthorized},
		{Name: "forbidden", Status: http.StatusForbidden, Err: clients.ErrForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			rec := &recorder{}
			e := echo.New()
			e.PUT("/bookings/:id/accept", func(c echo.Context) error {
				rec.record(c)
				return c.NoContent(tc.Status)
			})

			c, s := newTestClient(t, e)

			_, err := c.AcceptBooking(context.Background(), "booking-1")
			require.ErrorIs(t, err, tc.Err)

			assert.False(t, s.Valid())
			assert.Equal(t, 1, rec.count(), "authorization errors must not be retried")
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	rec := &recorder{}
	e := echo.New()
	e.GET("/payments/booking/:id", func(c echo.Context) error {
		rec.record(c)
		if rec.count() < 3 {
			return c.NoContent(http.StatusBadGateway)
		}
		return c.JSON(http.StatusOK, entity.PaymentAttempt{
			ID:        "payment-1",
			BookingID: c.Param("id"),
			Status:    entity.PaymentStatusConfirmed,
		})
	})

	c, _ := newTestClient(t, e)

	p, err := c.GetPayment(context.Background(), "booking-1")
	require.NoError(t, err)

	assert.Equal(t, entity.PaymentStatusConfirmed, p.Status)
	assert.Equal(t, 3, rec.count())
}

func TestClient_TransientErrorAfterRetriesExhausted(t *testing.T) {
	rec := &recorder{}
	e := echo.New()
	e.GET("/chat/booking/:id", func(c echo.Context) error {
		rec.record(c)
		return c.NoContent(http.StatusServiceUnavailable)
	})

	c, s := newTestClient(t, e)

	_, err := c.ListMessages(context.Background(), "booking-1")
	require.Error(t, err)

	var transient *clients.TransientError
	require.ErrorAs(t, err, &transient)
	assert.True(t, clients.IsTransient(err))
	assert.Equal(t, 4, transient.Attempts)
	assert.Equal(t, 4, rec.count(), "one attempt plus three retries")
	assert.True(t, s.Valid())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	rec := &recorder{}
	e := echo.New()
	e.PUT("/bookings/:id/reject", func(c echo.Context) error {
		rec.record(c)
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"message": "reason too short"})
	})
	e.GET("/bookings/:id", func(c echo.Context) error {
		rec.record(c)
		return c.NoContent(http.StatusNotFound)
	})

	c, _ := newTestClient(t, e)

	_, err := c.RejectBooking(context.Background(), "booking-1", "no")
	var apiErr *clients.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "reason too short", apiErr.Message)
	assert.False(t, clients.IsTransient(err))

	_, err = c.GetBooking(context.Background(), "missing")
	assert.True(t, clients.IsNotFound(err))

	assert.Equal(t, 2, rec.count())
}

func TestClient_CreatePaymentKeepsIdempotencyKeyAcrossRetries(t *testing.T) {
	lock := sync.Mutex{}
	var keys []string
	e := echo.New()
	e.POST("/payments/booking/:id", func(c echo.Context) error {
		lock.Lock()
		keys = append(keys, c.Request().Header.Get("Idempotency-Key"))
		attempt := len(keys)
		lock.Unlock()

		if attempt == 1 {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusCreated, entity.PaymentAttempt{
			ID:        "payment-1",
			BookingID: c.Param("id"),
			Method:    entity.PaymentMethodPix,
			Status:    entity.PaymentStatusPending,
		})
	})

	c, _ := newTestClient(t, e)

	p, err := c.CreatePayment(context.Background(), "booking-1", entity.PaymentMethodPix, "key-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPending, p.Status)

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, []string{"key-1", "key-1"}, keys)
}
