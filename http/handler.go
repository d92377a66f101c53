package http

import (
	"context"
	"net/http"

	"gigs/booking"
	"gigs/chat"
	"gigs/entity"
	"gigs/readmodel"
	"gigs/realtime"
	"gigs/typing"

	"github.com/labstack/echo/v4"
)

type Session interface {
	User() entity.User
	Valid() bool
}

type Bookings interface {
	Get(bookingID string) (entity.Booking, bool)
	Load(ctx context.Context, bookingID string) (entity.Booking, error)
	Create(ctx context.Context, actor booking.Actor, req entity.BookingRequest) (entity.Booking, error)
	Apply(ctx context.Context, bookingID string, actor booking.Actor, action booking.Action) (entity.Booking, error)
}

type BookingLister interface {
	ListBookings(ctx context.Context) ([]entity.Booking, error)
}

type Payments interface {
	Pay(ctx context.Context, bookingID string, method entity.PaymentMethod) (entity.PaymentAttempt, error)
	Polling(bookingID string) bool
}

type Conversations interface {
	Messages(ctx context.Context, bookingID string) ([]entity.Message, error)
	Send(ctx context.Context, bookingID, content string) (chat.Route, error)
	InputChanged(ctx context.Context, bookingID, text string) error
	Typing(ctx context.Context, bookingID string) ([]typing.RemoteTyper, error)
}

type Connection interface {
	State() realtime.State
	Offline() bool
	Reconnect(ctx context.Context) error
}

type Activity interface {
	Feed(bookingID string) []readmodel.Entry
}

type Deps struct {
	Session       Session
	Bookings      Bookings
	Lister        BookingLister
	Payments      Payments
	Conversations Conversations
	Connection    Connection
	Activity      Activity
}

type handler struct {
	Deps
}

func (h handler) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.Session.Valid() {
			return &echo.HTTPError{
				Code:    http.StatusUnauthorized,
				Message: "session expired, sign in again",
			}
		}
		return next(c)
	}
}

func (h handler) actor() booking.Actor {
	return booking.ActorFor(h.Session.User())
}

type connectionResponse struct {
	State   realtime.State `json:"state"`
	Offline bool           `json:"offline"`
}

func (h handler) GetConnection(c echo.Context) error {
	return c.JSON(http.StatusOK, connectionResponse{
		State:   h.Connection.State(),
		Offline: h.Connection.Offline(),
	})
}

func (h handler) Reconnect(c echo.Context) error {
	if err := h.Connection.Reconnect(c.Request().Context()); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusServiceUnavailable,
			Message:  "could not reach the realtime server",
			Internal: err,
		}
	}
	return h.GetConnection(c)
}

func (h handler) ListActivity(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Activity.Feed(c.Param("id")))
}
