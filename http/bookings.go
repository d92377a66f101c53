package http

import (
	"fmt"
	"net/http"

	"gigs/booking"
	"gigs/entity"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type bookingResponse struct {
	entity.Booking
	StatusLabel    string `json:"status_label"`
	StatusColor    string `json:"status_color"`
	ChatAllowed    bool   `json:"chat_allowed"`
	PaymentPolling bool   `json:"payment_polling"`
}

func (h handler) newBookingResponse(b entity.Booking) bookingResponse {
	return bookingResponse{
		Booking:        b,
		StatusLabel:    b.Status.Label(),
		StatusColor:    b.Status.Color(),
		ChatAllowed:    b.Status.ChatAllowed(),
		PaymentPolling: h.Payments.Polling(b.ID),
	}
}

func (h handler) ListBookings(c echo.Context) error {
	bookings, err := h.Lister.ListBookings(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	response := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		response = append(response, h.newBookingResponse(b))
	}

	return c.JSON(http.StatusOK, response)
}

func (h handler) CreateBooking(c echo.Context) error {
	var request entity.BookingRequest
	if err := c.Bind(&request); err != nil {
		return badRequest(err)
	}

	b, err := h.Bookings.Create(c.Request().Context(), h.actor(), request)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, h.newBookingResponse(b))
}

func (h handler) GetBooking(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	b, ok := h.Bookings.Get(id)
	if !ok || c.QueryParam("refresh") == "true" {
		var err error
		b, err = h.Bookings.Load(ctx, id)
		if err != nil {
			return httpError(err)
		}
	}

	return c.JSON(http.StatusOK, h.newBookingResponse(b))
}

type actionRequest struct {
	Reason   string                   `json:"reason"`
	Rate     decimal.Decimal          `json:"rate"`
	Location *entity.Location         `json:"location"`
	PhotoRef string                   `json:"photo_ref"`
	Ratings  map[entity.Criterion]int `json:"ratings"`
	Comment  string                   `json:"comment"`
}

func (r actionRequest) action(name string) (booking.Action, bool) {
	switch name {
	case "accept":
		return booking.Accept{}, true
	case "reject":
		return booking.Reject{Reason: r.Reason}, true
	case "counter-offer":
		return booking.CounterOffer{Rate: r.Rate}, true
	case "check-in":
		return booking.CheckIn{Location: r.Location, PhotoRef: r.PhotoRef}, true
	case "check-out":
		return booking.CheckOut{Location: r.Location}, true
	case "review":
		return booking.Review{Ratings: r.Ratings, Comment: r.Comment}, true
	case "cancel":
		return booking.Cancel{Reason: r.Reason}, true
	case "dispute":
		return booking.Dispute{Reason: r.Reason}, true
	}
	return nil, false
}

func (h handler) ApplyAction(c echo.Context) error {
	var request actionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&request); err != nil {
			return badRequest(err)
		}
	}

	action, ok := request.action(c.Param("action"))
	if !ok {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: fmt.Sprintf("unknown action %q", c.Param("action")),
		}
	}

	b, err := h.Bookings.Apply(c.Request().Context(), c.Param("id"), h.actor(), action)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, h.newBookingResponse(b))
}

type paymentRequest struct {
	Method string `json:"method"`
}

func (h handler) CreatePayment(c echo.Context) error {
	var request paymentRequest
	if err := c.Bind(&request); err != nil {
		return badRequest(err)
	}

	method, err := entity.ParsePaymentMethod(request.Method)
	if err != nil {
		return &echo.HTTPError{
			Code:     http.StatusUnprocessableEntity,
			Message:  err.Error(),
			Internal: err,
		}
	}

	attempt, err := h.Payments.Pay(c.Request().Context(), c.Param("id"), method)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusAccepted, attempt)
}
