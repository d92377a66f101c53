package http

import (
	"net/http"

	commonHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/labstack/echo/v4"
)

var ErrServerClosed = http.ErrServerClosed

// NewRouter exposes the booking core to the presentation layer running on
// the same machine.
func NewRouter(deps Deps) *echo.Echo {
	server := commonHTTP.NewEcho()

	server.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	h := handler{Deps: deps}

	bookings := server.Group("/bookings", h.requireSession)
	bookings.GET("", h.ListBookings)
	bookings.POST("", h.CreateBooking)
	bookings.GET("/:id", h.GetBooking)
	bookings.POST("/:id/actions/:action", h.ApplyAction)
	bookings.POST("/:id/payments", h.CreatePayment)
	bookings.GET("/:id/messages", h.ListMessages)
	bookings.POST("/:id/messages", h.SendMessage)
	bookings.GET("/:id/typing", h.ListTyping)
	bookings.POST("/:id/typing", h.InputChanged)
	bookings.GET("/:id/activity", h.ListActivity)

	server.GET("/connection", h.GetConnection)
	server.POST("/connection/reconnect", h.Reconnect, h.requireSession)

	return server
}
