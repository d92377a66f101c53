package http

import (
	"errors"
	"fmt"
	"net/http"

	"gigs/booking"
	"gigs/chat"
	"gigs/clients"
	"gigs/payment"
	"gigs/session"

	"github.com/labstack/echo/v4"
)

func badRequest(err error) *echo.HTTPError {
	return &echo.HTTPError{
		Code:     http.StatusBadRequest,
		Message:  "failed to parse request",
		Internal: fmt.Errorf("failed to bind request: %w", err),
	}
}

// httpError maps core errors to responses the presentation layer can branch
// on without parsing messages.
func httpError(err error) *echo.HTTPError {
	code := http.StatusInternalServerError
	message := http.StatusText(code)

	var (
		transitionErr *booking.TransitionError
		apiErr        *clients.APIError
	)

	switch {
	case errors.As(err, &transitionErr):
		message = transitionErr.Reason
		switch transitionErr.Kind {
		case booking.Unauthorized:
			code = http.StatusForbidden
		case booking.GuardFailed:
			code = http.StatusUnprocessableEntity
		case booking.InvalidTransition:
			code = http.StatusConflict
		}
	case errors.Is(err, clients.ErrUnauthorized), errors.Is(err, session.ErrNoSession):
		code = http.StatusUnauthorized
		message = "session expired, sign in again"
	case errors.Is(err, clients.ErrForbidden):
		code = http.StatusForbidden
		message = http.StatusText(code)
	case errors.Is(err, chat.ErrEmptyMessage):
		code = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, chat.ErrChatClosed), errors.Is(err, payment.ErrNotPayable):
		code = http.StatusConflict
		message = err.Error()
	case clients.IsTransient(err):
		code = http.StatusServiceUnavailable
		message = "service unavailable, try again later"
	case errors.As(err, &apiErr):
		code = apiErr.StatusCode
		message = apiErr.Message
	}

	return &echo.HTTPError{
		Code:     code,
		Message:  message,
		Internal: err,
	}
}
