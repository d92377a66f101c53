package clients

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// APIError is a non-2xx response that is not an authorization failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// TransientError is returned once the retry budget for a network failure or
// 5xx response is spent. The caller may retry the operation manually.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure after %d attempts: %s", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Retryable() bool {
	return true
}

type networkError struct {
	err error
}

func (e *networkError) Error() string {
	return fmt.Sprintf("network failure: %s", e.err)
}

func (e *networkError) Unwrap() error {
	return e.err
}

func retryable(err error) bool {
	var netErr *networkError
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}

	return false
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsTransient reports whether err is worth retrying by the caller.
func IsTransient(err error) bool {
	var transient interface{ Retryable() bool }
	return errors.As(err, &transient) && transient.Retryable()
}
