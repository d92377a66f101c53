package booking

import (
	"errors"
	"fmt"

	"gigs/entity"
)

type RejectionKind string

const (
	InvalidTransition RejectionKind = "invalid_transition"
	GuardFailed       RejectionKind = "guard_failed"
	Unauthorized      RejectionKind = "unauthorized"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrGuardFailed       = errors.New("guard failed")
	ErrUnauthorized      = errors.New("not allowed for this role")
)

// TransitionError is returned when an action is rejected locally. The
// booking is left unchanged.
type TransitionError struct {
	Kind      RejectionKind
	Action    string
	BookingID string
	Status    entity.Status
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s rejected for booking %s in status %s: %s", e.Action, e.BookingID, e.Status, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	switch e.Kind {
	case InvalidTransition:
		return ErrInvalidTransition
	case GuardFailed:
		return ErrGuardFailed
	case Unauthorized:
		return ErrUnauthorized
	}
	return nil
}

func rejection(kind RejectionKind, reason string) *TransitionError {
	return &TransitionError{Kind: kind, Reason: reason}
}

func guardFailed(format string, args ...any) *TransitionError {
	return rejection(GuardFailed, fmt.Sprintf(format, args...))
}

func unauthorized(format string, args ...any) *TransitionError {
	return rejection(Unauthorized, fmt.Sprintf(format, args...))
}

// RejectionKindOf returns the kind of a TransitionError wrapped in err.
func RejectionKindOf(err error) (RejectionKind, bool) {
	var transitionErr *TransitionError
	if errors.As(err, &transitionErr) {
		return transitionErr.Kind, true
	}
	return "", false
}
