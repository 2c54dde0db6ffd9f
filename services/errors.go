package services

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Callers match with errors.Is.
var (
	// ErrInvalidEvent: malformed or unsupported event payload, nothing was applied.
	ErrInvalidEvent = errors.New("invalid_event")
	// ErrNotFound: the referenced user does not exist.
	ErrNotFound = errors.New("not_found")
	// ErrConflict: a concurrent update won the race; the same event may be retried.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable: processing did not finish within its budget; safe to retry.
	ErrUnavailable = errors.New("unavailable")

	// ErrInvalidBadge: an administered badge definition failed validation.
	ErrInvalidBadge = errors.New("invalid_badge")
)

// Retryable reports whether err is safe to retry with the same event.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}

// ErrorCode maps err to its taxonomy code, or "internal".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEvent):
		return ErrInvalidEvent.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrConflict):
		return ErrConflict.Error()
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	case errors.Is(err, ErrInvalidBadge):
		return ErrInvalidBadge.Error()
	}
	return "internal"
}

func invalidEvent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

// classify folds anything outside the taxonomy into ErrUnavailable so callers
// only ever see the four documented conditions.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInvalidEvent), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
