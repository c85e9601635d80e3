package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Expected outcomes of booking and waitlist operations. Handlers map these to
// HTTP statuses; services return them unchanged so callers can match with
// errors.Is.
var (
	ErrDuplicateVehicle     = errors.New("vehicle already has an active booking")
	ErrBookingLimitExceeded = errors.New("maximum of 3 active bookings reached")
	ErrSlotUnavailable      = errors.New("slot is not available")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// Store-level failures. Transient means the round trip may be retried;
// Fatal means it must not.
var (
	ErrTransient = errors.New("store temporarily unavailable")
	ErrFatal     = errors.New("store error")
)

// InvalidInputf wraps ErrInvalidInput with a caller-facing detail message.
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a detail message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Transient marks a store failure as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Fatal marks a store failure as non-retryable.
func Fatal(err error) error {
	return fmt.Errorf("%w: %v", ErrFatal, err)
}

// HTTPStatus maps an error to the status code handlers should answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateVehicle),
		errors.Is(err, ErrBookingLimitExceeded),
		errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
