package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// ErrOpen is the sentinel all rejection errors match via errors.Is.
var ErrOpen = errors.New("circuitbreaker: open state")

// OpenError is returned when the breaker rejects a call without invoking
// the underlying operation. RetryAfter is the wait before the breaker will
// admit a probe call.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuitbreaker: circuit %q is open, retry after %s", e.Name, e.RetryAfter)
}

func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// IsOpen reports whether err is a circuit breaker rejection, as opposed to
// an error from the operation itself.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// AsOpenError extracts the rejection details from err, if any.
func AsOpenError(err error) (*OpenError, bool) {
	var e *OpenError
	ok := errors.As(err, &e)
	return e, ok
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "circuitbreaker: field '" + e.Field + "' - " + e.Message
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
