package retry

import (
	"errors"
)

// A failed retry sequence propagates the last attempt's error unchanged.
// There is no aggregate error type: callers match the operation's own
// error kinds with errors.Is/As, exactly as they would without the policy.

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "Policy error: field '" + e.Field + "' - " + e.Message
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
