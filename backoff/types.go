package backoff

import (
	"time"
)

// Backoff computes the wait duration before a retry attempt.
// Attempts are zero-based: Next(0) is the delay before the second call.
type Backoff interface {
	Next(attempt uint) time.Duration
}
