package circuitbreaker

import (
	"time"
)

// Clock abstracts time reads so breaker timing can be controlled in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}
