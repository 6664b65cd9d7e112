package backoff

import (
	"math"
	"math/rand"
	"time"
)

var _ Backoff = (*Exponential)(nil)

type Exponential struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	jitter          bool
}

type ExponentialOption func(*Exponential)

func WithInitialInterval(d time.Duration) ExponentialOption {
	return func(e *Exponential) {
		e.initialInterval = d
	}
}

func WithMaxInterval(d time.Duration) ExponentialOption {
	return func(e *Exponential) {
		e.maxInterval = d
	}
}

func WithMultiplier(m float64) ExponentialOption {
	return func(e *Exponential) {
		e.multiplier = m
	}
}

// WithJitter multiplies each computed delay by a uniformly random factor
// in [0.5, 1.5) to spread out synchronized retries.
func WithJitter(enabled bool) ExponentialOption {
	return func(e *Exponential) {
		e.jitter = enabled
	}
}

func NewExponential(opts ...ExponentialOption) Exponential {
	e := Exponential{
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
		multiplier:      2.0,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

func (e Exponential) Next(attempt uint) time.Duration {
	interval := float64(e.initialInterval) * math.Pow(e.multiplier, float64(attempt))

	if interval > float64(e.maxInterval) {
		interval = float64(e.maxInterval)
	}

	// Jitter is applied after the cap, so a jittered delay can land
	// above maxInterval.
	if e.jitter {
		interval *= 0.5 + rand.Float64()
	}

	return time.Duration(interval)
}
