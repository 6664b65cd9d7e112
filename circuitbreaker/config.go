package circuitbreaker

import (
	"io"
	"log/slog"
	"time"
)

type Config struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state that trips the breaker open
	FailureThreshold int

	// OpenTimeout is how long the breaker stays open before it admits a
	// probe call and transitions to half-open
	OpenTimeout time.Duration

	// HalfOpenMaxCalls is the number of calls admitted while half-open
	// before the breaker forces itself back open
	HalfOpenMaxCalls int

	// SuccessThreshold is the number of consecutive successes in the
	// half-open state required to close the breaker
	SuccessThreshold int

	// FailureCondition decides whether an error counts as a failure.
	// By default any non-nil error does.
	FailureCondition func(error) bool

	// MaxTransitionLog caps the retained state transition history
	MaxTransitionLog int

	Clock   Clock
	Logger  *slog.Logger
	Metrics Metrics
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		HalfOpenMaxCalls: 3,
		SuccessThreshold: 2,
		MaxTransitionLog: 100,
		Clock:            realClock{},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (c Config) validate() error {
	if c.FailureThreshold < 1 {
		return &ValidationError{Field: "FailureThreshold", Message: "must be at least 1"}
	}
	if c.OpenTimeout <= 0 {
		return &ValidationError{Field: "OpenTimeout", Message: "must be positive"}
	}
	if c.HalfOpenMaxCalls < 1 {
		return &ValidationError{Field: "HalfOpenMaxCalls", Message: "must be at least 1"}
	}
	if c.SuccessThreshold < 1 {
		return &ValidationError{Field: "SuccessThreshold", Message: "must be at least 1"}
	}
	return nil
}

func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		c.FailureThreshold = n
	}
}

func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.OpenTimeout = d
	}
}

func WithHalfOpenMaxCalls(n int) Option {
	return func(c *Config) {
		c.HalfOpenMaxCalls = n
	}
}

func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		c.SuccessThreshold = n
	}
}

// WithFailureCondition overrides the default "any non-nil error is a
// failure" classification.
func WithFailureCondition(cond func(error) bool) Option {
	return func(c *Config) {
		c.FailureCondition = cond
	}
}

func WithMaxTransitionLog(n int) Option {
	return func(c *Config) {
		c.MaxTransitionLog = n
	}
}

// WithClock sets the time source. Useful for testing.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}
