package retry

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/relykit/rely/backoff"
	"github.com/relykit/rely/circuitbreaker"
)

// Policy is an immutable retry configuration. It carries no per-call
// state, so one policy can serve any number of concurrent executions.
type Policy struct {
	// name is the name of the policy
	name string

	// logger receives attempt failure and backoff logs
	logger *slog.Logger

	// metrics is the metrics reporter for the policy
	// if nil, uses the global metrics instance
	metrics Metrics

	// maxAttempts is the maximum number of attempts
	// including the initial call as the first attempt
	maxAttempts int

	// attemptTimeout is the maximum duration for each attempt
	// If zero, attempts have no timeout
	attemptTimeout time.Duration

	// backoff is the function to calculate the wait duration between attempts
	backoff backoff.Backoff

	// retryOnErrorPredicate is the predicate to determine if an error should trigger a retry
	// true means retry, false means do not retry
	retryOnErrorPredicate func(error) bool

	// retryErrors is a list of error kinds that should trigger a retry;
	// when set, any error not matching the list fails immediately
	retryErrors []error

	// ignoreErrors is a list of error kinds that should never trigger a retry
	ignoreErrors []error
}

type Option func(*Policy)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

func WithMetrics(metrics Metrics) Option {
	return func(p *Policy) {
		p.metrics = metrics
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(p *Policy) {
		p.maxAttempts = attempts
	}
}

func WithAttemptTimeout(timeout time.Duration) Option {
	return func(p *Policy) {
		p.attemptTimeout = timeout
	}
}

func WithBackoff(f backoff.Backoff) Option {
	return func(p *Policy) {
		p.backoff = f
	}
}

// WithRetryOnErrorPredicate sets a custom predicate function to determine
// whether an error should trigger a retry. If this exists, it takes precedence
// over the retryErrors and ignoreErrors lists.
func WithRetryOnErrorPredicate(predicate func(error) bool) Option {
	return func(p *Policy) {
		p.retryOnErrorPredicate = predicate
	}
}

func WithRetryErrors(errs ...error) Option {
	return func(p *Policy) {
		p.retryErrors = append(p.retryErrors, errs...)
	}
}

func WithIgnoreErrors(errs ...error) Option {
	return func(p *Policy) {
		p.ignoreErrors = append(p.ignoreErrors, errs...)
	}
}

func (p *Policy) Validate() error {
	if p.maxAttempts < 1 {
		return &ValidationError{Field: "maxAttempts", Message: "must be at least 1"}
	}

	if p.backoff == nil {
		return &ValidationError{
			Field:   "backoff",
			Message: "backoff must be set",
		}
	}

	return nil
}

func NewPolicy(name string, options ...Option) (*Policy, error) {
	b := backoff.NewExponential()

	policy := &Policy{
		name:        name,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxAttempts: 3,
		backoff:     b,
	}

	for _, option := range options {
		option(policy)
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return policy, nil
}

// NewCircuitAwarePolicy builds a policy that never retries calls a
// circuit breaker rejected: the breaker has already decided the
// dependency is down, so reattempting is pointless.
func NewCircuitAwarePolicy(name string, opts ...Option) (*Policy, error) {
	baseOpts := []Option{
		WithIgnoreErrors(circuitbreaker.ErrOpen),
	}

	return NewPolicy(name, append(baseOpts, opts...)...)
}

func MustNewPolicy(name string, options ...Option) *Policy {
	policy, err := NewPolicy(name, options...)
	if err != nil {
		panic(err)
	}

	return policy
}

func MustNewCircuitAwarePolicy(name string, opts ...Option) *Policy {
	policy, err := NewCircuitAwarePolicy(name, opts...)
	if err != nil {
		panic(err)
	}

	return policy
}

func (p *Policy) metricsReporter() Metrics {
	if p.metrics != nil {
		return p.metrics
	}

	return GetGlobalMetrics()
}

// ShouldRetryError reports whether err is a retryable kind under this
// policy. With no predicate and no allowlist, every error is retryable.
func (p *Policy) ShouldRetryError(err error) bool {
	if err == nil {
		return false
	}

	if p.retryOnErrorPredicate != nil {
		return p.retryOnErrorPredicate(err)
	}

	for _, ignoreErr := range p.ignoreErrors {
		if errors.Is(err, ignoreErr) {
			return false
		}
	}

	// If allowlist is defined, error must match
	if len(p.retryErrors) > 0 {
		for _, retryErr := range p.retryErrors {
			if errors.Is(err, retryErr) {
				return true
			}
		}

		return false
	}

	return true
}

func (p *Policy) Name() string {
	return p.name
}

func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *Policy) AttemptTimeout() time.Duration {
	return p.attemptTimeout
}

func (p *Policy) Backoff() backoff.Backoff {
	return p.backoff
}

func (p *Policy) Clone(name string) *Policy {
	clone := &Policy{
		name:                  name,
		logger:                p.logger,
		metrics:               p.metrics,
		maxAttempts:           p.maxAttempts,
		attemptTimeout:        p.attemptTimeout,
		backoff:               p.backoff,
		retryOnErrorPredicate: p.retryOnErrorPredicate,
	}

	if len(p.retryErrors) > 0 {
		clone.retryErrors = make([]error, len(p.retryErrors))
		copy(clone.retryErrors, p.retryErrors)
	}

	if len(p.ignoreErrors) > 0 {
		clone.ignoreErrors = make([]error, len(p.ignoreErrors))
		copy(clone.ignoreErrors, p.ignoreErrors)
	}

	return clone
}
