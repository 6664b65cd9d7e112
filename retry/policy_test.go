package retry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relykit/rely/circuitbreaker"
)

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		check func(policy *Policy, err error) error
	}{
		{
			name: "Test ignoreErrors merge",
			opts: []Option{
				WithIgnoreErrors(errors.New("error1")),
				WithIgnoreErrors(errors.New("error2")),
			},
			check: func(policy *Policy, _ error) error {
				if len(policy.ignoreErrors) != 2 {
					return errors.New("expected 2 ignore errors")
				}
				return nil
			},
		},
		{
			name: "Test retryErrors merge",
			opts: []Option{
				WithRetryErrors(errors.New("error1")),
				WithRetryErrors(errors.New("error2")),
			},
			check: func(policy *Policy, _ error) error {
				if len(policy.retryErrors) != 2 {
					return errors.New("expected 2 retry errors")
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPolicy("test.Policy", tt.opts...)
			require.NoError(t, tt.check(policy, err))
		})
	}
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{
			name: "zero max attempts",
			opts: []Option{WithMaxAttempts(0)},
		},
		{
			name: "negative max attempts",
			opts: []Option{WithMaxAttempts(-3)},
		},
		{
			name: "nil backoff",
			opts: []Option{WithBackoff(nil)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPolicy("test", tt.opts...)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Nil(t, policy)
		})
	}
}

func TestMustNewPolicy_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		MustNewPolicy("test", WithMaxAttempts(0))
	})
}

func TestPolicy_ShouldRetryError(t *testing.T) {
	errRetryable := errors.New("transient")
	errFatal := errors.New("fatal")

	tests := []struct {
		name   string
		opts   []Option
		err    error
		expect bool
	}{
		{
			name:   "nil error is never retryable",
			err:    nil,
			expect: false,
		},
		{
			name:   "default retries everything",
			err:    errFatal,
			expect: true,
		},
		{
			name:   "allowlist match",
			opts:   []Option{WithRetryErrors(errRetryable)},
			err:    errRetryable,
			expect: true,
		},
		{
			name:   "allowlist miss",
			opts:   []Option{WithRetryErrors(errRetryable)},
			err:    errFatal,
			expect: false,
		},
		{
			name:   "ignore list wins over allowlist",
			opts:   []Option{WithRetryErrors(errRetryable), WithIgnoreErrors(errRetryable)},
			err:    errRetryable,
			expect: false,
		},
		{
			name: "predicate takes precedence",
			opts: []Option{
				WithRetryErrors(errRetryable),
				WithRetryOnErrorPredicate(func(error) bool { return false }),
			},
			err:    errRetryable,
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustNewPolicy("test", tt.opts...)
			assert.Equal(t, tt.expect, p.ShouldRetryError(tt.err))
		})
	}
}

func TestNewCircuitAwarePolicy_IgnoresBreakerRejections(t *testing.T) {
	p := MustNewCircuitAwarePolicy("test")

	openErr := &circuitbreaker.OpenError{Name: "dep"}
	assert.False(t, p.ShouldRetryError(openErr))
	assert.False(t, p.ShouldRetryError(circuitbreaker.ErrOpen))
	assert.True(t, p.ShouldRetryError(errors.New("other")))
}

func TestPolicy_Clone(t *testing.T) {
	errRetryable := errors.New("transient")

	p := MustNewPolicy("original",
		WithMaxAttempts(5),
		WithRetryErrors(errRetryable),
	)

	clone := p.Clone("copy")

	assert.Equal(t, "copy", clone.Name())
	assert.Equal(t, 5, clone.MaxAttempts())
	assert.True(t, clone.ShouldRetryError(errRetryable))

	// Mutating the clone's lists must not leak into the original.
	clone.retryErrors = append(clone.retryErrors, errors.New("extra"))
	assert.Len(t, p.retryErrors, 1)
}
