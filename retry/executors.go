package retry

import (
	"context"
	"errors"
	"time"

	"github.com/relykit/rely/circuitbreaker"
)

type waiter func(time.Duration) error

func contextWaiter(ctx context.Context) waiter {
	return func(d time.Duration) error {
		timer := time.NewTimer(d)
		defer func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

func safeExecute[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, err error) {
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	return fn(ctx)
}

func classifyAttemptFailure(err error) AttemptFailureReason {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return AttemptFailureReasonTimeout
	}

	if errors.Is(err, context.Canceled) {
		return AttemptFailureReasonCanceled
	}

	return AttemptFailureReasonError
}

func classifyContextError(err error) OutcomeFailureReason {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeFailureReasonTimeout
	}

	return OutcomeFailureReasonCanceled
}

func executeAttempt[T any](
	ctx context.Context,
	p *Policy,
	attemptNum int,
	fn func(ctx context.Context) (T, error),
) (T, Attempt) {
	attemptStart := time.Now()

	attempt := Attempt{
		PolicyName: p.name,
		Number:     attemptNum,
		Timestamp:  attemptStart,
	}

	var (
		attemptCtx    context.Context
		attemptCancel context.CancelFunc
	)
	if p.attemptTimeout > 0 {
		attemptCtx, attemptCancel = context.WithTimeout(ctx, p.attemptTimeout)
	} else {
		attemptCtx, attemptCancel = context.WithCancel(ctx)
	}
	defer attemptCancel()

	result, err := safeExecute(attemptCtx, fn)
	attempt.Duration = time.Since(attemptStart)

	if err == nil {
		attempt.Status = AttemptStatusSuccess
		return result, attempt
	}

	attempt.Status = AttemptStatusError
	attempt.Error = err
	attempt.FailureReason = classifyAttemptFailure(err)
	attempt.Retryable = p.ShouldRetryError(err)

	var zero T
	return zero, attempt
}

func execute[T any](ctx context.Context, p *Policy, wait waiter, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero         T
		lastErr      error
		attemptCount int
		reporter     = p.metricsReporter()
		overallStart = time.Now()
	)

	outcome := Outcome{
		PolicyName: p.name,
		Status:     OutcomeStatusError,
	}

	defer func() {
		outcome.TotalAttempts = attemptCount
		outcome.TotalDuration = time.Since(overallStart)
		reporter.RecordOutcome(ctx, outcome)
	}()

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		attemptCount++

		result, a := executeAttempt(ctx, p, attemptCount, fn)
		reporter.RecordAttempt(ctx, a)

		if a.IsSuccess() {
			outcome.Status = OutcomeStatusSuccess
			return result, nil
		}

		// Non-retryable kinds fail immediately, even with attempts left.
		if !a.Retryable {
			outcome.FailureReason = OutcomeFailureReasonNonRetryable
			return zero, a.Error
		}

		lastErr = a.Error

		if attempt == p.maxAttempts-1 {
			break
		}

		delay := p.backoff.Next(uint(attempt))
		p.logger.Warn("attempt failed, retrying",
			"policy", p.name,
			"attempt", attemptCount,
			"max_attempts", p.maxAttempts,
			"delay", delay,
			"error", a.Error,
		)

		if waitErr := wait(delay); waitErr != nil {
			outcome.FailureReason = classifyContextError(waitErr)
			return zero, waitErr
		}

		reporter.RecordBackoff(ctx, p.name, attemptCount, delay)
	}

	outcome.FailureReason = OutcomeFailureReasonExhausted
	p.logger.Error("all attempts failed",
		"policy", p.name,
		"attempts", attemptCount,
		"error", lastErr,
	)

	// Retries exhausted: surface the last attempt's error unchanged.
	return zero, lastErr
}

// Execute runs fn up to the policy's attempt budget, sleeping the backoff
// delay between attempts. Cancelling ctx during a delay aborts the loop
// and returns the context error.
func Execute[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	return execute(ctx, p, contextWaiter(ctx), fn)
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, p *Policy, fn func(context.Context) error) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteWithBreaker composes retry around a circuit breaker: every
// attempt is routed through cb, so rejected attempts count against the
// retry budget unless the policy ignores circuitbreaker.ErrOpen.
func ExecuteWithBreaker[T any](ctx context.Context, p *Policy, cb circuitbreaker.CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	return execute(ctx, p, contextWaiter(ctx), func(ctx context.Context) (T, error) {
		return circuitbreaker.Execute(ctx, cb, fn)
	})
}

func DoWithBreaker(ctx context.Context, p *Policy, cb circuitbreaker.CircuitBreaker, fn func(context.Context) error) error {
	_, err := ExecuteWithBreaker(ctx, p, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Wrap binds a policy to fn. Each invocation of the returned function is
// an independent retry sequence; the policy itself holds no per-call state.
func Wrap[T any](name string, fn func(context.Context) (T, error), opts ...Option) (func(context.Context) (T, error), error) {
	p, err := NewPolicy(name, opts...)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (T, error) {
		return Execute(ctx, p, fn)
	}, nil
}
