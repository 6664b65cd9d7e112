package circuitbreaker

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

type PanicError struct {
	Recover any
	Stack   []byte
}

func (r *PanicError) Error() string {
	return "circuitbreaker: panic occurred"
}

func IsPanicError(err error) bool {
	var panicError *PanicError
	ok := errors.As(err, &panicError)
	return ok
}

func safeExecute[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Recover: r,
				Stack:   debug.Stack(),
			}
		}
	}()

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	return fn(ctx)
}

// Execute runs fn through the breaker. A rejected call returns *OpenError
// and never invokes fn; an admitted call returns fn's result and error
// unchanged after recording the outcome.
func Execute[T any](ctx context.Context, cb CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := cb.before(ctx); err != nil {
		return zero, err
	}

	start := time.Now()

	result, err := safeExecute(ctx, fn)
	cb.after(ctx, err, time.Since(start))
	return result, err
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, cb CircuitBreaker, fn func(context.Context) error) error {
	_, err := Execute(ctx, cb, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})

	return err
}

// Guarded bundles an operation with the breaker protecting it, so callers
// can invoke the operation directly and still inspect the breaker.
type Guarded[T any] struct {
	breaker CircuitBreaker
	fn      func(context.Context) (T, error)
}

// Wrap builds one breaker at wrap time. All calls to the returned Guarded
// share it: the breaker models a single logical dependency.
func Wrap[T any](name string, fn func(context.Context) (T, error), opts ...Option) (*Guarded[T], error) {
	cb, err := New(name, opts...)
	if err != nil {
		return nil, err
	}

	return &Guarded[T]{breaker: cb, fn: fn}, nil
}

func (g *Guarded[T]) Call(ctx context.Context) (T, error) {
	return Execute(ctx, g.breaker, g.fn)
}

// Breaker returns the shared breaker for inspection or manual reset.
func (g *Guarded[T]) Breaker() CircuitBreaker {
	return g.breaker
}
