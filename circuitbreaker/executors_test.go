package circuitbreaker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relykit/rely/circuitbreaker"
)

func TestExecute_PassesThroughResultAndError(t *testing.T) {
	cb := circuitbreaker.MustNew("test")

	result, err := circuitbreaker.Execute(context.Background(), cb, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	_, err = circuitbreaker.Execute(context.Background(), cb, func(context.Context) (int, error) {
		return 0, errDownstream
	})
	assert.ErrorIs(t, err, errDownstream)
}

func TestExecute_CanceledContextIsNotInvoked(t *testing.T) {
	cb := circuitbreaker.MustNew("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoked := false
	_, err := circuitbreaker.Execute(ctx, cb, func(context.Context) (int, error) {
		invoked = true
		return 0, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, invoked)
}

func TestExecute_RecoversPanicAsFailure(t *testing.T) {
	cb := circuitbreaker.MustNew("test", circuitbreaker.WithFailureThreshold(1))

	_, err := circuitbreaker.Execute(context.Background(), cb, func(context.Context) (int, error) {
		panic("boom")
	})

	require.Error(t, err)
	assert.True(t, circuitbreaker.IsPanicError(err))
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}

func TestDo_WrapsErrorOnlyOperations(t *testing.T) {
	cb := circuitbreaker.MustNew("test")

	err := circuitbreaker.Do(context.Background(), cb, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)

	err = circuitbreaker.Do(context.Background(), cb, func(context.Context) error {
		return errDownstream
	})
	assert.ErrorIs(t, err, errDownstream)
}

func TestWrap_SharesOneBreakerAcrossCalls(t *testing.T) {
	var calls int
	guarded, err := circuitbreaker.Wrap("dependency", func(context.Context) (string, error) {
		calls++
		return "", errDownstream
	}, circuitbreaker.WithFailureThreshold(2))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, callErr := guarded.Call(context.Background())
		require.ErrorIs(t, callErr, errDownstream)
	}

	// The breaker accumulated failures across calls and is inspectable.
	assert.Equal(t, circuitbreaker.StateOpen, guarded.Breaker().State())

	_, callErr := guarded.Call(context.Background())
	assert.True(t, circuitbreaker.IsOpen(callErr))
	assert.Equal(t, 2, calls)

	guarded.Breaker().Reset()
	assert.Equal(t, circuitbreaker.StateClosed, guarded.Breaker().State())
}

func TestWrap_PropagatesConfigError(t *testing.T) {
	_, err := circuitbreaker.Wrap("bad", func(context.Context) (int, error) {
		return 0, nil
	}, circuitbreaker.WithFailureThreshold(0))

	require.Error(t, err)
	assert.True(t, circuitbreaker.IsValidationError(err))
}

func TestExecute_ConcurrentCalls(t *testing.T) {
	cb := circuitbreaker.MustNew("test", circuitbreaker.WithFailureThreshold(1000))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = circuitbreaker.Do(context.Background(), cb, func(context.Context) error {
				if n%2 == 0 {
					return nil
				}
				return errors.New("transient")
			})
		}(i)
	}
	wg.Wait()

	snap := cb.Snapshot()
	assert.Equal(t, int64(50), snap.TotalCalls)
	assert.Equal(t, int64(25), snap.TotalSuccesses)
	assert.Equal(t, int64(25), snap.TotalFailures)
}
