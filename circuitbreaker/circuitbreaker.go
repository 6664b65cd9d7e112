// Package circuitbreaker guards a named downstream dependency with a
// three-state breaker: closed (normal), open (failing fast) and half-open
// (probing recovery).
package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Transition is one entry in the breaker's chronological state history.
type Transition struct {
	Timestamp time.Time
	To        State
}

// Snapshot is a point-in-time view of a breaker's counters.
type Snapshot struct {
	Name            string
	State           State
	TotalCalls      int64
	TotalSuccesses  int64
	TotalFailures   int64
	FailureCount    int
	SuccessRate     float64
	LastFailureTime time.Time
	Transitions     []Transition
}

type CircuitBreaker interface {
	Name() string
	State() State

	// Snapshot returns the current counters and transition history.
	Snapshot() Snapshot

	// Reset forces the breaker closed and zeroes all counters. This is an
	// operator override, not a normal state transition.
	Reset()

	before(ctx context.Context) error
	after(ctx context.Context, err error, duration time.Duration)
}

var _ CircuitBreaker = (*circuitBreakerImpl)(nil)

type circuitBreakerImpl struct {
	name   string
	config Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time

	totalCalls     int64
	totalSuccesses int64
	totalFailures  int64
	transitions    []Transition
}

func New(name string, opts ...Option) (CircuitBreaker, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &circuitBreakerImpl{
		name:   name,
		config: config,
		state:  StateClosed,
	}, nil
}

func MustNew(name string, opts ...Option) CircuitBreaker {
	cb, err := New(name, opts...)
	if err != nil {
		panic(err)
	}
	return cb
}

func (cb *circuitBreakerImpl) Name() string {
	return cb.name
}

func (cb *circuitBreakerImpl) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreakerImpl) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var successRate float64
	if cb.totalCalls > 0 {
		successRate = float64(cb.totalSuccesses) / float64(cb.totalCalls)
	}

	transitions := make([]Transition, len(cb.transitions))
	copy(transitions, cb.transitions)

	return Snapshot{
		Name:            cb.name,
		State:           cb.state,
		TotalCalls:      cb.totalCalls,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		FailureCount:    cb.failureCount,
		SuccessRate:     successRate,
		LastFailureTime: cb.lastFailureTime,
		Transitions:     transitions,
	}
}

func (cb *circuitBreakerImpl) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.config.Logger.Info("manually resetting circuit breaker", "name", cb.name)

	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0
	cb.lastFailureTime = time.Time{}
}

// transitionToUnsafe moves the breaker to a new state and applies that
// state's entry actions. Callers must hold cb.mu.
func (cb *circuitBreakerImpl) transitionToUnsafe(ctx context.Context, to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	now := cb.config.Clock.Now()

	cb.state = to
	cb.transitions = append(cb.transitions, Transition{Timestamp: now, To: to})
	if len(cb.transitions) > cb.config.MaxTransitionLog {
		cb.transitions = cb.transitions[len(cb.transitions)-cb.config.MaxTransitionLog:]
	}

	switch to {
	case StateOpen:
		cb.lastFailureTime = now
	case StateHalfOpen:
		cb.halfOpenCalls = 0
		cb.successCount = 0
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.halfOpenCalls = 0
	}

	cb.config.Logger.Info("circuit breaker state change",
		"name", cb.name,
		"from", from.String(),
		"to", to.String(),
	)

	cb.reporter().RecordStateTransition(ctx, StateTransition{
		Name:      cb.name,
		FromState: from,
		ToState:   to,
		Timestamp: now,
	})
}

// before routes an incoming call. It returns a non-nil *OpenError when the
// call must be rejected without invoking the operation.
func (cb *circuitBreakerImpl) before(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	if cb.state == StateOpen {
		elapsed := cb.config.Clock.Now().Sub(cb.lastFailureTime)
		if elapsed < cb.config.OpenTimeout {
			err := &OpenError{Name: cb.name, RetryAfter: cb.config.OpenTimeout - elapsed}
			cb.reporter().RecordCallRejection(ctx, CallRejection{Name: cb.name, State: cb.state, Error: err})
			return err
		}
		cb.transitionToUnsafe(ctx, StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			cb.transitionToUnsafe(ctx, StateOpen)
			err := &OpenError{Name: cb.name, RetryAfter: cb.config.OpenTimeout}
			cb.reporter().RecordCallRejection(ctx, CallRejection{Name: cb.name, State: StateHalfOpen, Error: err})
			return err
		}
		cb.halfOpenCalls++
	}

	return nil
}

// after records the outcome of a call that was admitted by before.
func (cb *circuitBreakerImpl) after(ctx context.Context, err error, duration time.Duration) {
	isFailure := cb.isFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if isFailure {
		cb.totalFailures++
		cb.failureCount++

		cb.config.Logger.Warn("circuit breaker recorded failure",
			"name", cb.name,
			"state", cb.state.String(),
			"failure_count", cb.failureCount,
			"error", err,
		)

		if cb.state == StateHalfOpen {
			cb.transitionToUnsafe(ctx, StateOpen)
		} else if cb.state == StateClosed && cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionToUnsafe(ctx, StateOpen)
		}

		cb.reporter().RecordCallResult(ctx, CallResult{
			Name:     cb.name,
			Outcome:  OutcomeFailure,
			Duration: duration,
			Error:    err,
		})
		return
	}

	cb.totalSuccesses++
	cb.failureCount = 0

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionToUnsafe(ctx, StateClosed)
		}
	}

	cb.reporter().RecordCallResult(ctx, CallResult{
		Name:     cb.name,
		Outcome:  OutcomeSuccess,
		Duration: duration,
	})
}

func (cb *circuitBreakerImpl) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.config.FailureCondition != nil {
		return cb.config.FailureCondition(err)
	}
	return true
}

func (cb *circuitBreakerImpl) reporter() Metrics {
	if cb.config.Metrics != nil {
		return cb.config.Metrics
	}
	return GetGlobalMetrics()
}
