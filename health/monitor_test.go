package health_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relykit/rely/circuitbreaker"
	"github.com/relykit/rely/health"
)

var errProbe = errors.New("connection refused")

func newTestMonitor(t *testing.T, opts ...health.Option) *health.Monitor {
	t.Helper()
	m, err := health.NewMonitor(opts...)
	require.NoError(t, err)
	return m
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := health.NewMonitor(health.WithCheckInterval(0))
	require.Error(t, err)

	_, err = health.NewMonitor(health.WithUnhealthyThreshold(0))
	require.Error(t, err)
}

func TestMonitor_RegisterRejectsDuplicates(t *testing.T) {
	m := newTestMonitor(t)

	require.NoError(t, m.Register("db", func(context.Context) error { return nil }))
	err := m.Register("db", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestMonitor_CheckUnknownTarget(t *testing.T) {
	m := newTestMonitor(t)
	_, err := m.Check(context.Background(), "missing")
	require.Error(t, err)
}

func TestMonitor_HealthyTarget(t *testing.T) {
	m := newTestMonitor(t)
	require.NoError(t, m.Register("db", func(context.Context) error { return nil }))

	result, err := m.Check(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, result.Status)
	assert.Empty(t, result.Error)

	h, ok := m.Health("db")
	require.True(t, ok)
	assert.Equal(t, health.StatusHealthy, h.Status)
	assert.Equal(t, int64(1), h.TotalChecks)
	assert.Equal(t, int64(1), h.TotalSuccesses)
	assert.Equal(t, 1, h.ConsecutiveSuccesses)
	assert.InDelta(t, 100.0, h.UptimePercent, 1e-9)
	assert.Equal(t, circuitbreaker.StateClosed, h.BreakerState)
}

func TestMonitor_DegradedThenUnhealthy(t *testing.T) {
	m := newTestMonitor(t, health.WithUnhealthyThreshold(3))
	require.NoError(t, m.Register("queue", func(context.Context) error { return errProbe }))

	for i := 1; i <= 2; i++ {
		result, err := m.Check(context.Background(), "queue")
		require.NoError(t, err)
		assert.Equal(t, health.StatusDegraded, result.Status, "check %d should be degraded", i)
	}

	result, err := m.Check(context.Background(), "queue")
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnhealthy, result.Status)

	h, _ := m.Health("queue")
	assert.Equal(t, 3, h.ConsecutiveFailures)
	assert.Contains(t, h.LastError, "connection refused")
	assert.Equal(t, []string{"queue"}, m.Unhealthy())
}

func TestMonitor_RecoveryResetsToHealthy(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	m := newTestMonitor(t)
	require.NoError(t, m.Register("api", func(context.Context) error {
		if failing.Load() {
			return errProbe
		}
		return nil
	}))

	_, _ = m.Check(context.Background(), "api")
	h, _ := m.Health("api")
	require.Equal(t, health.StatusDegraded, h.Status)

	failing.Store(false)
	_, _ = m.Check(context.Background(), "api")

	h, _ = m.Health("api")
	assert.Equal(t, health.StatusHealthy, h.Status)
	assert.Equal(t, 0, h.ConsecutiveFailures)
	assert.Equal(t, 1, h.ConsecutiveSuccesses)
	assert.InDelta(t, 50.0, h.UptimePercent, 1e-9)
}

func TestMonitor_BreakerShortCircuitsFailingTarget(t *testing.T) {
	var calls atomic.Int64

	m := newTestMonitor(t, health.WithBreakerOptions(
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithOpenTimeout(time.Hour),
	))
	require.NoError(t, m.Register("flaky", func(context.Context) error {
		calls.Add(1)
		return errProbe
	}))

	for i := 0; i < 5; i++ {
		_, err := m.Check(context.Background(), "flaky")
		require.NoError(t, err)
	}

	// After two real failures the breaker opens; later probes are
	// rejected without invoking the target.
	assert.Equal(t, int64(2), calls.Load())

	h, _ := m.Health("flaky")
	assert.Equal(t, circuitbreaker.StateOpen, h.BreakerState)
	assert.Equal(t, int64(5), h.TotalChecks)
	assert.Equal(t, int64(5), h.TotalFailures)
}

func TestMonitor_CheckAll(t *testing.T) {
	m := newTestMonitor(t)
	require.NoError(t, m.Register("db", func(context.Context) error { return nil }))
	require.NoError(t, m.Register("queue", func(context.Context) error { return errProbe }))

	results := m.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, health.StatusHealthy, results["db"].Status)
	assert.Equal(t, health.StatusDegraded, results["queue"].Status)

	summary := m.Summary()
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Healthy)
	assert.Equal(t, 1, summary.Degraded)
	assert.False(t, summary.AllHealthy())
}

func TestMonitor_HistoryIsCapped(t *testing.T) {
	m := newTestMonitor(t, health.WithMaxHistory(3))
	require.NoError(t, m.Register("db", func(context.Context) error { return nil }))

	for i := 0; i < 5; i++ {
		_, _ = m.Check(context.Background(), "db")
	}

	h, _ := m.Health("db")
	assert.Len(t, h.History, 3)
	assert.Equal(t, int64(5), h.TotalChecks)
}

func TestMonitor_StartStopLoop(t *testing.T) {
	var checks atomic.Int64

	m := newTestMonitor(t, health.WithCheckInterval(10*time.Millisecond))
	require.NoError(t, m.Register("db", func(context.Context) error {
		checks.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)

	require.Eventually(t, func() bool {
		return checks.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	after := checks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, checks.Load(), "no checks after Stop")
}

func TestMonitor_UnregisterRemovesTarget(t *testing.T) {
	m := newTestMonitor(t)
	require.NoError(t, m.Register("db", func(context.Context) error { return nil }))

	m.Unregister("db")

	_, ok := m.Health("db")
	assert.False(t, ok)
	assert.Zero(t, m.Summary().Total)
}
