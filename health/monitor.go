package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relykit/rely/circuitbreaker"
	"github.com/relykit/rely/retry"
)

// Probe checks one dependency. A nil return means the dependency is up;
// the monitor places no other constraint on what the probe does.
type Probe func(ctx context.Context) error

type Config struct {
	// CheckInterval is how often the monitoring loop probes all targets
	CheckInterval time.Duration

	// CheckTimeout bounds a single probe, including its retries
	CheckTimeout time.Duration

	// UnhealthyThreshold is the number of consecutive probe failures
	// after which a target is unhealthy rather than degraded
	UnhealthyThreshold int

	// MaxHistory caps the per-target result history
	MaxHistory int

	// BreakerOptions configure the per-target circuit breakers
	BreakerOptions []circuitbreaker.Option

	Policy *retry.Policy
	Logger *slog.Logger
}

type Option func(*Config)

func WithCheckInterval(d time.Duration) Option {
	return func(c *Config) {
		c.CheckInterval = d
	}
}

func WithCheckTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CheckTimeout = d
	}
}

func WithUnhealthyThreshold(n int) Option {
	return func(c *Config) {
		c.UnhealthyThreshold = n
	}
}

func WithMaxHistory(n int) Option {
	return func(c *Config) {
		c.MaxHistory = n
	}
}

func WithBreakerOptions(opts ...circuitbreaker.Option) Option {
	return func(c *Config) {
		c.BreakerOptions = append(c.BreakerOptions, opts...)
	}
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(c *Config) {
		c.Policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

type target struct {
	name    string
	probe   Probe
	breaker circuitbreaker.CircuitBreaker

	status               Status
	lastCheckTime        time.Time
	consecutiveFailures  int
	consecutiveSuccesses int
	totalChecks          int64
	totalFailures        int64
	totalSuccesses       int64
	averageLatency       time.Duration
	lastError            string
	history              []CheckResult
}

// Monitor probes registered targets through per-target circuit breakers.
type Monitor struct {
	config Config

	mu      sync.RWMutex
	targets map[string]*target

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

func NewMonitor(opts ...Option) (*Monitor, error) {
	config := Config{
		CheckInterval:      60 * time.Second,
		CheckTimeout:       10 * time.Second,
		UnhealthyThreshold: 3,
		MaxHistory:         100,
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(&config)
	}

	if config.CheckInterval <= 0 {
		return nil, fmt.Errorf("health: check interval must be positive")
	}
	if config.UnhealthyThreshold < 1 {
		return nil, fmt.Errorf("health: unhealthy threshold must be at least 1")
	}

	if config.Policy == nil {
		policy, err := retry.NewCircuitAwarePolicy("health.probe",
			retry.WithMaxAttempts(1),
			retry.WithLogger(config.Logger),
		)
		if err != nil {
			return nil, err
		}
		config.Policy = policy
	}

	return &Monitor{
		config:  config,
		targets: make(map[string]*target),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Register adds a target. Each target gets its own circuit breaker so a
// flapping dependency cannot burn probe time once its circuit opens.
func (m *Monitor) Register(name string, probe Probe) error {
	breaker, err := circuitbreaker.New(name, m.config.BreakerOptions...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.targets[name]; exists {
		return fmt.Errorf("health: target %q already registered", name)
	}

	m.targets[name] = &target{
		name:    name,
		probe:   probe,
		breaker: breaker,
		status:  StatusUnknown,
	}

	m.config.Logger.Info("registered health target", "target", name)
	return nil
}

func (m *Monitor) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, name)
}

// Check probes a single target and updates its rollup.
func (m *Monitor) Check(ctx context.Context, name string) (CheckResult, error) {
	m.mu.RLock()
	tgt, ok := m.targets[name]
	m.mu.RUnlock()

	if !ok {
		return CheckResult{}, fmt.Errorf("health: unknown target %q", name)
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	defer cancel()

	start := time.Now()
	err := retry.DoWithBreaker(checkCtx, m.config.Policy, tgt.breaker, tgt.probe)
	latency := time.Since(start)

	result := CheckResult{
		Target:    name,
		Timestamp: start,
		Latency:   latency,
	}

	if err != nil {
		result.Error = err.Error()
	}

	m.mu.Lock()
	m.applyResultLocked(tgt, &result, err)
	m.mu.Unlock()

	m.config.Logger.Debug("health check complete",
		"target", name,
		"status", string(result.Status),
		"latency", latency,
		"error", result.Error,
	)

	return result, nil
}

// applyResultLocked folds one probe outcome into the target's rollup.
// Callers must hold m.mu.
func (m *Monitor) applyResultLocked(tgt *target, result *CheckResult, err error) {
	tgt.lastCheckTime = result.Timestamp
	tgt.totalChecks++

	if err == nil {
		tgt.totalSuccesses++
		tgt.consecutiveSuccesses++
		tgt.consecutiveFailures = 0
		tgt.status = StatusHealthy
	} else {
		tgt.totalFailures++
		tgt.consecutiveFailures++
		tgt.consecutiveSuccesses = 0
		tgt.lastError = err.Error()

		if tgt.consecutiveFailures >= m.config.UnhealthyThreshold {
			tgt.status = StatusUnhealthy
		} else {
			tgt.status = StatusDegraded
		}
	}
	result.Status = tgt.status

	// Incremental mean keeps latency tracking O(1) over unbounded checks.
	totalLatency := time.Duration(tgt.totalChecks-1)*tgt.averageLatency + result.Latency
	tgt.averageLatency = totalLatency / time.Duration(tgt.totalChecks)

	tgt.history = append(tgt.history, *result)
	if len(tgt.history) > m.config.MaxHistory {
		tgt.history = tgt.history[len(tgt.history)-m.config.MaxHistory:]
	}
}

// CheckAll probes every registered target concurrently.
func (m *Monitor) CheckAll(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	names := make([]string, 0, len(m.targets))
	for name := range m.targets {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(names))
	)

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := m.Check(ctx, name)
			if err != nil {
				return
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return results
}

// Start runs the periodic monitoring loop until Stop is called or ctx is
// cancelled. It returns immediately; the loop runs in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.config.Logger.Info("health monitor started", "interval", m.config.CheckInterval)

	go func() {
		defer close(m.doneCh)

		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()

		m.CheckAll(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.CheckAll(ctx)
			}
		}
	}()
}

// Stop terminates the monitoring loop and waits for it to drain.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh

	m.config.Logger.Info("health monitor stopped")
}

// Health returns the rollup for one target.
func (m *Monitor) Health(name string) (TargetHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tgt, ok := m.targets[name]
	if !ok {
		return TargetHealth{}, false
	}
	return m.healthLocked(tgt), true
}

// AllHealth returns rollups for every registered target.
func (m *Monitor) AllHealth() map[string]TargetHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make(map[string]TargetHealth, len(m.targets))
	for name, tgt := range m.targets {
		all[name] = m.healthLocked(tgt)
	}
	return all
}

// Unhealthy lists the names of targets currently unhealthy.
func (m *Monitor) Unhealthy() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, tgt := range m.targets {
		if tgt.status == StatusUnhealthy {
			names = append(names, name)
		}
	}
	return names
}

func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := Summary{Total: len(m.targets)}
	for _, tgt := range m.targets {
		switch tgt.status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		default:
			summary.Unknown++
		}
	}
	return summary
}

func (m *Monitor) healthLocked(tgt *target) TargetHealth {
	var uptime float64
	if tgt.totalChecks > 0 {
		uptime = float64(tgt.totalSuccesses) / float64(tgt.totalChecks) * 100
	}

	history := make([]CheckResult, len(tgt.history))
	copy(history, tgt.history)

	return TargetHealth{
		Target:               tgt.name,
		Status:               tgt.status,
		LastCheckTime:        tgt.lastCheckTime,
		ConsecutiveFailures:  tgt.consecutiveFailures,
		ConsecutiveSuccesses: tgt.consecutiveSuccesses,
		TotalChecks:          tgt.totalChecks,
		TotalFailures:        tgt.totalFailures,
		TotalSuccesses:       tgt.totalSuccesses,
		AverageLatency:       tgt.averageLatency,
		UptimePercent:        uptime,
		LastError:            tgt.lastError,
		BreakerState:         tgt.breaker.State(),
		History:              history,
	}
}
