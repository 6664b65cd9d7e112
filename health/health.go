// Package health tracks the availability of named dependencies by probing
// them periodically through the reliability primitives: each target gets
// its own circuit breaker, and probes run under a retry policy.
package health

import (
	"time"

	"github.com/relykit/rely/circuitbreaker"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Target    string
	Status    Status
	Timestamp time.Time
	Latency   time.Duration
	Error     string
}

// TargetHealth is a point-in-time rollup of a target's probe history.
type TargetHealth struct {
	Target               string
	Status               Status
	LastCheckTime        time.Time
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	TotalChecks          int64
	TotalFailures        int64
	TotalSuccesses       int64
	AverageLatency       time.Duration
	UptimePercent        float64
	LastError            string
	BreakerState         circuitbreaker.State
	History              []CheckResult
}

// Summary aggregates target statuses for dashboards and readiness probes.
type Summary struct {
	Total     int
	Healthy   int
	Degraded  int
	Unhealthy int
	Unknown   int
}

func (s Summary) AllHealthy() bool {
	return s.Total > 0 && s.Healthy == s.Total
}
