package backoff

import (
	"testing"
	"time"
)

func TestExponential_Next(t *testing.T) {
	tests := []struct {
		name     string
		opts     []ExponentialOption
		attempt  uint
		expected time.Duration
	}{
		{
			name: "first retry uses initial interval",
			opts: []ExponentialOption{
				WithInitialInterval(100 * time.Millisecond),
				WithMultiplier(2.0),
			},
			attempt:  0,
			expected: 100 * time.Millisecond,
		},
		{
			name: "second retry doubles",
			opts: []ExponentialOption{
				WithInitialInterval(100 * time.Millisecond),
				WithMultiplier(2.0),
			},
			attempt:  1,
			expected: 200 * time.Millisecond,
		},
		{
			name: "third retry quadruples",
			opts: []ExponentialOption{
				WithInitialInterval(100 * time.Millisecond),
				WithMultiplier(2.0),
			},
			attempt:  2,
			expected: 400 * time.Millisecond,
		},
		{
			name: "capped at max interval",
			opts: []ExponentialOption{
				WithInitialInterval(time.Second),
				WithMultiplier(2.0),
				WithMaxInterval(3 * time.Second),
			},
			attempt:  5,
			expected: 3 * time.Second,
		},
		{
			name: "multiplier of three",
			opts: []ExponentialOption{
				WithInitialInterval(10 * time.Millisecond),
				WithMultiplier(3.0),
			},
			attempt:  2,
			expected: 90 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExponential(tt.opts...)
			result := e.Next(tt.attempt)
			if result != tt.expected {
				t.Errorf("Exponential.Next(%d) = %v; want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestExponential_NextWithJitter(t *testing.T) {
	e := NewExponential(
		WithInitialInterval(100*time.Millisecond),
		WithMultiplier(2.0),
		WithJitter(true),
	)

	base := 200 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := e.Next(1)
		if d < base/2 || d >= base*3/2 {
			t.Fatalf("jittered delay %v outside [%v, %v)", d, base/2, base*3/2)
		}
	}
}

func TestExponential_JitterCanExceedMaxInterval(t *testing.T) {
	// The cap is applied before jitter, so jitter may push the final
	// delay past maxInterval.
	e := NewExponential(
		WithInitialInterval(time.Second),
		WithMultiplier(2.0),
		WithMaxInterval(time.Second),
		WithJitter(true),
	)

	exceeded := false
	for i := 0; i < 1000; i++ {
		if e.Next(5) > time.Second {
			exceeded = true
			break
		}
	}
	if !exceeded {
		t.Error("expected at least one jittered delay above maxInterval")
	}
}

func BenchmarkExponential_Next(b *testing.B) {
	e := NewExponential()
	for i := 0; i < b.N; i++ {
		e.Next(uint(i % 10))
	}
}
