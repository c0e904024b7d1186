// Package backoff provides retry delay strategies for step execution.
// All strategies are safe for concurrent use (they are stateless).
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Geometric
// ──────────────────────────────────────────────────

// Geometric multiplies the delay by a fixed factor each attempt.
// Delay = min(Initial * Multiplier^(attempt-1), Max).
type Geometric struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// NewGeometric creates a geometric backoff strategy.
func NewGeometric(initial time.Duration, multiplier float64, maxDelay time.Duration) *Geometric {
	return &Geometric{Initial: initial, Multiplier: multiplier, Max: maxDelay}
}

// Delay returns Initial * Multiplier^(attempt-1), capped at Max.
func (g *Geometric) Delay(attempt int) time.Duration {
	d := time.Duration(float64(g.Initial) * math.Pow(g.Multiplier, float64(attempt-1)))
	if g.Max > 0 && d > g.Max {
		return g.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (full jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many retries happen simultaneously.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// ──────────────────────────────────────────────────
// Policy wiring
// ──────────────────────────────────────────────────

// FromPolicy builds the strategy a retry policy declares: a constant
// delay when the backoff multiplier is absent or 1, otherwise a geometric
// progression capped at the policy's maximum delay.
func FromPolicy(delay time.Duration, multiplier float64, maxDelay time.Duration) Strategy {
	if delay <= 0 {
		delay = 1 * time.Second
	}
	if multiplier <= 1 {
		return NewConstant(delay)
	}
	return NewGeometric(delay, multiplier, maxDelay)
}
