package runner

import (
	"math"
	"time"
)

// RetryStrategy encapsulates the delay between retries.
type RetryStrategy interface {
	// SleepDuration returns how long to wait before the next retry attempt.
	// The attempt index starts at 0, incrementing after each failure.
	SleepDuration(attempt int, err error) time.Duration
}

// RetryDecision is the resolved plan for the next attempt.
type RetryDecision struct {
	ShouldRetry bool
	Delay       time.Duration
	Metadata    map[string]any
}

// RetryDecider is implemented by strategies that can also veto a retry.
type RetryDecider interface {
	DecideRetry(attempt int, err error) RetryDecision
}

// DecideRetry asks strategy for a decision, falling back to SleepDuration.
func DecideRetry(strategy RetryStrategy, attempt int, err error) RetryDecision {
	if strategy == nil {
		return RetryDecision{ShouldRetry: true}
	}
	if decider, ok := strategy.(RetryDecider); ok {
		return decider.DecideRetry(attempt, err)
	}
	return RetryDecision{
		ShouldRetry: true,
		Delay:       strategy.SleepDuration(attempt, err),
	}
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (n NoDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return 0
}

// ConstantDelayStrategy waits the same delay between attempts.
type ConstantDelayStrategy struct {
	Delay time.Duration
}

func (c ConstantDelayStrategy) SleepDuration(_ int, _ error) time.Duration {
	return c.Delay
}

// ExponentialBackoffStrategy implements a capped exponential backoff.
//
//	WithRetryStrategy(ExponentialBackoffStrategy{
//	    Base:   100 * time.Millisecond,
//	    Factor: 2,
//	    Max:    5 * time.Second,
//	})
type ExponentialBackoffStrategy struct {
	// Base is the starting delay (e.g., 100ms)
	Base time.Duration
	// Factor is multiplied each iteration (e.g., 2 => 100ms, 200ms, 400ms, ...)
	Factor float64
	// Max caps the delay. Zero means no cap.
	Max time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(e.Base) * math.Pow(factor, float64(attempt))
	if e.Max > 0 && (delay > float64(e.Max) || math.IsInf(delay, 1)) {
		return e.Max
	}
	return time.Duration(delay)
}

// RetryIf limits strategy to errors accepted by retryable. Any other error
// ends the run without a retry.
func RetryIf(strategy RetryStrategy, retryable func(error) bool) RetryStrategy {
	if strategy == nil {
		strategy = NoDelayStrategy{}
	}
	return conditionalStrategy{inner: strategy, retryable: retryable}
}

type conditionalStrategy struct {
	inner     RetryStrategy
	retryable func(error) bool
}

func (c conditionalStrategy) SleepDuration(attempt int, err error) time.Duration {
	return c.inner.SleepDuration(attempt, err)
}

func (c conditionalStrategy) DecideRetry(attempt int, err error) RetryDecision {
	if c.retryable != nil && !c.retryable(err) {
		return RetryDecision{
			ShouldRetry: false,
			Metadata:    map[string]any{"reason": "not retryable"},
		}
	}
	return DecideRetry(c.inner, attempt, err)
}
