package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
)

type fixedDecisionStrategy struct {
	decision RetryDecision
}

func (f fixedDecisionStrategy) SleepDuration(int, error) time.Duration {
	return time.Hour
}

func (f fixedDecisionStrategy) DecideRetry(int, error) RetryDecision {
	return f.decision
}

func TestDecideRetryUsesDeciderWhenAvailable(t *testing.T) {
	strategy := fixedDecisionStrategy{
		decision: RetryDecision{
			ShouldRetry: false,
			Delay:       25 * time.Millisecond,
			Metadata: map[string]any{
				"source": "test",
			},
		},
	}

	decision := DecideRetry(strategy, 1, fmt.Errorf("boom"))
	if decision.ShouldRetry {
		t.Fatal("expected strategy decision to disable retry")
	}
	if decision.Delay != 25*time.Millisecond {
		t.Fatalf("unexpected delay: %s", decision.Delay)
	}
	if decision.Metadata["source"] != "test" {
		t.Fatal("expected metadata propagation")
	}
}

func TestDecideRetryFallsBackToSleepDuration(t *testing.T) {
	strategy := ExponentialBackoffStrategy{
		Base:   10 * time.Millisecond,
		Factor: 2,
		Max:    100 * time.Millisecond,
	}
	decision := DecideRetry(strategy, 2, nil)
	if !decision.ShouldRetry {
		t.Fatal("expected fallback strategy to retry")
	}
	if decision.Delay != 40*time.Millisecond {
		t.Fatalf("unexpected fallback delay: %s", decision.Delay)
	}
}

func TestExponentialBackoffCapsAtMax(t *testing.T) {
	strategy := ExponentialBackoffStrategy{Base: time.Second, Factor: 10, Max: 3 * time.Second}
	if got := strategy.SleepDuration(5, nil); got != 3*time.Second {
		t.Fatalf("expected capped delay, got %s", got)
	}
	if got := strategy.SleepDuration(-1, nil); got != time.Second {
		t.Fatalf("expected base delay for negative attempt, got %s", got)
	}
}

func TestConstantDelayStrategy(t *testing.T) {
	strategy := ConstantDelayStrategy{Delay: 7 * time.Millisecond}
	for attempt := 0; attempt < 3; attempt++ {
		if got := strategy.SleepDuration(attempt, nil); got != 7*time.Millisecond {
			t.Fatalf("attempt %d: unexpected delay %s", attempt, got)
		}
	}
}

func TestRetryIfVetoesUnmatchedErrors(t *testing.T) {
	retryable := errors.New("retryable")
	strategy := RetryIf(ConstantDelayStrategy{Delay: 10 * time.Millisecond}, func(err error) bool {
		return errors.Is(err, retryable)
	})

	decision := DecideRetry(strategy, 0, retryable)
	if !decision.ShouldRetry || decision.Delay != 10*time.Millisecond {
		t.Fatalf("expected retry after 10ms, got %+v", decision)
	}
	if decision := DecideRetry(strategy, 0, errors.New("fatal")); decision.ShouldRetry {
		t.Fatal("expected unmatched error to stop retries")
	}
}

func TestHandlerStopsOnNonRetryableError(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	h := NewHandler(
		WithMaxRetries(5),
		WithLogger(actionqueue.NopLogger{}),
		WithRetryStrategy(RetryIf(nil, func(err error) bool { return !errors.Is(err, fatal) })),
	)

	err := h.Run(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
