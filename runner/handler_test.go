package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
)

func TestHandler_NoError_NoRetries(t *testing.T) {
	h := NewHandler()

	cf := countingFunc{failUntil: 0}
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cf.calls != 1 {
		t.Errorf("expected calls=1, got %d", cf.calls)
	}
	if runs, ok := h.Runs(); runs != 1 || ok != 1 {
		t.Errorf("expected runs=1 successful=1, got %d/%d", runs, ok)
	}
}

func TestHandler_SuccessOnSecondAttempt(t *testing.T) {
	h := NewHandler(WithMaxRetries(3))

	cf := countingFunc{failUntil: 1}
	if err := h.Run(context.Background(), cf.fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cf.calls != 2 {
		t.Errorf("expected calls=2, got %d", cf.calls)
	}
	if _, ok := h.Runs(); ok != 1 {
		t.Errorf("expected successfulRuns=1, got %d", ok)
	}
}

func TestHandler_AllAttemptsFail(t *testing.T) {
	var handled []error
	h := NewHandler(WithMaxRetries(2), WithErrorHandler(func(err error) {
		handled = append(handled, err)
	}))

	cf := countingFunc{failUntil: 5}
	if err := h.Run(context.Background(), cf.fn); err == nil {
		t.Fatal("expected final error")
	}

	if cf.calls != 3 {
		t.Errorf("expected calls=3 (1 initial + 2 retries), got %d", cf.calls)
	}
	if _, ok := h.Runs(); ok != 0 {
		t.Errorf("successfulRuns should remain 0 for all fail, got %d", ok)
	}
	if len(handled) != 3 {
		t.Errorf("expected 2 attempt errors and 1 final error, got %d", len(handled))
	}
}

func TestHandler_DeciderStopsRetries(t *testing.T) {
	h := NewHandler(WithMaxRetries(5), WithRetryStrategy(fixedDecisionStrategy{
		decision: RetryDecision{ShouldRetry: false},
	}))

	cf := countingFunc{failUntil: 5}
	if err := h.Run(context.Background(), cf.fn); err == nil {
		t.Fatal("expected error")
	}
	if cf.calls != 1 {
		t.Errorf("expected a single call, got %d", cf.calls)
	}
}

func TestHandler_RunOnce(t *testing.T) {
	h := NewHandler(WithRunOnce(true))

	cf := countingFunc{}
	_ = h.Run(context.Background(), cf.fn)
	_ = h.Run(context.Background(), cf.fn)

	if cf.calls != 1 {
		t.Errorf("expected calls=1 after second run (skipped), got %d", cf.calls)
	}
}

func TestHandler_MaxRuns(t *testing.T) {
	var doneCalls int
	h := NewHandler(
		WithMaxRuns(2),
		WithDoneHandler(func(*Handler) { doneCalls++ }),
	)

	cf := countingFunc{}
	for i := 0; i < 3; i++ {
		_ = h.Run(context.Background(), cf.fn)
	}

	if cf.calls != 2 {
		t.Errorf("expected calls=2, got %d", cf.calls)
	}
	if doneCalls != 1 {
		t.Errorf("expected done handler once, got %d", doneCalls)
	}
}

func TestHandler_Timeout(t *testing.T) {
	h := NewHandler(WithTimeout(50 * time.Millisecond))

	start := time.Now()
	err := h.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return nil
		}
	})

	if time.Since(start) >= 500*time.Millisecond {
		t.Error("expected function to time out quickly, but took too long")
	}
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestHandler_BackoffHonorsContext(t *testing.T) {
	h := NewHandler(
		WithMaxRetries(3),
		WithRetryStrategy(ConstantDelayStrategy{Delay: time.Second}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	cf := countingFunc{failUntil: 10}
	if err := h.Run(ctx, cf.fn); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) >= time.Second {
		t.Error("backoff should stop when the context ends")
	}
}

func TestHandler_Concurrency(t *testing.T) {
	h := NewHandler(WithMaxRetries(1))
	wg := sync.WaitGroup{}
	const goroutines = 10

	var mu sync.Mutex
	attempts := map[int]int{}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = h.Run(context.Background(), func(context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				attempts[id]++
				if attempts[id] == 1 {
					return fmt.Errorf("first attempt of %d", id)
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	if runs, ok := h.Runs(); runs != goroutines || ok != goroutines {
		t.Errorf("expected %d runs and successes, got %d/%d", goroutines, runs, ok)
	}
}

func TestHandler_Logger(t *testing.T) {
	ml := &mockLogger{}
	h := NewHandler(
		WithLogger(ml),
		WithMaxRetries(1),
	)

	cf := countingFunc{failUntil: 2}
	_ = h.Run(context.Background(), cf.fn)

	if len(ml.errorMessages) == 0 {
		t.Error("expected some error logs, got none")
	}
}

type mockLogger struct {
	actionqueue.NopLogger
	mu            sync.Mutex
	errorMessages []string
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMessages = append(m.errorMessages, fmt.Sprintf(msg, args...))
}

type countingFunc struct {
	calls     int
	failUntil int // fail this many times, then succeed
}

func (cf *countingFunc) fn(_ context.Context) error {
	cf.calls++
	if cf.calls <= cf.failUntil {
		return fmt.Errorf("forced error attempt %d", cf.calls)
	}
	return nil
}
