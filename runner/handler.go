package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-errors"
)

// Handler runs a function with retries, run limits and a timeout.
type Handler struct {
	mu sync.Mutex

	logger        actionqueue.Logger
	errorHandler  func(error)
	doneHandler   func(r *Handler)
	retryStrategy RetryStrategy

	runs           int
	successfulRuns int

	maxRuns    int
	maxRetries int
	timeout    time.Duration
	deadline   time.Time
	once       bool
}

// NewHandler constructs a Handler from various options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		errorHandler:  func(err error) {},
		doneHandler:   func(r *Handler) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	h.logger = actionqueue.NormalizeLogger(h.logger)
	return h
}

// Run calls fn until it succeeds or the retry budget is spent.
// It returns nil without calling fn once the run limits are reached.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	if h.once && h.successfulRuns >= 1 {
		h.mu.Unlock()
		return nil
	}
	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.mu.Unlock()
		return nil
	}
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn(ctx)
		if err == nil || attempt == maxRetries {
			break
		}

		decision := DecideRetry(strategy, attempt, err)
		h.logger.Error("run failed, attempt %d of %d: %v", attempt+1, maxRetries+1, err)
		h.errorHandler(errors.Wrap(err, errors.CategoryHandler, fmt.Sprintf("run failed, attempt %d of %d", attempt+1, maxRetries+1)).
			WithMetadata(map[string]any{
				"attempt":     attempt + 1,
				"max_retries": maxRetries,
				"retry":       decision.ShouldRetry,
			}))
		if !decision.ShouldRetry {
			break
		}
		if serr := sleep(ctx, decision.Delay); serr != nil {
			err = serr
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++
	if err == nil {
		h.successfulRuns++
	} else {
		h.errorHandler(errors.Wrap(err, errors.CategoryHandler, fmt.Sprintf("run failed after %d attempts", maxRetries+1)))
	}

	if h.maxRuns > 0 && h.successfulRuns >= h.maxRuns {
		h.doneHandler(h)
	}
	return err
}

// Runs returns the total and successful run counts.
func (h *Handler) Runs() (total, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
