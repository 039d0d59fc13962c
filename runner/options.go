package runner

import (
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
)

type Option func(*Handler)

func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		r.timeout = t
	}
}

func WithDeadline(d time.Time) Option {
	return func(r *Handler) {
		r.deadline = d
	}
}

func WithRunOnce(once bool) Option {
	return func(r *Handler) {
		r.once = once
	}
}

func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		r.maxRetries = max
	}
}

func WithMaxRuns(max int) Option {
	return func(r *Handler) {
		r.maxRuns = max
	}
}

func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(err error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l actionqueue.Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

func WithDoneHandler(d func(*Handler)) Option {
	return func(r *Handler) {
		if d == nil {
			d = func(r *Handler) {}
		}
		r.doneHandler = d
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		r.retryStrategy = s
	}
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopBuffer sets how many callbacks can wait for the loop goroutine.
func WithLoopBuffer(size int) LoopOption {
	return func(l *Loop) {
		if size >= 0 {
			l.buffer = size
		}
	}
}

func WithLoopLogger(logger actionqueue.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

func WithPoolLogger(logger actionqueue.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithPanicHandler receives faults recovered from pool work.
func WithPanicHandler(h func(error)) PoolOption {
	return func(p *Pool) {
		p.panicHandler = h
	}
}
