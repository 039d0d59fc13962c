package runner

import (
	"context"
	"sync"

	actionqueue "github.com/goliatone/go-actionqueue"
	"golang.org/x/sync/semaphore"
)

// Pool runs work on goroutines, at most size at a time.
// A size of zero or less means unbounded.
type Pool struct {
	logger       actionqueue.Logger
	panicHandler func(error)

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(size int, opts ...PoolOption) *Pool {
	p := &Pool{}
	if size > 0 {
		p.sem = semaphore.NewWeighted(int64(size))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = actionqueue.NormalizeLogger(p.logger)
	return p
}

// Go schedules fn and returns immediately. Once accepted, fn is always called,
// possibly after waiting for a free slot; ctx is handed to fn as is.
func (p *Pool) Go(ctx context.Context, fn func(context.Context)) error {
	if fn == nil {
		return actionqueue.NewError(actionqueue.ErrNilCallback, "pool callback cannot be nil", nil, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return actionqueue.NewError(actionqueue.ErrDisposed, "worker pool closed", nil, nil)
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		if p.sem != nil {
			// accepted work runs even when ctx is already canceled
			_ = p.sem.Acquire(context.Background(), 1)
			defer p.sem.Release(1)
		}
		p.exec(ctx, fn)
	}()
	return nil
}

// Close stops accepting work and waits for scheduled work to finish or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) exec(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			err := actionqueue.RecoverFault("worker_pool", r, nil)
			p.logger.Error("worker pool recovered from panic: %v", r)
			if p.panicHandler != nil {
				p.panicHandler(err)
			}
		}
	}()
	fn(ctx)
}
