package manager

import (
	"fmt"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/queue"
	"golang.org/x/sync/errgroup"
)

// Registry maps keys to queues. It is not safe for concurrent use;
// the Manager serializes every access under its own lock.
type Registry[K comparable] struct {
	queues map[K]*queue.Queue[K]
}

func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{queues: make(map[K]*queue.Queue[K])}
}

// Add registers q under its key. A key holds at most one queue.
func (r *Registry[K]) Add(q *queue.Queue[K]) error {
	if q == nil {
		return actionqueue.NewError(actionqueue.ErrConfigInvalid, "cannot register a nil queue", nil, nil)
	}
	if r.queues == nil {
		r.queues = make(map[K]*queue.Queue[K])
	}
	if _, exists := r.queues[q.Key()]; exists {
		return actionqueue.NewError(actionqueue.ErrQueueExists, "", nil, map[string]any{
			"queue_key": fmt.Sprint(q.Key()),
		})
	}
	r.queues[q.Key()] = q
	return nil
}

func (r *Registry[K]) Get(key K) (*queue.Queue[K], bool) {
	q, ok := r.queues[key]
	return q, ok
}

// Remove deletes the entry for key only when it still points at q.
func (r *Registry[K]) Remove(key K, q *queue.Queue[K]) bool {
	current, ok := r.queues[key]
	if !ok || current != q {
		return false
	}
	delete(r.queues, key)
	return true
}

func (r *Registry[K]) Len() int {
	return len(r.queues)
}

// Queues returns the registered queues without removing them.
func (r *Registry[K]) Queues() []*queue.Queue[K] {
	out := make([]*queue.Queue[K], 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}

// Drain removes and returns every registered queue.
func (r *Registry[K]) Drain() []*queue.Queue[K] {
	out := r.Queues()
	r.queues = make(map[K]*queue.Queue[K])
	return out
}

// Dispose drains the registry and disposes every queue it held.
func (r *Registry[K]) Dispose() {
	DisposeAll(r.Drain())
}

// DisposeAll disposes queues in parallel and waits for all of them.
func DisposeAll[K comparable](queues []*queue.Queue[K]) {
	var g errgroup.Group
	for _, q := range queues {
		g.Go(func() error {
			q.Dispose()
			return nil
		})
	}
	_ = g.Wait()
}
