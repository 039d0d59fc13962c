package manager

import (
	"testing"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(key string) *queue.Queue[string] {
	return queue.New(key, queue.WithLogger[string](actionqueue.NopLogger{}))
}

func TestRegistryAddAndGet(t *testing.T) {
	r := NewRegistry[string]()
	q := newTestQueue("a")

	require.NoError(t, r.Add(q))
	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Same(t, q, got)

	_, ok = r.Get("b")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateKey(t *testing.T) {
	r := NewRegistry[string]()
	require.NoError(t, r.Add(newTestQueue("a")))

	err := r.Add(newTestQueue("a"))
	require.Error(t, err)
	assert.True(t, actionqueue.IsQueueExists(err))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRejectsNilQueue(t *testing.T) {
	r := NewRegistry[string]()
	err := r.Add(nil)
	assert.True(t, actionqueue.IsConfigInvalid(err))
}

func TestRegistryRemoveOnlyMatchingInstance(t *testing.T) {
	r := NewRegistry[string]()
	current := newTestQueue("a")
	stale := newTestQueue("a")
	require.NoError(t, r.Add(current))

	assert.False(t, r.Remove("a", stale))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove("a", current))
	assert.Zero(t, r.Len())
	assert.False(t, r.Remove("a", current))
}

func TestRegistryDispose(t *testing.T) {
	r := NewRegistry[string]()
	a, b := newTestQueue("a"), newTestQueue("b")
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(b))
	assert.Len(t, r.Queues(), 2)

	r.Dispose()
	assert.Zero(t, r.Len())
	assert.Equal(t, queue.Disposed, a.State())
	assert.Equal(t, queue.Disposed, b.State())
}

func TestZeroRegistryIsUsable(t *testing.T) {
	var r Registry[string]
	require.NoError(t, r.Add(newTestQueue("a")))
	assert.Equal(t, 1, r.Len())
}
