package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	actionqueue "github.com/goliatone/go-actionqueue"
	"github.com/goliatone/go-actionqueue/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	p := New(nil)

	p.QueueOpened()
	p.QueueOpened()
	p.QueueDisposed()
	p.ActionAdmitted("sync")
	p.ActionAdmitted("")
	p.ActionRejected("sync", queue.Blocked)
	p.ActionExecuted("sync", 20*time.Millisecond, true)
	p.ActionExecuted("sync", time.Millisecond, false)
	p.ActionFaulted("sync")
	p.ActionsAborted(3)
	p.ActionsAborted(0)
	p.PendingChanged(2)
	p.PendingChanged(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.QueuesActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.QueuesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.AdmittedTotal.WithLabelValues("sync")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.AdmittedTotal.WithLabelValues(unknownKind)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.RejectedTotal.WithLabelValues("sync", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ExecutedTotal.WithLabelValues("sync", statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ExecutedTotal.WithLabelValues("sync", statusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.FaultsTotal.WithLabelValues("sync")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.AbortedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.PendingActions))
}

func TestDurationHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	p.ActionExecuted("upload", 250*time.Millisecond, true)
	p.ActionExecuted("upload", 750*time.Millisecond, true)

	families, err := reg.Gather()
	require.NoError(t, err)

	hist := findFamily(families, "actionqueue_action_duration_seconds")
	require.NotNil(t, hist)
	require.Len(t, hist.GetMetric(), 1)
	h := hist.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 1.0, h.GetSampleSum(), 0.0001)
}

func TestRegisteringTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestHandlerServesMetrics(t *testing.T) {
	p := New(nil)
	p.ActionAdmitted("sync")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "actionqueue_actions_admitted_total"))
}

func TestQueueFeedsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(reg)

	q := queue.New("k",
		queue.WithRecorder[string](p),
		queue.WithLogger[string](actionqueue.NopLogger{}),
	)

	create := actionqueue.NewAction("k", nil, false,
		actionqueue.WithFlags(actionqueue.Creational),
		actionqueue.WithKind("open"),
	)
	ok, err := q.Enqueue(create)
	require.NoError(t, err)
	require.True(t, ok)
	<-create.Done()

	failing := actionqueue.NewAction("k", func(context.Context) error { return errors.New("boom") }, false,
		actionqueue.WithKind("write"),
	)
	ok, err = q.Enqueue(failing)
	require.NoError(t, err)
	require.True(t, ok)
	<-failing.Done()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(p.FaultsTotal.WithLabelValues("write")) == 1
	}, time.Second, time.Millisecond)

	q.Dispose()

	assert.Equal(t, 1.0, testutil.ToFloat64(p.AdmittedTotal.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ExecutedTotal.WithLabelValues("write", statusFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.QueuesActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.PendingActions))
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}
