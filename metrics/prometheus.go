package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-actionqueue/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "actionqueue"

	statusSuccess = "success"
	statusFailure = "failure"

	unknownKind = "unknown"
)

// Prometheus records queue activity as Prometheus metrics.
// Labels carry the action kind only, so cardinality stays bounded by the
// flag table rather than by the number of keys.
type Prometheus struct {
	gatherer prometheus.Gatherer

	QueuesActive   prometheus.Gauge
	QueuesTotal    prometheus.Counter
	PendingActions prometheus.Gauge
	AdmittedTotal  *prometheus.CounterVec
	RejectedTotal  *prometheus.CounterVec
	ExecutedTotal  *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	FaultsTotal    *prometheus.CounterVec
	AbortedTotal   prometheus.Counter
}

var _ queue.Recorder = (*Prometheus)(nil)

// New registers the queue metrics with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Prometheus {
	var gatherer prometheus.Gatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	factory := promauto.With(reg)
	return &Prometheus{
		gatherer: gatherer,

		QueuesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queues_active",
			Help:      "Number of live action queues",
		}),
		QueuesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queues_total",
			Help:      "Total number of action queues created",
		}),
		PendingActions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actions_pending",
			Help:      "Number of admitted actions waiting to run",
		}),
		AdmittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_admitted_total",
			Help:      "Total number of actions admitted to a queue",
		}, []string{"kind"}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_rejected_total",
			Help:      "Total number of actions turned away, by queue state",
		}, []string{"kind", "state"}),
		ExecutedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_executed_total",
			Help:      "Total number of executed actions",
		}, []string{"kind", "status"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		FaultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_faults_total",
			Help:      "Total number of unhandled action faults",
		}, []string{"kind"}),
		AbortedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_aborted_total",
			Help:      "Total number of pending actions dropped by forced disposal",
		}),
	}
}

func (p *Prometheus) QueueOpened() {
	p.QueuesActive.Inc()
	p.QueuesTotal.Inc()
}

func (p *Prometheus) QueueDisposed() {
	p.QueuesActive.Dec()
}

func (p *Prometheus) ActionAdmitted(kind string) {
	p.AdmittedTotal.WithLabelValues(label(kind)).Inc()
}

func (p *Prometheus) ActionRejected(kind string, state queue.State) {
	p.RejectedTotal.WithLabelValues(label(kind), state.String()).Inc()
}

func (p *Prometheus) ActionExecuted(kind string, duration time.Duration, success bool) {
	status := statusSuccess
	if !success {
		status = statusFailure
	}
	kind = label(kind)
	p.ExecutedTotal.WithLabelValues(kind, status).Inc()
	p.Duration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (p *Prometheus) ActionFaulted(kind string) {
	p.FaultsTotal.WithLabelValues(label(kind)).Inc()
}

func (p *Prometheus) ActionsAborted(count int) {
	if count > 0 {
		p.AbortedTotal.Add(float64(count))
	}
}

func (p *Prometheus) PendingChanged(delta int) {
	p.PendingActions.Add(float64(delta))
}

// Handler exposes the metrics gathered by the backing registry.
// It falls back to the default gatherer when the registerer cannot gather.
func (p *Prometheus) Handler() http.Handler {
	gatherer := p.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func label(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return unknownKind
	}
	return kind
}
