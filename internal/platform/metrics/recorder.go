// Package metrics exposes the tracker's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "rank_tracker"

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithRegistry registers collectors on registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func WithRuntimeCollectors(enabled bool) Option {
	return func(r *Recorder) {
		r.runtime = enabled
	}
}

// Recorder implements the pipeline metrics sink on prometheus.
type Recorder struct {
	namespace string
	registry  *prometheus.Registry
	runtime   bool

	ingestions    *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	cycleFailures *prometheus.CounterVec
	coalesced     *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	pruned        *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	lastCycleUnix *prometheus.GaugeVec
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: defaultNamespace,
		runtime:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}
	if r.runtime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(r.registry)
	r.ingestions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "ingestion",
		Name:      "results_total",
		Help:      "Ingestion results by game and outcome.",
	}, []string{"game", "outcome"})
	r.cycleDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "jobs",
		Name:      "run_duration_seconds",
		Help:      "Duration of scheduled job runs.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})
	r.cycleFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "jobs",
		Name:      "run_failures_total",
		Help:      "Job runs that returned an error.",
	}, []string{"kind"})
	r.lastCycleUnix = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: "jobs",
		Name:      "last_run_unixtime",
		Help:      "Completion time of the most recent run.",
	}, []string{"kind"})
	r.coalesced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "jobs",
		Name:      "coalesced_total",
		Help:      "Triggers dropped because a run of the same kind was in flight.",
	}, []string{"kind"})
	r.deliveries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "reports",
		Name:      "deliveries_total",
		Help:      "Report deliveries by channel and status.",
	}, []string{"channel", "status"})
	r.pruned = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "retention",
		Name:      "pruned_total",
		Help:      "Rows removed by retention pruning.",
	}, []string{"store"})
	r.providerCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Upstream provider calls by result.",
	}, []string{"provider", "result"})

	return r
}

func (r *Recorder) ObserveIngestion(game, outcome string) {
	r.ingestions.WithLabelValues(game, outcome).Inc()
}

func (r *Recorder) ObserveCycle(kind string, duration time.Duration, failed bool) {
	r.cycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
	r.lastCycleUnix.WithLabelValues(kind).SetToCurrentTime()
	if failed {
		r.cycleFailures.WithLabelValues(kind).Inc()
	}
}

func (r *Recorder) IncCoalesced(kind string) {
	r.coalesced.WithLabelValues(kind).Inc()
}

func (r *Recorder) ObserveDelivery(channel, status string) {
	r.deliveries.WithLabelValues(channel, status).Inc()
}

func (r *Recorder) AddPruned(store string, count int64) {
	if count <= 0 {
		return
	}
	r.pruned.WithLabelValues(store).Add(float64(count))
}

func (r *Recorder) ObserveProviderCall(provider, result string) {
	r.providerCalls.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
