package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perimeter"

// Metrics holds the service collectors on a private registry so tests can
// build as many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	Verdicts          *prometheus.CounterVec
	RemoteFailures    *prometheus.CounterVec
	NarrativeFailures *prometheus.CounterVec
	RemoteDuration    *prometheus.HistogramVec
	EvaluatorSweeps   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts returned, by source (stored, remote, local).",
		}, []string{"source"}),
		RemoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_failures_total",
			Help:      "Failed calls to the analysis service, by endpoint.",
		}, []string{"service"}),
		NarrativeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_failures_total",
			Help:      "Failed narrative refinements, by part (summary, controls).",
		}, []string{"part"}),
		RemoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_duration_seconds",
			Help:      "Latency of analysis service calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		EvaluatorSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluator_sweeps_total",
			Help:      "Background evaluation sweeps run.",
		}),
	}

	m.registry.MustRegister(
		m.Verdicts,
		m.RemoteFailures,
		m.NarrativeFailures,
		m.RemoteDuration,
		m.EvaluatorSweeps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
