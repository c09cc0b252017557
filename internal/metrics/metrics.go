// Package metrics exposes Prometheus instruments for job resolution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidresolve"

// Job outcomes as counted by the resolver.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the resolver instruments. A nil *Metrics records nothing.
type Metrics struct {
	jobs       *prometheus.CounterVec
	extraction *prometheus.HistogramVec
	batches    prometheus.Counter
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs handled by the resolver, by outcome.",
		}, []string{"outcome"}),
		extraction: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Time spent in the extractor per job.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"extractor", "result"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Message batches handled.",
		}),
	}
	reg.MustRegister(m.jobs, m.extraction, m.batches)
	return m
}

func (m *Metrics) JobOutcome(outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Batch() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// ObserveExtraction records one extractor call.
func (m *Metrics) ObserveExtraction(extractor string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.extraction.WithLabelValues(extractor, result).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
