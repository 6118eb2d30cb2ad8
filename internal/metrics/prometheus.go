package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deckgen"

// Collectors are the Prometheus series exported at /metrics.
type Collectors struct {
	registry *prometheus.Registry

	Attempts      *prometheus.CounterVec
	Sessions      *prometheus.CounterVec
	StageLatency  *prometheus.HistogramVec
	CardsRescued  prometheus.Counter
	CardsRejected *prometheus.CounterVec
	DeckSize      prometheus.Histogram
}

// NewCollectors registers the deck generation series on a fresh registry.
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collectors{
		registry: reg,
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "attempts_total",
			Help:      "Refinement attempts by outcome.",
		}, []string{"outcome"}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "sessions_total",
			Help:      "Finished sessions by terminal state and abort reason.",
		}, []string{"state", "reason"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "stage_latency_seconds",
			Help:      "Latency of generation, validation, attempts and sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"stage"}),
		CardsRescued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "cards_rescued_total",
			Help:      "Card names corrected by fuzzy rescue.",
		}),
		CardsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "cards_rejected_total",
			Help:      "Card entries rejected by validation, by reason.",
		}, []string{"reason"}),
		DeckSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "final_deck_size",
			Help:      "Card count of the record returned to the caller.",
			Buckets:   prometheus.LinearBuckets(60, 5, 10),
		}),
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
