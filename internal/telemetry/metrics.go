package telemetry

import (
	"context"

	"github.com/ramonehamilton/commander-deckgen/internal/metrics"
)

// MetricsSink feeds the in-process stats and the Prometheus collectors.
// Either may be nil.
type MetricsSink struct {
	stats      *metrics.RefinementMetrics
	collectors *metrics.Collectors
}

// NewMetricsSink creates a metrics sink.
func NewMetricsSink(stats *metrics.RefinementMetrics, collectors *metrics.Collectors) *MetricsSink {
	return &MetricsSink{stats: stats, collectors: collectors}
}

// RecordAttempt updates attempt series.
func (s *MetricsSink) RecordAttempt(_ context.Context, a AttemptSummary) error {
	if s.stats != nil {
		s.stats.RecordAttempt(metrics.AttemptSample{
			Generation:   a.GenerationLatency,
			Validation:   a.ValidationLatency,
			Total:        a.Latency,
			Malformed:    a.Outcome == OutcomeMalformed,
			Rescued:      a.Rescued,
			Invalid:      a.Invalid,
			InfraRetries: a.InfraRetries,
		})
	}
	if c := s.collectors; c != nil {
		c.Attempts.WithLabelValues(a.Outcome).Inc()
		if a.GenerationLatency > 0 {
			c.StageLatency.WithLabelValues(PathwayGeneration).Observe(a.GenerationLatency.Seconds())
		}
		if a.ValidationLatency > 0 {
			c.StageLatency.WithLabelValues(PathwayValidation).Observe(a.ValidationLatency.Seconds())
		}
		c.StageLatency.WithLabelValues("attempt").Observe(a.Latency.Seconds())
		if a.Rescued > 0 {
			c.CardsRescued.Add(float64(a.Rescued))
		}
		for reason, n := range a.InvalidReasons {
			c.CardsRejected.WithLabelValues(reason).Add(float64(n))
		}
	}
	return nil
}

// RecordSession updates session series.
func (s *MetricsSink) RecordSession(_ context.Context, sess SessionSummary) error {
	aborted := sess.AbortReason != ""
	if s.stats != nil {
		s.stats.RecordSession(sess.Latency, sess.Complete, aborted)
	}
	if c := s.collectors; c != nil {
		c.Sessions.WithLabelValues(sess.TerminalState, sess.AbortReason).Inc()
		c.StageLatency.WithLabelValues("session").Observe(sess.Latency.Seconds())
		if !aborted {
			c.DeckSize.Observe(float64(sess.FinalSize))
		}
	}
	return nil
}
