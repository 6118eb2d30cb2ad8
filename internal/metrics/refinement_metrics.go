package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// RefinementMetrics tracks in-process latency and counters for deck generation.
type RefinementMetrics struct {
	// Latency histograms (in milliseconds)
	GenerationLatency *Histogram
	ValidationLatency *Histogram
	AttemptLatency    *Histogram
	SessionLatency    *Histogram

	// Counters
	Sessions         atomic.Uint64
	CompleteSessions atomic.Uint64
	Attempts         atomic.Uint64
	MalformedOutputs atomic.Uint64
	RescuedCards     atomic.Uint64
	InvalidCards     atomic.Uint64
	InfraRetries     atomic.Uint64
	Aborted          atomic.Uint64

	startTime time.Time
	mu        sync.RWMutex
}

// NewRefinementMetrics creates a new metrics collector.
func NewRefinementMetrics() *RefinementMetrics {
	return &RefinementMetrics{
		GenerationLatency: NewHistogram(10000),
		ValidationLatency: NewHistogram(10000),
		AttemptLatency:    NewHistogram(10000),
		SessionLatency:    NewHistogram(10000),
		startTime:         time.Now(),
	}
}

// AttemptSample is what one refinement attempt contributes.
type AttemptSample struct {
	Generation   time.Duration
	Validation   time.Duration
	Total        time.Duration
	Malformed    bool
	Rescued      int
	Invalid      int
	InfraRetries int
}

// RecordAttempt records one attempt.
func (m *RefinementMetrics) RecordAttempt(s AttemptSample) {
	m.Attempts.Add(1)
	if s.Generation > 0 {
		m.GenerationLatency.Record(s.Generation)
	}
	if s.Validation > 0 {
		m.ValidationLatency.Record(s.Validation)
	}
	m.AttemptLatency.Record(s.Total)
	if s.Malformed {
		m.MalformedOutputs.Add(1)
	}
	m.RescuedCards.Add(uint64(max(s.Rescued, 0)))
	m.InvalidCards.Add(uint64(max(s.Invalid, 0)))
	m.InfraRetries.Add(uint64(max(s.InfraRetries, 0)))
}

// RecordSession records a finished session.
func (m *RefinementMetrics) RecordSession(d time.Duration, complete, aborted bool) {
	m.Sessions.Add(1)
	m.SessionLatency.Record(d)
	if complete {
		m.CompleteSessions.Add(1)
	}
	if aborted {
		m.Aborted.Add(1)
	}
}

// RefinementStats contains the computed statistics from metrics.
type RefinementStats struct {
	GenerationLatency LatencyStats `json:"generation_latency"`
	ValidationLatency LatencyStats `json:"validation_latency"`
	AttemptLatency    LatencyStats `json:"attempt_latency"`
	SessionLatency    LatencyStats `json:"session_latency"`

	Sessions           uint64  `json:"sessions"`
	CompleteSessions   uint64  `json:"complete_sessions"`
	Attempts           uint64  `json:"attempts"`
	MalformedOutputs   uint64  `json:"malformed_outputs"`
	RescuedCards       uint64  `json:"rescued_cards"`
	InvalidCards       uint64  `json:"invalid_cards"`
	InfraRetries       uint64  `json:"infra_retries"`
	Aborted            uint64  `json:"aborted"`
	SuccessRate        float64 `json:"success_rate"`         // percentage
	AttemptsPerSession float64 `json:"attempts_per_session"` // mean

	Uptime string `json:"uptime"`
}

// LatencyStats contains statistics for a latency histogram.
type LatencyStats struct {
	Mean  float64 `json:"mean"` // milliseconds
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// GetStats returns a snapshot of the current statistics.
func (m *RefinementMetrics) GetStats() *RefinementStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := m.Sessions.Load()
	complete := m.CompleteSessions.Load()
	attempts := m.Attempts.Load()

	successRate := 0.0
	perSession := 0.0
	if sessions > 0 {
		successRate = float64(complete) / float64(sessions) * 100
		perSession = float64(attempts) / float64(sessions)
	}

	return &RefinementStats{
		GenerationLatency:  latencyStats(m.GenerationLatency),
		ValidationLatency:  latencyStats(m.ValidationLatency),
		AttemptLatency:     latencyStats(m.AttemptLatency),
		SessionLatency:     latencyStats(m.SessionLatency),
		Sessions:           sessions,
		CompleteSessions:   complete,
		Attempts:           attempts,
		MalformedOutputs:   m.MalformedOutputs.Load(),
		RescuedCards:       m.RescuedCards.Load(),
		InvalidCards:       m.InvalidCards.Load(),
		InfraRetries:       m.InfraRetries.Load(),
		Aborted:            m.Aborted.Load(),
		SuccessRate:        successRate,
		AttemptsPerSession: perSession,
		Uptime:             time.Since(m.startTime).Round(time.Second).String(),
	}
}

func latencyStats(h *Histogram) LatencyStats {
	return LatencyStats{
		Mean:  h.Mean(),
		P50:   h.Percentile(50),
		P95:   h.Percentile(95),
		P99:   h.Percentile(99),
		Min:   h.Min(),
		Max:   h.Max(),
		Count: h.Count(),
	}
}

// Reset clears all metrics.
func (m *RefinementMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerationLatency.Reset()
	m.ValidationLatency.Reset()
	m.AttemptLatency.Reset()
	m.SessionLatency.Reset()

	m.Sessions.Store(0)
	m.CompleteSessions.Store(0)
	m.Attempts.Store(0)
	m.MalformedOutputs.Store(0)
	m.RescuedCards.Store(0)
	m.InvalidCards.Store(0)
	m.InfraRetries.Store(0)
	m.Aborted.Store(0)

	m.startTime = time.Now()
}
