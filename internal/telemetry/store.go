package telemetry

import (
	"context"
	"strings"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

// Store is the persistence the StoreSink writes through. *storage.Service
// satisfies it.
type Store interface {
	RecordAttempt(ctx context.Context, a *models.RefinementAttempt) error
	RecordSession(ctx context.Context, s *models.RefinementSession) error
}

// StoreSink persists summaries as rows.
type StoreSink struct {
	store Store
}

// NewStoreSink creates a sink backed by store.
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

// RecordAttempt stores a refinement_attempts row.
func (s *StoreSink) RecordAttempt(ctx context.Context, a AttemptSummary) error {
	return s.store.RecordAttempt(ctx, &models.RefinementAttempt{
		SessionID:         a.SessionID,
		Attempt:           a.Attempt,
		Outcome:           a.Outcome,
		Model:             a.Model,
		Pathways:          strings.Join(a.Pathways, ","),
		PromptFingerprint: a.PromptFingerprint,
		LatencyMs:         a.Latency.Milliseconds(),
		GenerationMs:      a.GenerationLatency.Milliseconds(),
		ValidationMs:      a.ValidationLatency.Milliseconds(),
		ValidCount:        a.Valid,
		RescuedCount:      a.Rescued,
		InvalidCount:      a.Invalid,
		TotalSize:         a.TotalSize,
		IsComplete:        a.Complete,
		InfraRetries:      a.InfraRetries,
		CreatedAt:         a.At,
	})
}

// RecordSession stores a refinement_sessions row.
func (s *StoreSink) RecordSession(ctx context.Context, sess SessionSummary) error {
	return s.store.RecordSession(ctx, &models.RefinementSession{
		SessionID:         sess.SessionID,
		TerminalState:     sess.TerminalState,
		AbortReason:       sess.AbortReason,
		Commander:         sess.Commander,
		Model:             sess.Model,
		PromptFingerprint: sess.PromptFingerprint,
		Attempts:          sess.Attempts,
		FinalSize:         sess.FinalSize,
		IsComplete:        sess.Complete,
		EstimatedPriceUSD: sess.EstimatedPriceUSD,
		LatencyMs:         sess.Latency.Milliseconds(),
		CreatedAt:         sess.At,
	})
}
