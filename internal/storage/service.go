package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
	"github.com/ramonehamilton/commander-deckgen/internal/storage/repository"
)

// Service provides high-level operations over stored telemetry.
type Service struct {
	db       *DB
	attempts repository.AttemptRepository
	sessions repository.SessionRepository
}

// NewService creates a new storage service.
func NewService(db *DB) *Service {
	return &Service{
		db:       db,
		attempts: repository.NewAttemptRepository(db.Conn()),
		sessions: repository.NewSessionRepository(db.Conn()),
	}
}

// RecordAttempt stores one refinement attempt.
func (s *Service) RecordAttempt(ctx context.Context, a *models.RefinementAttempt) error {
	if err := s.attempts.Create(ctx, a); err != nil {
		return fmt.Errorf("failed to store attempt %d of %s: %w", a.Attempt, a.SessionID, err)
	}
	return nil
}

// RecordSession stores or replaces a session summary.
func (s *Service) RecordSession(ctx context.Context, sess *models.RefinementSession) error {
	if err := s.sessions.Upsert(ctx, sess); err != nil {
		return fmt.Errorf("failed to store session %s: %w", sess.SessionID, err)
	}
	return nil
}

// RecentAttempts returns the newest attempts, newest first.
func (s *Service) RecentAttempts(ctx context.Context, limit int) ([]*models.RefinementAttempt, error) {
	return s.attempts.GetRecent(ctx, limit)
}

// SessionAttempts returns the attempts of one session in order.
func (s *Service) SessionAttempts(ctx context.Context, sessionID string) ([]*models.RefinementAttempt, error) {
	return s.attempts.GetBySession(ctx, sessionID)
}

// Session returns a stored session summary, or nil.
func (s *Service) Session(ctx context.Context, sessionID string) (*models.RefinementSession, error) {
	return s.sessions.GetByID(ctx, sessionID)
}

// Statistics combines session aggregates with per-outcome attempt counts.
type Statistics struct {
	Sessions          *models.SessionStats
	AttemptsByOutcome map[string]int
}

// GetStats aggregates everything in the store.
func (s *Service) GetStats(ctx context.Context) (*Statistics, error) {
	sessions, err := s.sessions.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	outcomes, err := s.attempts.CountByOutcome(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	return &Statistics{Sessions: sessions, AttemptsByOutcome: outcomes}, nil
}

// PruneResult reports what a Prune call removed.
type PruneResult struct {
	Cutoff          time.Time
	RemovedAttempts int64
	RemovedSessions int64
}

// Prune deletes attempts and sessions older than maxAge in one transaction.
// A non-positive maxAge keeps everything.
func (s *Service) Prune(ctx context.Context, maxAge time.Duration) (*PruneResult, error) {
	result := &PruneResult{Cutoff: time.Now().UTC().Add(-maxAge)}
	if maxAge <= 0 {
		return result, nil
	}

	err := s.db.WithTransaction(ctx, "prune telemetry", func(tx *Tx) error {
		n, err := tx.Attempts.DeleteOlderThan(ctx, result.Cutoff)
		if err != nil {
			return fmt.Errorf("attempts: %w", err)
		}
		result.RemovedAttempts = n

		n, err = tx.Sessions.DeleteOlderThan(ctx, result.Cutoff)
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
		result.RemovedSessions = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}
