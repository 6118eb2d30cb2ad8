package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	config := DefaultConfig(MemoryPath)
	config.AutoMigrate = true
	db, err := Open(config)
	require.NoError(t, err)
	svc := NewService(db)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_RecordAndRead(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordAttempt(ctx, &models.RefinementAttempt{
		SessionID: "s1", Attempt: 1, Outcome: models.OutcomeMalformed, Model: "m",
	}))
	require.NoError(t, svc.RecordAttempt(ctx, &models.RefinementAttempt{
		SessionID: "s1", Attempt: 2, Outcome: models.OutcomeComplete, Model: "m",
		TotalSize: 100, ValidCount: 99, IsComplete: true,
	}))
	require.NoError(t, svc.RecordSession(ctx, &models.RefinementSession{
		SessionID: "s1", TerminalState: "Succeeded", Attempts: 2, FinalSize: 100, IsComplete: true,
	}))

	attempts, err := svc.SessionAttempts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.True(t, attempts[1].IsComplete)

	sess, err := svc.Session(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 2, sess.Attempts)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions.Sessions)
	assert.Equal(t, 1, stats.AttemptsByOutcome[models.OutcomeMalformed])
	assert.Equal(t, 1, stats.AttemptsByOutcome[models.OutcomeComplete])
}

func TestService_RecordAttemptDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a := &models.RefinementAttempt{SessionID: "s1", Attempt: 1, Outcome: models.OutcomeIncomplete}
	require.NoError(t, svc.RecordAttempt(ctx, a))
	err := svc.RecordAttempt(ctx, &models.RefinementAttempt{SessionID: "s1", Attempt: 1, Outcome: models.OutcomeIncomplete})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1 of s1")
}

func TestService_Prune(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, svc.RecordAttempt(ctx, &models.RefinementAttempt{SessionID: "old", Attempt: 1, Outcome: models.OutcomeComplete, CreatedAt: old}))
	require.NoError(t, svc.RecordSession(ctx, &models.RefinementSession{SessionID: "old", TerminalState: "Succeeded", CreatedAt: old}))
	require.NoError(t, svc.RecordAttempt(ctx, &models.RefinementAttempt{SessionID: "new", Attempt: 1, Outcome: models.OutcomeComplete}))
	require.NoError(t, svc.RecordSession(ctx, &models.RefinementSession{SessionID: "new", TerminalState: "Succeeded"}))

	res, err := svc.Prune(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RemovedAttempts)
	assert.Equal(t, int64(1), res.RemovedSessions)

	recent, err := svc.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].SessionID)

	res, err = svc.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, res.RemovedAttempts)
}

func TestWithTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		err := svc.db.WithTransaction(ctx, "record", func(tx *Tx) error {
			return tx.Attempts.Create(ctx, &models.RefinementAttempt{SessionID: "kept", Attempt: 1, Outcome: models.OutcomeComplete})
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		err := svc.db.WithTransaction(ctx, "record", func(tx *Tx) error {
			if err := tx.Attempts.Create(ctx, &models.RefinementAttempt{SessionID: "dropped", Attempt: 1, Outcome: models.OutcomeMalformed}); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.Equal(t, "record: boom", err.Error())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = svc.db.WithTransaction(ctx, "record", func(tx *Tx) error {
				_ = tx.Attempts.Create(ctx, &models.RefinementAttempt{SessionID: "panicked", Attempt: 1, Outcome: models.OutcomeMalformed})
				panic("boom")
			})
		})
	})

	recent, err := svc.RecentAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "kept", recent[0].SessionID)
}
