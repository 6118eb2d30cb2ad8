package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

const timeLayout = "2006-01-02 15:04:05.999999"

// AttemptRepository handles database operations for refinement attempts.
type AttemptRepository interface {
	// Create inserts an attempt row.
	Create(ctx context.Context, a *models.RefinementAttempt) error

	// GetBySession retrieves the attempts of a session in attempt order.
	GetBySession(ctx context.Context, sessionID string) ([]*models.RefinementAttempt, error)

	// GetRecent retrieves the newest attempts across sessions.
	GetRecent(ctx context.Context, limit int) ([]*models.RefinementAttempt, error)

	// CountByOutcome counts attempts per outcome.
	CountByOutcome(ctx context.Context) (map[string]int, error)

	// DeleteOlderThan removes attempts created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type attemptRepository struct {
	db DBTX
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewAttemptRepository creates a new attempt repository.
func NewAttemptRepository(db DBTX) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, a *models.RefinementAttempt) error {
	query := `
		INSERT INTO refinement_attempts (
			session_id, attempt, outcome, model, pathways, prompt_fingerprint,
			latency_ms, generation_ms, validation_ms,
			valid_count, rescued_count, invalid_count, total_size, is_complete,
			infra_retries, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		a.SessionID,
		a.Attempt,
		a.Outcome,
		a.Model,
		a.Pathways,
		a.PromptFingerprint,
		a.LatencyMs,
		a.GenerationMs,
		a.ValidationMs,
		a.ValidCount,
		a.RescuedCount,
		a.InvalidCount,
		a.TotalSize,
		a.IsComplete,
		a.InfraRetries,
		a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

const attemptColumns = `
	id, session_id, attempt, outcome, model, pathways, prompt_fingerprint,
	latency_ms, generation_ms, validation_ms,
	valid_count, rescued_count, invalid_count, total_size, is_complete,
	infra_retries, created_at`

func (r *attemptRepository) GetBySession(ctx context.Context, sessionID string) ([]*models.RefinementAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM refinement_attempts
		WHERE session_id = ?
		ORDER BY attempt ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanAttempts(rows)
}

func (r *attemptRepository) GetRecent(ctx context.Context, limit int) ([]*models.RefinementAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + attemptColumns + `
		FROM refinement_attempts
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanAttempts(rows)
}

func (r *attemptRepository) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM refinement_attempts
		GROUP BY outcome
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

func (r *attemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refinement_attempts WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanAttempts(rows *sql.Rows) ([]*models.RefinementAttempt, error) {
	var attempts []*models.RefinementAttempt
	for rows.Next() {
		a := &models.RefinementAttempt{}
		var createdAt string
		err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.Attempt,
			&a.Outcome,
			&a.Model,
			&a.Pathways,
			&a.PromptFingerprint,
			&a.LatencyMs,
			&a.GenerationMs,
			&a.ValidationMs,
			&a.ValidCount,
			&a.RescuedCount,
			&a.InvalidCount,
			&a.TotalSize,
			&a.IsComplete,
			&a.InfraRetries,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}
		a.CreatedAt = parseTime(createdAt)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// parseTime reads timestamps written by this package or by CURRENT_TIMESTAMP.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
