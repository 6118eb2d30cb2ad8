package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

// SessionRepository handles database operations for refinement sessions.
type SessionRepository interface {
	// Upsert inserts or replaces a session summary.
	Upsert(ctx context.Context, s *models.RefinementSession) error

	// GetByID retrieves a session by id. Returns nil if not found.
	GetByID(ctx context.Context, sessionID string) (*models.RefinementSession, error)

	// GetRecent retrieves the newest sessions.
	GetRecent(ctx context.Context, limit int) ([]*models.RefinementSession, error)

	// GetStats aggregates every stored session.
	GetStats(ctx context.Context) (*models.SessionStats, error)

	// DeleteOlderThan removes sessions created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Upsert(ctx context.Context, s *models.RefinementSession) error {
	query := `
		INSERT INTO refinement_sessions (
			session_id, terminal_state, abort_reason, commander, model, prompt_fingerprint,
			attempts, final_size, is_complete, estimated_price_usd, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			terminal_state = excluded.terminal_state,
			abort_reason = excluded.abort_reason,
			commander = excluded.commander,
			model = excluded.model,
			attempts = excluded.attempts,
			final_size = excluded.final_size,
			is_complete = excluded.is_complete,
			estimated_price_usd = excluded.estimated_price_usd,
			latency_ms = excluded.latency_ms
	`

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, query,
		s.SessionID,
		s.TerminalState,
		s.AbortReason,
		s.Commander,
		s.Model,
		s.PromptFingerprint,
		s.Attempts,
		s.FinalSize,
		s.IsComplete,
		s.EstimatedPriceUSD,
		s.LatencyMs,
		s.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

const sessionColumns = `
	session_id, terminal_state, abort_reason, commander, model, prompt_fingerprint,
	attempts, final_size, is_complete, estimated_price_usd, latency_ms, created_at`

func (r *sessionRepository) GetByID(ctx context.Context, sessionID string) (*models.RefinementSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM refinement_sessions WHERE session_id = ?`, sessionID)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) GetRecent(ctx context.Context, limit int) ([]*models.RefinementSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM refinement_sessions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.RefinementSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *sessionRepository) GetStats(ctx context.Context) (*models.SessionStats, error) {
	stats := &models.SessionStats{ByTerminalState: make(map[string]int)}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(attempts), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(SUM(CASE WHEN is_complete = 1 THEN 1 ELSE 0 END), 0)
		FROM refinement_sessions
	`).Scan(&stats.Sessions, &stats.AvgAttempts, &stats.AvgLatencyMs, &stats.CompleteSessions)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT terminal_state, COUNT(*)
		FROM refinement_sessions
		GROUP BY terminal_state
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		stats.ByTerminalState[state] = n
	}
	return stats, rows.Err()
}

func (r *sessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refinement_sessions WHERE created_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*models.RefinementSession, error) {
	s := &models.RefinementSession{}
	var createdAt string
	err := row.Scan(
		&s.SessionID,
		&s.TerminalState,
		&s.AbortReason,
		&s.Commander,
		&s.Model,
		&s.PromptFingerprint,
		&s.Attempts,
		&s.FinalSize,
		&s.IsComplete,
		&s.EstimatedPriceUSD,
		&s.LatencyMs,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	return s, nil
}
