package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ramonehamilton/commander-deckgen/internal/api/response"
	"github.com/ramonehamilton/commander-deckgen/internal/metrics"
	"github.com/ramonehamilton/commander-deckgen/internal/storage"
	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 500
)

// TelemetryStore reads persisted telemetry.
type TelemetryStore interface {
	RecentAttempts(ctx context.Context, limit int) ([]*models.RefinementAttempt, error)
	SessionAttempts(ctx context.Context, sessionID string) ([]*models.RefinementAttempt, error)
	Session(ctx context.Context, sessionID string) (*models.RefinementSession, error)
	GetStats(ctx context.Context) (*storage.Statistics, error)
}

// TelemetryHandler serves attempt history and statistics. Either dependency may be nil.
type TelemetryHandler struct {
	store TelemetryStore
	stats *metrics.RefinementMetrics
}

// NewTelemetryHandler creates a new TelemetryHandler.
func NewTelemetryHandler(store TelemetryStore, stats *metrics.RefinementMetrics) *TelemetryHandler {
	return &TelemetryHandler{store: store, stats: stats}
}

var errStoreDisabled = errors.New("telemetry store is disabled")

// GetRecentAttempts returns the newest stored attempts.
func (h *TelemetryHandler) GetRecentAttempts(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		response.ServiceUnavailable(w, errStoreDisabled)
		return
	}

	limit := defaultAttemptLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(w, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxAttemptLimit)
	}

	var (
		attempts []*models.RefinementAttempt
		err      error
	)
	if session := r.URL.Query().Get("session"); session != "" {
		attempts, err = h.store.SessionAttempts(r.Context(), session)
	} else {
		attempts, err = h.store.RecentAttempts(r.Context(), limit)
	}
	if err != nil {
		response.InternalError(w, err)
		return
	}
	if attempts == nil {
		attempts = []*models.RefinementAttempt{}
	}
	response.Success(w, attempts)
}

// StatsResponse combines in-process counters with stored aggregates.
type StatsResponse struct {
	Process           *metrics.RefinementStats `json:"process,omitempty"`
	Sessions          *models.SessionStats     `json:"sessions,omitempty"`
	SuccessRate       float64                  `json:"success_rate"`
	AttemptsByOutcome map[string]int           `json:"attempts_by_outcome,omitempty"`
}

// GetStats returns latency percentiles and counters.
func (h *TelemetryHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	out := &StatsResponse{}
	if h.stats != nil {
		out.Process = h.stats.GetStats()
		out.SuccessRate = out.Process.SuccessRate
	}
	if h.store != nil {
		st, err := h.store.GetStats(r.Context())
		if err != nil {
			response.InternalError(w, err)
			return
		}
		out.Sessions = st.Sessions
		out.AttemptsByOutcome = st.AttemptsByOutcome
		if st.Sessions != nil {
			out.SuccessRate = st.Sessions.SuccessRate()
		}
	}
	response.Success(w, out)
}
