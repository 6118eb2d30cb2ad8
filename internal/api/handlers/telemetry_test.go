package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/commander-deckgen/internal/metrics"
	"github.com/ramonehamilton/commander-deckgen/internal/storage"
	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

type mockTelemetryStore struct {
	attempts  []*models.RefinementAttempt
	stats     *storage.Statistics
	err       error
	lastLimit int
	session   string
}

func (m *mockTelemetryStore) RecentAttempts(_ context.Context, limit int) ([]*models.RefinementAttempt, error) {
	m.lastLimit = limit
	return m.attempts, m.err
}

func (m *mockTelemetryStore) SessionAttempts(_ context.Context, sessionID string) ([]*models.RefinementAttempt, error) {
	m.session = sessionID
	return m.attempts, m.err
}

func (m *mockTelemetryStore) Session(_ context.Context, _ string) (*models.RefinementSession, error) {
	return nil, m.err
}

func (m *mockTelemetryStore) GetStats(_ context.Context) (*storage.Statistics, error) {
	return m.stats, m.err
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestGetRecentAttempts(t *testing.T) {
	store := &mockTelemetryStore{attempts: []*models.RefinementAttempt{
		{SessionID: "s1", Attempt: 2, Outcome: models.OutcomeComplete, TotalSize: 100, CreatedAt: time.Now()},
		{SessionID: "s1", Attempt: 1, Outcome: models.OutcomeIncomplete, TotalSize: 92, CreatedAt: time.Now()},
	}}
	h := NewTelemetryHandler(store, nil)

	w := get(h.GetRecentAttempts, "/telemetry/attempts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultAttemptLimit, store.lastLimit)

	var body struct {
		Data []models.RefinementAttempt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, 92, body.Data[1].TotalSize)

	get(h.GetRecentAttempts, "/telemetry/attempts?limit=10000")
	assert.Equal(t, maxAttemptLimit, store.lastLimit)

	get(h.GetRecentAttempts, "/telemetry/attempts?session=s1")
	assert.Equal(t, "s1", store.session)

	w = get(h.GetRecentAttempts, "/telemetry/attempts?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = get(h.GetRecentAttempts, "/telemetry/attempts?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	store.err = errors.New("disk full")
	w = get(h.GetRecentAttempts, "/telemetry/attempts")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetRecentAttempts_StoreDisabled(t *testing.T) {
	h := NewTelemetryHandler(nil, nil)
	w := get(h.GetRecentAttempts, "/telemetry/attempts")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetStats(t *testing.T) {
	stats := metrics.NewRefinementMetrics()
	stats.RecordAttempt(metrics.AttemptSample{Total: 2 * time.Second, Generation: time.Second})
	stats.RecordSession(2*time.Second, true, false)

	store := &mockTelemetryStore{stats: &storage.Statistics{
		Sessions:          &models.SessionStats{Sessions: 4, CompleteSessions: 3},
		AttemptsByOutcome: map[string]int{models.OutcomeComplete: 3, models.OutcomeIncomplete: 2},
	}}
	h := NewTelemetryHandler(store, stats)

	w := get(h.GetStats, "/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Data.Process)
	assert.Equal(t, uint64(1), body.Data.Process.Sessions)
	assert.InDelta(t, 75.0, body.Data.SuccessRate, 0.001)
	assert.Equal(t, 2, body.Data.AttemptsByOutcome[models.OutcomeIncomplete])

	// Without a store the in-process rate is reported.
	w = get(NewTelemetryHandler(nil, stats).GetStats, "/stats")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.InDelta(t, 100.0, body.Data.SuccessRate, 0.001)
}
