package models

import "time"

// Attempt outcomes as stored in refinement_attempts.outcome.
const (
	OutcomeComplete    = "complete"
	OutcomeIncomplete  = "incomplete"
	OutcomeMalformed   = "malformed"
	OutcomeAborted     = "aborted"
	OutcomeInfraFailed = "infra_failed"
)

// RefinementAttempt is one generation-validation pass of a session.
type RefinementAttempt struct {
	ID                int64     `json:"id" csv:"id"`
	SessionID         string    `json:"session_id" csv:"session_id"`
	Attempt           int       `json:"attempt" csv:"attempt"`
	Outcome           string    `json:"outcome" csv:"outcome"`
	Model             string    `json:"model" csv:"model"`
	Pathways          string    `json:"pathways" csv:"pathways"` // comma separated: generation,synergy,validation
	PromptFingerprint string    `json:"prompt_fingerprint" csv:"prompt_fingerprint"`
	LatencyMs         int64     `json:"latency_ms" csv:"latency_ms"`
	GenerationMs      int64     `json:"generation_ms" csv:"generation_ms"`
	ValidationMs      int64     `json:"validation_ms" csv:"validation_ms"`
	ValidCount        int       `json:"valid_count" csv:"valid_count"`
	RescuedCount      int       `json:"rescued_count" csv:"rescued_count"`
	InvalidCount      int       `json:"invalid_count" csv:"invalid_count"`
	TotalSize         int       `json:"total_size" csv:"total_size"`
	IsComplete        bool      `json:"is_complete" csv:"is_complete"`
	InfraRetries      int       `json:"infra_retries" csv:"infra_retries"`
	CreatedAt         time.Time `json:"created_at" csv:"created_at"`
}

// RefinementSession is the final summary of one GenerateDeck call.
type RefinementSession struct {
	SessionID         string    `json:"session_id"`
	TerminalState     string    `json:"terminal_state"`
	AbortReason       string    `json:"abort_reason"`
	Commander         string    `json:"commander"`
	Model             string    `json:"model"`
	PromptFingerprint string    `json:"prompt_fingerprint"`
	Attempts          int       `json:"attempts"`
	FinalSize         int       `json:"final_size"`
	IsComplete        bool      `json:"is_complete"`
	EstimatedPriceUSD float64   `json:"estimated_price_usd"`
	LatencyMs         int64     `json:"latency_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

// SessionStats aggregates stored sessions.
type SessionStats struct {
	Sessions         int            `json:"sessions"`
	ByTerminalState  map[string]int `json:"by_terminal_state"`
	AvgAttempts      float64        `json:"avg_attempts"`
	AvgLatencyMs     float64        `json:"avg_latency_ms"`
	CompleteSessions int            `json:"complete_sessions"`
}

// SuccessRate is the share of sessions that ended complete.
func (s *SessionStats) SuccessRate() float64 {
	if s.Sessions == 0 {
		return 0
	}
	return float64(s.CompleteSessions) / float64(s.Sessions) * 100
}
