// Package telemetry records per-attempt and per-session summaries of deck
// generation to any number of sinks.
package telemetry

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

// Attempt outcomes.
const (
	OutcomeComplete    = models.OutcomeComplete
	OutcomeIncomplete  = models.OutcomeIncomplete
	OutcomeMalformed   = models.OutcomeMalformed
	OutcomeAborted     = models.OutcomeAborted
	OutcomeInfraFailed = models.OutcomeInfraFailed
)

// Pathways an attempt can touch.
const (
	PathwayGeneration = "generation"
	PathwaySynergy    = "synergy"
	PathwayValidation = "validation"
)

// AttemptSummary describes one generation-validation pass.
type AttemptSummary struct {
	SessionID         string         `json:"session_id"`
	Attempt           int            `json:"attempt"`
	Outcome           string         `json:"outcome"`
	Model             string         `json:"model"`
	Pathways          []string       `json:"pathways"`
	PromptFingerprint string         `json:"prompt_fingerprint,omitempty"`
	Latency           time.Duration  `json:"latency"`
	GenerationLatency time.Duration  `json:"generation_latency"`
	ValidationLatency time.Duration  `json:"validation_latency"`
	Valid             int            `json:"valid"`
	Rescued           int            `json:"rescued"`
	Invalid           int            `json:"invalid"`
	InvalidReasons    map[string]int `json:"invalid_reasons,omitempty"`
	TotalSize         int            `json:"total_size"`
	Complete          bool           `json:"complete"`
	InfraRetries      int            `json:"infra_retries"`
	At                time.Time      `json:"timestamp"`
}

// SessionSummary describes a finished session.
type SessionSummary struct {
	SessionID         string        `json:"session_id"`
	TerminalState     string        `json:"terminal_state"`
	AbortReason       string        `json:"abort_reason,omitempty"`
	Commander         string        `json:"commander,omitempty"`
	Model             string        `json:"model"`
	PromptFingerprint string        `json:"prompt_fingerprint,omitempty"`
	Attempts          int           `json:"attempts"`
	FinalSize         int           `json:"final_size"`
	Complete          bool          `json:"complete"`
	EstimatedPriceUSD float64       `json:"estimated_price_usd"`
	Latency           time.Duration `json:"latency"`
	At                time.Time     `json:"timestamp"`
}

// Sink receives telemetry. Implementations must be safe for concurrent use.
type Sink interface {
	RecordAttempt(ctx context.Context, s AttemptSummary) error
	RecordSession(ctx context.Context, s SessionSummary) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAttempt(context.Context, AttemptSummary) error { return nil }
func (Nop) RecordSession(context.Context, SessionSummary) error { return nil }

// Multi fans out to every sink and joins their errors.
type Multi []Sink

// RecordAttempt forwards s to every sink.
func (m Multi) RecordAttempt(ctx context.Context, s AttemptSummary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.RecordAttempt(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSession forwards s to every sink.
func (m Multi) RecordSession(ctx context.Context, s SessionSummary) error {
	var errs []error
	for _, sink := range m {
		if err := sink.RecordSession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fingerprint returns a short stable digest of a prompt so sessions can be
// correlated without storing user text.
func Fingerprint(prompt string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	if normalized == "" {
		return ""
	}
	h, err := blake2b.New(16, nil)
	if err != nil {
		return ""
	}
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
