package refinement

import (
	"time"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

// TerminalState is how a session ended.
type TerminalState string

const (
	Succeeded        TerminalState = "Succeeded"
	ExhaustedRetries TerminalState = "ExhaustedRetries"
	Aborted          TerminalState = "Aborted"
)

// AbortReason explains an Aborted session.
type AbortReason string

const (
	ReasonNone                        AbortReason = ""
	ReasonGenerationServiceError      AbortReason = "GenerationServiceError"
	ReasonReferenceServiceUnavailable AbortReason = "ReferenceServiceUnavailable"
	ReasonCancelled                   AbortReason = "Cancelled"
)

// Attempt describes one generation-validation pass.
type Attempt struct {
	Number       int          `json:"number"`
	Outcome      string       `json:"outcome"`
	Report       *deck.Report `json:"report,omitempty"`
	Error        string       `json:"error,omitempty"`
	InfraRetries int          `json:"infra_retries,omitempty"`

	GenerationLatency time.Duration `json:"generation_latency"`
	ValidationLatency time.Duration `json:"validation_latency"`
	Latency           time.Duration `json:"latency"`

	// RawOutput is the generator text the attempt parsed.
	RawOutput string `json:"-"`
}

// Result is the outcome of GenerateDeck.
type Result struct {
	SessionID     string        `json:"session_id"`
	TerminalState TerminalState `json:"terminal_state"`
	AbortReason   AbortReason   `json:"abort_reason,omitempty"`

	// Record is the final record: the complete deck on success, the
	// best-effort record otherwise. Nil when no attempt produced one.
	Record *deck.Record `json:"record,omitempty"`
	Report *deck.Report `json:"report"`

	// Degraded is set on Aborted results that carry a record from an
	// earlier attempt.
	Degraded bool `json:"degraded,omitempty"`

	Attempts []Attempt     `json:"attempts"`
	Model    string        `json:"model"`
	Latency  time.Duration `json:"latency"`
}

// Complete reports whether the result holds a finished 100-card deck.
func (r *Result) Complete() bool {
	return r != nil && r.TerminalState == Succeeded && r.Report != nil && r.Report.IsComplete
}
