package events

// Event types.
const (
	TypeAttempt        = "deck:attempt"
	TypeSession        = "deck:session"
	TypeConfigReloaded = "config:reloaded"
)

// AttemptEvent is the payload for deck:attempt events.
// Sent after every refinement attempt.
type AttemptEvent struct {
	SessionID string `json:"sessionId"`
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"`
	Valid     int    `json:"valid"`
	Rescued   int    `json:"rescued"`
	Invalid   int    `json:"invalid"`
	TotalSize int    `json:"totalSize"`
	Complete  bool   `json:"complete"`
	LatencyMs int64  `json:"latencyMs"`
}

// SessionEvent is the payload for deck:session events.
// Sent once when a session reaches a terminal state.
type SessionEvent struct {
	SessionID     string `json:"sessionId"`
	TerminalState string `json:"terminalState"`
	AbortReason   string `json:"abortReason,omitempty"`
	Commander     string `json:"commander,omitempty"`
	Attempts      int    `json:"attempts"`
	FinalSize     int    `json:"finalSize"`
	Complete      bool   `json:"complete"`
	LatencyMs     int64  `json:"latencyMs"`
}

// ConfigReloadedEvent is the payload for config:reloaded events.
type ConfigReloadedEvent struct {
	Path string `json:"path"`
}
