package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the JSON Lines file written when no path is configured.
const DefaultFileName = "app_telemetry.jsonl"

// FileSink appends one JSON object per line.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

type fileLine struct {
	Kind       string          `json:"kind"`
	Pathway    string          `json:"pathway,omitempty"`
	LatencySec float64         `json:"latency_sec"`
	Attempt    *AttemptSummary `json:"attempt,omitempty"`
	Session    *SessionSummary `json:"session,omitempty"`
}

// NewFileSink opens path for appending, creating parent directories.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		path = DefaultFileName
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file: %w", err)
	}
	return &FileSink{file: f, enc: json.NewEncoder(f)}, nil
}

// RecordAttempt appends an attempt line.
func (s *FileSink) RecordAttempt(_ context.Context, a AttemptSummary) error {
	pathway := ""
	if len(a.Pathways) > 0 {
		pathway = a.Pathways[0]
	}
	return s.write(fileLine{Kind: "attempt", Pathway: pathway, LatencySec: a.Latency.Seconds(), Attempt: &a})
}

// RecordSession appends a session line.
func (s *FileSink) RecordSession(_ context.Context, sess SessionSummary) error {
	return s.write(fileLine{Kind: "session", LatencySec: sess.Latency.Seconds(), Session: &sess})
}

func (s *FileSink) write(line fileLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("telemetry file closed")
	}
	if err := s.enc.Encode(line); err != nil {
		return fmt.Errorf("failed to write telemetry: %w", err)
	}
	return nil
}

// Close closes the file. Later writes fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
