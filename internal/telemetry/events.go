package telemetry

import (
	"context"

	"github.com/ramonehamilton/commander-deckgen/internal/events"
)

// EventSink publishes summaries on the event dispatcher.
type EventSink struct {
	dispatcher *events.EventDispatcher
}

// NewEventSink creates a sink publishing to d.
func NewEventSink(d *events.EventDispatcher) *EventSink {
	return &EventSink{dispatcher: d}
}

// RecordAttempt dispatches a deck:attempt event.
func (s *EventSink) RecordAttempt(ctx context.Context, a AttemptSummary) error {
	s.dispatcher.Dispatch(events.NewTypedEvent(ctx, events.TypeAttempt, events.AttemptEvent{
		SessionID: a.SessionID,
		Attempt:   a.Attempt,
		Outcome:   a.Outcome,
		Valid:     a.Valid,
		Rescued:   a.Rescued,
		Invalid:   a.Invalid,
		TotalSize: a.TotalSize,
		Complete:  a.Complete,
		LatencyMs: a.Latency.Milliseconds(),
	}))
	return nil
}

// RecordSession dispatches a deck:session event.
func (s *EventSink) RecordSession(ctx context.Context, sess SessionSummary) error {
	s.dispatcher.Dispatch(events.NewTypedEvent(ctx, events.TypeSession, events.SessionEvent{
		SessionID:     sess.SessionID,
		TerminalState: sess.TerminalState,
		AbortReason:   sess.AbortReason,
		Commander:     sess.Commander,
		Attempts:      sess.Attempts,
		FinalSize:     sess.FinalSize,
		Complete:      sess.Complete,
		LatencyMs:     sess.Latency.Milliseconds(),
	}))
	return nil
}
