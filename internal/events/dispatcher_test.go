package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	name  string
	types map[string]bool
	err   error

	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) OnEvent(event Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return o.err
}

func (o *recordingObserver) GetName() string { return o.name }

func (o *recordingObserver) ShouldHandle(eventType string) bool {
	return o.types == nil || o.types[eventType]
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func TestNewTypedEvent(t *testing.T) {
	event := NewTypedEvent(context.Background(), TypeAttempt, AttemptEvent{SessionID: "s", Attempt: 2, TotalSize: 97})

	assert.Equal(t, TypeAttempt, event.Type)

	data, ok := GetTypedData[AttemptEvent](event)
	require.True(t, ok)
	assert.Equal(t, 2, data.Attempt)
	assert.Equal(t, 97, data.TotalSize)

	_, ok = GetTypedData[SessionEvent](event)
	assert.False(t, ok)

	_, ok = GetTypedData[SessionEvent](Event{Type: TypeSession})
	assert.False(t, ok)
}

func TestDispatch_FiltersAndContinuesOnError(t *testing.T) {
	d := NewEventDispatcher(nil)
	failing := &recordingObserver{name: "failing", err: errors.New("boom")}
	sessionsOnly := &recordingObserver{name: "sessions", types: map[string]bool{TypeSession: true}}
	d.Register(failing)
	d.Register(sessionsOnly)
	d.Register(NewLoggingObserver(nil, true))
	assert.Equal(t, 3, d.ObserverCount())

	d.Dispatch(NewTypedEvent(context.Background(), TypeAttempt, AttemptEvent{}))
	d.Dispatch(NewTypedEvent(context.Background(), TypeSession, SessionEvent{}))

	assert.Equal(t, 2, failing.count())
	assert.Equal(t, 1, sessionsOnly.count())

	d.Unregister(failing)
	assert.Equal(t, 2, d.ObserverCount())
	d.Dispatch(NewTypedEvent(context.Background(), TypeSession, SessionEvent{}))
	assert.Equal(t, 2, failing.count())
}

func TestDispatchAsync(t *testing.T) {
	d := NewEventDispatcher(nil)
	obs := &recordingObserver{name: "async"}
	d.Register(obs)

	d.DispatchAsync(NewTypedEvent(context.Background(), TypeConfigReloaded, ConfigReloadedEvent{Path: "deckgen.toml"}))

	assert.Eventually(t, func() bool { return obs.count() == 1 }, time.Second, 10*time.Millisecond)
}
