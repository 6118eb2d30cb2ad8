package websocket

import (
	"github.com/ramonehamilton/commander-deckgen/internal/events"
)

// WebSocketObserver forwards dispatched events to every connected client.
type WebSocketObserver struct {
	name string
	hub  *Hub
}

// NewWebSocketObserver creates a new observer that forwards events to WebSocket clients.
func NewWebSocketObserver(hub *Hub) *WebSocketObserver {
	return &WebSocketObserver{
		name: "WebSocketObserver",
		hub:  hub,
	}
}

// OnEvent forwards the event to all connected WebSocket clients.
func (o *WebSocketObserver) OnEvent(event events.Event) error {
	if o.hub == nil {
		return nil
	}
	o.hub.BroadcastEvent(Event{Type: event.Type, Data: event.Data})
	return nil
}

// GetName returns the observer's name.
func (o *WebSocketObserver) GetName() string {
	return o.name
}

// ShouldHandle skips nothing while a client is connected.
func (o *WebSocketObserver) ShouldHandle(string) bool {
	return o.hub != nil && o.hub.ClientCount() > 0
}

var _ events.Observer = (*WebSocketObserver)(nil)
