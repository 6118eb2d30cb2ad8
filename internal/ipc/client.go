// Package ipc follows a running server's event stream over WebSocket.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/events"
)

// DefaultReconnectDelay is the wait between reconnection attempts.
const DefaultReconnectDelay = 5 * time.Second

// Event represents an event received from the server.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventHandler is a function that handles events.
type EventHandler func(data json.RawMessage)

// Client represents a WebSocket client for a deckgen server.
type Client struct {
	url            string
	logger         *zap.Logger
	reconnectDelay time.Duration

	handlers   map[string][]EventHandler
	handlersMu sync.RWMutex

	conn        *websocket.Conn
	connMu      sync.Mutex
	connected   bool
	connectedMu sync.RWMutex
}

// Option configures a Client.
type Option func(*Client)

// WithReconnectDelay overrides DefaultReconnectDelay. Zero or negative
// disables reconnection.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// NewClient creates a client for the stream at url (ws://host/ws).
func NewClient(url string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:            url,
		logger:         logger.Named("ipc"),
		reconnectDelay: DefaultReconnectDelay,
		handlers:       make(map[string][]EventHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes a connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setConnected(true)

	c.logger.Info("connected", zap.String("url", c.url))
	return nil
}

// Run reads events until ctx is done, reconnecting after failures when a
// reconnect delay is set. Handlers run on the reading goroutine, in order.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.closeConn() })
	defer stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if err := c.Connect(ctx); err != nil {
				if c.reconnectDelay <= 0 {
					return err
				}
				c.logger.Warn("reconnection failed", zap.Error(err))
				if !c.wait(ctx) {
					return ctx.Err()
				}
			}
			continue
		}

		if err := c.readFrame(conn); err != nil {
			c.closeConn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.reconnectDelay <= 0 {
				return fmt.Errorf("read event: %w", err)
			}
			c.logger.Warn("connection lost", zap.Error(err))
			if !c.wait(ctx) {
				return ctx.Err()
			}
			continue
		}
	}
}

// readFrame dispatches every event in one text frame. The hub joins queued
// events into a single frame separated by newlines.
func (c *Client) readFrame(conn *websocket.Conn) error {
	_, r, err := conn.NextReader()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(r)
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode event: %w", err)
		}
		c.dispatchEvent(event)
	}
}

func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the connection. Run returns once its context is cancelled.
func (c *Client) Close() error {
	return c.closeConn()
}

func (c *Client) closeConn() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.setConnected(false)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// On registers an event handler for a specific event type.
func (c *Client) On(eventType string, handler EventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[eventType] = append(c.handlers[eventType], handler)
}

// OnAttempt registers a handler for deck:attempt events.
func (c *Client) OnAttempt(fn func(events.AttemptEvent)) {
	c.On(events.TypeAttempt, typed(c, fn))
}

// OnSession registers a handler for deck:session events.
func (c *Client) OnSession(fn func(events.SessionEvent)) {
	c.On(events.TypeSession, typed(c, fn))
}

func typed[T any](c *Client, fn func(T)) EventHandler {
	return func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			c.logger.Warn("malformed event payload", zap.Error(err))
			return
		}
		fn(v)
	}
}

// IsConnected returns whether the client is currently connected.
func (c *Client) IsConnected() bool {
	c.connectedMu.RLock()
	defer c.connectedMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.connectedMu.Lock()
	defer c.connectedMu.Unlock()
	c.connected = connected
}

// dispatchEvent dispatches an event to registered handlers.
func (c *Client) dispatchEvent(event Event) {
	c.handlersMu.RLock()
	handlers := c.handlers[event.Type]
	c.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(event.Data)
	}
}

// URL returns the WebSocket URL.
func (c *Client) URL() string {
	return c.url
}
