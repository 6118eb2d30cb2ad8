package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/events"
	"github.com/ramonehamilton/commander-deckgen/internal/metrics"
	"github.com/ramonehamilton/commander-deckgen/internal/refinement"
)

type stubGenerator struct{}

func (stubGenerator) GenerateDeck(_ context.Context, _ *deck.Request) (*refinement.Result, error) {
	return &refinement.Result{
		SessionID:     "s",
		TerminalState: refinement.ExhaustedRetries,
		Report:        &deck.Report{},
	}, nil
}

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	if deps.Generator == nil {
		deps.Generator = stubGenerator{}
	}
	server, err := NewServer(nil, deps, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t, Dependencies{})

	if server.addr != DefaultConfig().Addr {
		t.Errorf("Expected addr %s, got %s", DefaultConfig().Addr, server.addr)
	}
	if server.wsHub == nil {
		t.Error("Expected wsHub to be initialized")
	}
	if server.NewWebSocketObserver() == nil {
		t.Error("Expected NewWebSocketObserver to return non-nil observer")
	}
}

func TestNewServer_RequiresGenerator(t *testing.T) {
	if _, err := NewServer(nil, Dependencies{}, nil); err == nil {
		t.Error("Expected an error without a generator")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestTimeout != 5*time.Minute {
		t.Errorf("Expected 5m request timeout, got %s", cfg.RequestTimeout)
	}
	if cfg.MaxConversations <= 0 {
		t.Errorf("Expected a positive conversation bound, got %d", cfg.MaxConversations)
	}
}

func TestServer_Routes(t *testing.T) {
	server := newTestServer(t, Dependencies{Collectors: metrics.NewCollectors()})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics: unexpected response %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/decks/generate", "text/plain", strings.NewReader("deck please"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("generate with text body: expected 415, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/decks/generate", "application/json", strings.NewReader(`{"message":"Meren deck"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("generate: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/v1/conversations/abc/reset", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("reset: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/telemetry/attempts")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("attempts without store: expected 503, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stats: expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	server := newTestServer(t, Dependencies{})
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestServer_DispatcherReachesWebSocket(t *testing.T) {
	server := newTestServer(t, Dependencies{})
	go server.wsHub.Run()
	defer server.wsHub.Stop()

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for server.wsHub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	dispatcher := events.NewEventDispatcher(nil)
	dispatcher.Register(server.NewWebSocketObserver())
	dispatcher.Dispatch(events.NewTypedEvent(context.Background(), events.TypeAttempt, events.AttemptEvent{
		SessionID: "s1",
		Attempt:   1,
		Outcome:   "incomplete",
		TotalSize: 92,
	}))

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message from WebSocket: %v", err)
	}

	var received struct {
		Type string              `json:"type"`
		Data events.AttemptEvent `json:"data"`
	}
	if err := json.Unmarshal(message, &received); err != nil {
		t.Fatalf("Failed to unmarshal received message: %v", err)
	}
	if received.Type != events.TypeAttempt {
		t.Errorf("Expected event type %q, got %q", events.TypeAttempt, received.Type)
	}
	if received.Data.TotalSize != 92 || received.Data.SessionID != "s1" {
		t.Errorf("unexpected payload %+v", received.Data)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	server, err := NewServer(&Config{Addr: "127.0.0.1:0"}, Dependencies{Generator: stubGenerator{}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strings.HasSuffix(server.Addr(), ":0") {
		t.Errorf("expected a resolved address, got %s", server.Addr())
	}

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_Shutdown_NotStarted(t *testing.T) {
	server := newTestServer(t, Dependencies{})

	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected no error on shutdown of non-started server, got %v", err)
	}
}
