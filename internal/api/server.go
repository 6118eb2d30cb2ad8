// Package api serves the deck generator over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/api/handlers"
	"github.com/ramonehamilton/commander-deckgen/internal/api/websocket"
	"github.com/ramonehamilton/commander-deckgen/internal/metrics"
)

// Server represents the REST API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	addr       string
	logger     *zap.Logger

	// WebSocket hub for attempt progress
	wsHub *websocket.Hub

	deckHandler      *handlers.DeckHandler
	telemetryHandler *handlers.TelemetryHandler
	collectors       *metrics.Collectors
	allowedOrigins   []string
}

// Config holds configuration for the API server.
type Config struct {
	Addr             string
	AllowedOrigins   []string      // Empty allows localhost origins only for CORS and any origin for /ws
	RequestTimeout   time.Duration // Whole-session deadline, 0 for none
	MaxConversations int
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:             "127.0.0.1:8080",
		RequestTimeout:   5 * time.Minute,
		MaxConversations: handlers.DefaultMaxConversations,
	}
}

// Dependencies are the collaborators the routes call into. Store, Stats and
// Collectors may be nil.
type Dependencies struct {
	Generator  handlers.DeckGenerator
	Store      handlers.TelemetryStore
	Stats      *metrics.RefinementMetrics
	Collectors *metrics.Collectors
}

// NewServer creates a new API server.
func NewServer(cfg *Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Generator == nil {
		return nil, errors.New("api: a deck generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conversations, err := handlers.NewConversationStore(cfg.MaxConversations)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:           chi.NewRouter(),
		addr:             cfg.Addr,
		logger:           logger.Named("server"),
		wsHub:            websocket.NewHub(logger, cfg.AllowedOrigins...),
		deckHandler:      handlers.NewDeckHandler(deps.Generator, conversations, cfg.RequestTimeout, logger),
		telemetryHandler: handlers.NewTelemetryHandler(deps.Store, deps.Stats),
		collectors:       deps.Collectors,
		allowedOrigins:   cfg.AllowedOrigins,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	// Request ID for tracing
	s.router.Use(middleware.RequestID)

	// Real IP detection
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(middleware.Logger)

	// Panic recovery
	s.router.Use(middleware.Recoverer)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*", "https://localhost:*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Content-Type enforcement for POST/PUT/PATCH only (not GET/DELETE/OPTIONS)
	s.router.Use(s.jsonContentTypeMiddleware)
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" || (contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;")) {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Sessions may take several generator calls.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.addr))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address, resolved once Start has run.
func (s *Server) Addr() string {
	return s.addr
}

// WebSocketHub returns the WebSocket hub for external integration.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

// NewWebSocketObserver creates an observer that forwards dispatcher events
// to WebSocket clients.
func (s *Server) NewWebSocketObserver() *websocket.WebSocketObserver {
	return websocket.NewWebSocketObserver(s.wsHub)
}
