package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/commander-deckgen/internal/api/response"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	s.router.Get("/metrics", s.metrics)

	// WebSocket endpoint (no JSON content-type requirement)
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/decks", func(r chi.Router) {
			r.Post("/generate", s.deckHandler.GenerateDeck)
		})

		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/", s.deckHandler.GetConversation)
			r.Post("/reset", s.deckHandler.ResetConversation)
		})

		r.Get("/telemetry/attempts", s.telemetryHandler.GetRecentAttempts)
		r.Get("/stats", s.telemetryHandler.GetStats)
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "commander-deckgen",
		"ws_clients": s.wsHub.ClientCount(),
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.collectors == nil {
		response.ServiceUnavailable(w, errors.New("metrics are disabled"))
		return
	}
	s.collectors.Handler().ServeHTTP(w, r)
}
