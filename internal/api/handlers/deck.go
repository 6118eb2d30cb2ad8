// Package handlers implements the REST endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/api/response"
	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/refinement"
)

// DeckGenerator runs one refinement session.
type DeckGenerator interface {
	GenerateDeck(ctx context.Context, req *deck.Request) (*refinement.Result, error)
}

// DeckHandler handles deck generation requests.
type DeckHandler struct {
	generator     DeckGenerator
	conversations *ConversationStore
	timeout       time.Duration
	logger        *zap.Logger
}

// NewDeckHandler creates a new DeckHandler. A zero timeout leaves the
// session bound only by the request context.
func NewDeckHandler(generator DeckGenerator, conversations *ConversationStore, timeout time.Duration, logger *zap.Logger) *DeckHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeckHandler{
		generator:     generator,
		conversations: conversations,
		timeout:       timeout,
		logger:        logger.Named("api"),
	}
}

// GenerateDeckRequest represents a request to generate or edit a deck.
type GenerateDeckRequest struct {
	ConversationID string  `json:"conversation_id,omitempty"`
	Message        string  `json:"message"`
	Budget         float64 `json:"budget,omitempty"`
	Commander      string  `json:"commander,omitempty"`
}

// AttemptView summarizes one attempt for clients.
type AttemptView struct {
	Number       int    `json:"number"`
	Outcome      string `json:"outcome"`
	TotalSize    int    `json:"total_size"`
	Valid        int    `json:"valid"`
	Rescued      int    `json:"rescued"`
	Invalid      int    `json:"invalid"`
	InfraRetries int    `json:"infra_retries,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`
	Error        string `json:"error,omitempty"`
}

// GenerateDeckResponse is the body of a generation response.
type GenerateDeckResponse struct {
	ConversationID string                   `json:"conversation_id"`
	SessionID      string                   `json:"session_id"`
	TerminalState  refinement.TerminalState `json:"terminal_state"`
	AbortReason    refinement.AbortReason   `json:"abort_reason,omitempty"`
	Complete       bool                     `json:"complete"`
	Degraded       bool                     `json:"degraded,omitempty"`
	Commander      string                   `json:"commander,omitempty"`
	Deck           map[string][]string      `json:"deck,omitempty"`
	Theme          string                   `json:"theme,omitempty"`
	Message        string                   `json:"message,omitempty"`
	Record         *deck.Record             `json:"record,omitempty"`
	Report         *deck.Report             `json:"report"`
	Attempts       []AttemptView            `json:"attempts"`
	Model          string                   `json:"model"`
	LatencyMs      int64                    `json:"latency_ms"`
}

// GenerateDeck runs a refinement session for the conversation.
func (h *DeckHandler) GenerateDeck(w http.ResponseWriter, r *http.Request) {
	var req GenerateDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.BadRequest(w, errors.New("message is required"))
		return
	}
	if req.Budget < 0 {
		response.BadRequest(w, errors.New("budget cannot be negative"))
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	conv := h.conversations.Get(req.ConversationID)
	dreq := &deck.Request{
		Prompt:      req.Message,
		Budget:      req.Budget,
		Commander:   strings.TrimSpace(req.Commander),
		History:     conv.Turns,
		CurrentDeck: conv.Deck,
		Theme:       conv.Theme,
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.generator.GenerateDeck(ctx, dreq)
	switch {
	case errors.Is(err, deck.ErrInvalidRequest):
		response.BadRequest(w, err)
		return
	case err != nil && res != nil:
		h.logger.Warn("generation aborted",
			zap.String("conversation", req.ConversationID),
			zap.String("session", res.SessionID),
			zap.String("reason", string(res.AbortReason)),
			zap.Error(err))
		response.Failure(w, http.StatusServiceUnavailable, err, newGenerateDeckResponse(req.ConversationID, res))
		return
	case err != nil:
		response.InternalError(w, err)
		return
	}

	h.conversations.Record(req.ConversationID,
		deck.Turn{Role: "user", Content: req.Message},
		deck.Turn{Role: "assistant", Content: assistantTurn(res)},
		res.Record, recordTheme(res.Record))

	response.Success(w, newGenerateDeckResponse(req.ConversationID, res))
}

// ResetConversation forgets a conversation's history and deck.
func (h *DeckHandler) ResetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if id == "" {
		response.BadRequest(w, errors.New("conversation ID is required"))
		return
	}
	existed := h.conversations.Reset(id)
	response.Success(w, map[string]interface{}{
		"conversation_id": id,
		"reset":           existed,
	})
}

// GetConversation returns the stored history and deck.
func (h *DeckHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv := h.conversations.Get(id)
	if conv.UpdatedAt.IsZero() {
		response.NotFound(w, errors.New("conversation not found"))
		return
	}
	response.Success(w, conv)
}

func newGenerateDeckResponse(conversationID string, res *refinement.Result) *GenerateDeckResponse {
	out := &GenerateDeckResponse{
		ConversationID: conversationID,
		SessionID:      res.SessionID,
		TerminalState:  res.TerminalState,
		AbortReason:    res.AbortReason,
		Complete:       res.Complete(),
		Degraded:       res.Degraded,
		Record:         res.Record,
		Report:         res.Report,
		Attempts:       make([]AttemptView, 0, len(res.Attempts)),
		Model:          res.Model,
		LatencyMs:      res.Latency.Milliseconds(),
	}
	if res.Record != nil {
		out.Commander = res.Record.Anchor.Name
		out.Deck = res.Record.Grouped()
		out.Theme = res.Record.Theme
		out.Message = res.Record.Message
	}
	for _, a := range res.Attempts {
		v := AttemptView{
			Number:       a.Number,
			Outcome:      a.Outcome,
			InfraRetries: a.InfraRetries,
			LatencyMs:    a.Latency.Milliseconds(),
			Error:        a.Error,
		}
		if a.Report != nil {
			v.TotalSize = a.Report.TotalSize
			v.Valid, v.Rescued, v.Invalid = a.Report.Valid, a.Report.Rescued, a.Report.Invalid
		}
		out.Attempts = append(out.Attempts, v)
	}
	return out
}

// assistantTurn is what the conversation remembers of a result.
func assistantTurn(res *refinement.Result) string {
	if res.Record == nil {
		return "I could not build a deck from that request."
	}
	msg := res.Record.Message
	if msg == "" {
		msg = fmt.Sprintf("Built a %d-card deck led by %s.", res.Record.Size(), res.Record.Anchor.Name)
	}
	if !res.Complete() {
		msg += fmt.Sprintf(" (The deck has %d of %d cards.)", res.Record.Size(), deck.TargetSize)
	}
	return msg
}

func recordTheme(rec *deck.Record) string {
	if rec == nil {
		return ""
	}
	return rec.Theme
}
