// Package prompt assembles the generator input for a deck request.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/llm"
)

// DefaultHistoryWindow is how many past turns reach the generator.
const DefaultHistoryWindow = 4

// HintProvider suggests cards for a commander.
type HintProvider interface {
	Hints(ctx context.Context, commander string) ([]string, error)
}

// Builder turns deck requests into generator requests.
type Builder struct {
	hints         HintProvider
	historyWindow int
	temperature   float64
	logger        *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithHistoryWindow overrides DefaultHistoryWindow.
func WithHistoryWindow(n int) Option {
	return func(b *Builder) {
		if n >= 0 {
			b.historyWindow = n
		}
	}
}

// WithTemperature sets the sampling temperature on built requests.
func WithTemperature(t float64) Option {
	return func(b *Builder) { b.temperature = t }
}

// NewBuilder creates a builder. hints may be nil.
func NewBuilder(hints HintProvider, logger *zap.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		hints:         hints,
		historyWindow: DefaultHistoryWindow,
		logger:        logger.Named("prompt"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Built is a generator request plus facts about how it was assembled.
type Built struct {
	Request   *llm.Request
	HintsUsed int
}

// deckState is the JSON shape of the current deck note.
type deckState struct {
	Deck           map[string][]string `json:"Deck"`
	RequestedPrice float64             `json:"RequestedPrice"`
	Theme          string              `json:"Theme,omitempty"`
	CardCount      int                 `json:"CardCount"`
}

// Build assembles the first-attempt request. Hint lookup failures are logged
// and the request is built without hints.
func (b *Builder) Build(ctx context.Context, req *deck.Request) (*Built, error) {
	out := &llm.Request{
		System:      SystemPolicy,
		Temperature: b.temperature,
	}

	if req.CurrentDeck != nil && req.CurrentDeck.Size() > 0 {
		theme := req.Theme
		if theme == "" {
			theme = req.CurrentDeck.Theme
		}
		state, err := json.Marshal(deckState{
			Deck:           req.CurrentDeck.Grouped(),
			RequestedPrice: req.CurrentDeck.RequestedPrice,
			Theme:          theme,
			CardCount:      req.CurrentDeck.Size(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode deck state: %w", err)
		}
		out.Context = append(out.Context, "CURRENT DECK JSON STATE: "+string(state))
	}

	hintsUsed := 0
	if commander := anchorName(req); commander != "" && b.hints != nil {
		hints, err := b.hints.Hints(ctx, commander)
		switch {
		case err != nil:
			b.logger.Warn("synergy hints unavailable", zap.String("commander", commander), zap.Error(err))
		case len(hints) > 0:
			hintsUsed = len(hints)
			out.Context = append(out.Context, fmt.Sprintf(
				"EDHREC DATA for %s:\nTop synergy cards: %s.\nPrioritize these cards.",
				commander, strings.Join(hints, ", ")))
		}
	}

	if req.Budget > 0 {
		out.Context = append(out.Context, fmt.Sprintf(
			"BUDGET: the user wants the whole deck to cost at most $%.2f. Prefer inexpensive cards. Set RequestedPrice to %.2f.",
			req.Budget, req.Budget))
	}

	out.Turns = b.window(req.History)

	prompt := strings.TrimSpace(req.Prompt)
	if req.Commander != "" {
		prompt = fmt.Sprintf("Commander: %s. %s", req.Commander, prompt)
	}
	out.Prompt = prompt + requestSuffix

	return &Built{Request: out, HintsUsed: hintsUsed}, nil
}

// window keeps the most recent turns.
func (b *Builder) window(history []deck.Turn) []llm.Message {
	if b.historyWindow == 0 || len(history) == 0 {
		return nil
	}
	if len(history) > b.historyWindow {
		history = history[len(history)-b.historyWindow:]
	}
	turns := make([]llm.Message, 0, len(history))
	for _, t := range history {
		role := llm.RoleUser
		if t.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Message{Role: role, Content: t.Content})
	}
	return turns
}

func anchorName(req *deck.Request) string {
	if req.Commander != "" {
		return req.Commander
	}
	if req.CurrentDeck != nil {
		return req.CurrentDeck.Anchor.Name
	}
	return ""
}
