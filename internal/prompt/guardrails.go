package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

// Guardrails screens user input before any external call.
type Guardrails struct {
	MaxInputLength   int
	ForbiddenPhrases []string
}

// DefaultGuardrails returns the stock limits.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		MaxInputLength: 1000,
		ForbiddenPhrases: []string{
			"ignore previous instructions",
			"forget your rules",
			"system override",
			"delete your system prompt",
		},
	}
}

// Check rejects empty, oversized or injection-style input.
// Errors wrap deck.ErrInvalidRequest.
func (g Guardrails) Check(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%w: empty message", deck.ErrInvalidRequest)
	}
	if g.MaxInputLength > 0 && utf8.RuneCountInString(input) > g.MaxInputLength {
		return fmt.Errorf("%w: message too long, limit is %d characters", deck.ErrInvalidRequest, g.MaxInputLength)
	}
	lower := strings.ToLower(input)
	for _, phrase := range g.ForbiddenPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return fmt.Errorf("%w: request contains a forbidden phrase", deck.ErrInvalidRequest)
		}
	}
	return nil
}
