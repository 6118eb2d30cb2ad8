// Package deck defines the Commander deck records that flow through the
// generation, validation and refinement pipeline.
package deck

import (
	"fmt"
	"strings"
)

// TargetSize is the number of cards in a complete Commander deck, commander included.
const TargetSize = 100

// Turn is one message of the user's conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request is a single user deck request. It lives for one refinement session.
type Request struct {
	Prompt    string  `json:"prompt"`
	Budget    float64 `json:"budget,omitempty"`    // USD ceiling, 0 for none
	Commander string  `json:"commander,omitempty"` // optional explicit anchor

	// History holds recent conversation turns. Callers pass the full
	// conversation; the prompt builder keeps only the configured window.
	History []Turn `json:"history,omitempty"`

	// CurrentDeck and Theme carry the conversation's previous result so the
	// user can ask for edits.
	CurrentDeck *Record `json:"current_deck,omitempty"`
	Theme       string  `json:"theme,omitempty"`
}

// Anchor is the commander. Every other card's identity must be a subset of it.
type Anchor struct {
	Name     string        `json:"name"`
	Identity ColorIdentity `json:"color_identity"`
	PriceUSD float64       `json:"price_usd,omitempty"`
	Resolved bool          `json:"resolved"`
}

// Entry is one line of a deck list.
type Entry struct {
	Name         string        `json:"name"`
	ProposedName string        `json:"proposed_name,omitempty"`
	Quantity     int           `json:"quantity"`
	Category     string        `json:"category,omitempty"`
	Status       Status        `json:"status"`
	Identity     ColorIdentity `json:"color_identity"`
	PriceUSD     float64       `json:"price_usd,omitempty"`
}

// Record is a deck proposed by the generator, possibly corrected by validation.
// Records are never shared between attempts.
type Record struct {
	Anchor  Anchor  `json:"commander"`
	Entries []Entry `json:"entries"`

	// Rejected holds entries removed by validation.
	Rejected []Entry `json:"rejected,omitempty"`

	Theme          string  `json:"theme,omitempty"`
	Message        string  `json:"message,omitempty"`
	RequestedPrice float64 `json:"requested_price,omitempty"`
}

// Size returns the total card count: the commander plus every entry's quantity.
func (r *Record) Size() int {
	if r == nil {
		return 0
	}
	n := 0
	if r.Anchor.Name != "" {
		n = 1
	}
	for _, e := range r.Entries {
		n += e.Quantity
	}
	return n
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Entries = append([]Entry(nil), r.Entries...)
	c.Rejected = append([]Entry(nil), r.Rejected...)
	return &c
}

// ValidCount returns the number of entries that survived validation.
func (r *Record) ValidCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, e := range r.Entries {
		if e.Status.Accepted() {
			n += e.Quantity
		}
	}
	return n
}

// Names returns the entry names in order.
func (r *Record) Names() []string {
	names := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		names = append(names, e.Name)
	}
	return names
}

var basicLands = map[string]bool{
	"plains":                true,
	"island":                true,
	"swamp":                 true,
	"mountain":              true,
	"forest":                true,
	"wastes":                true,
	"snow-covered plains":   true,
	"snow-covered island":   true,
	"snow-covered swamp":    true,
	"snow-covered mountain": true,
	"snow-covered forest":   true,
	"snow-covered wastes":   true,
}

// IsBasicLand reports whether name may appear more than once in a deck.
func IsBasicLand(name string) bool {
	return basicLands[NormalizeName(name)]
}

// NormalizeName folds a card name for comparisons.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), " ")
}

// InvalidEntry describes a rejected card in a report.
type InvalidEntry struct {
	Name   string        `json:"name"`
	Reason InvalidReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

func (e InvalidEntry) String() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s: %s)", e.Name, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s (%s)", e.Name, e.Reason)
}

// Report summarizes one validation pass.
type Report struct {
	Valid             int            `json:"valid"`
	Rescued           int            `json:"rescued"`
	Invalid           int            `json:"invalid"`
	InvalidEntries    []InvalidEntry `json:"invalid_entries,omitempty"`
	TotalSize         int            `json:"total_size"`
	IsComplete        bool           `json:"is_complete"`
	EstimatedPriceUSD float64        `json:"estimated_price_usd"`
}

// Shortfall returns how many cards are missing to reach TargetSize.
// Negative values mean the deck is over size.
func (r *Report) Shortfall() int {
	return TargetSize - r.TotalSize
}

// CommanderCategory is the deck list section holding the anchor.
const CommanderCategory = "Commander"

// Grouped renders the record as the category map the generator writes,
// commander first. Basic lands with a quantity above one are written as "Nx Name".
func (r *Record) Grouped() map[string][]string {
	out := make(map[string][]string)
	if r == nil {
		return out
	}
	if r.Anchor.Name != "" {
		out[CommanderCategory] = []string{r.Anchor.Name}
	}
	for _, e := range r.Entries {
		cat := e.Category
		if cat == "" {
			cat = "Other"
		}
		name := e.Name
		if e.Quantity > 1 {
			name = fmt.Sprintf("%dx %s", e.Quantity, e.Name)
		}
		out[cat] = append(out[cat], name)
	}
	return out
}
