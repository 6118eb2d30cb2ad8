// Package deckimport turns raw generator text into deck records.
package deckimport

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

// maxQuantity bounds a single line's quantity.
const maxQuantity = deck.TargetSize

// categoryOrder is the order entries are emitted in. Unknown categories
// follow alphabetically.
var categoryOrder = []string{
	"Creatures",
	"Artifacts",
	"Enchantments",
	"Instants",
	"Sorceries",
	"Planeswalkers",
	"NonBasicLands",
	"Lands",
}

var (
	// "4 Lightning Bolt" or "4x Lightning Bolt"
	prefixQuantity = regexp.MustCompile(`^(\d+)x?\s+(.+)$`)
	// "Lightning Bolt x4"
	suffixQuantity = regexp.MustCompile(`^(.+?)\s+x(\d+)$`)
	fence          = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")
)

// ParseOptions adjusts parsing for one request.
type ParseOptions struct {
	// FallbackCommander is used when the answer names no commander.
	FallbackCommander string
}

// Response is the JSON object the generator is asked to produce.
type Response struct {
	Type           string                     `json:"Type"`
	Message        string                     `json:"Message"`
	Theme          string                     `json:"Theme"`
	RequestedPrice flexFloat                  `json:"RequestedPrice"`
	Deck           map[string]json.RawMessage `json:"Deck"`
}

// flexFloat accepts numbers and numeric strings such as "50.00" or "$50".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(s), "$"), 64)
	if err != nil {
		v = 0
	}
	*f = flexFloat(v)
	return nil
}

// Parse extracts a deck record from raw generator output. Every failure wraps
// deck.ErrMalformedOutput.
func Parse(raw string, opts ParseOptions) (*deck.Record, error) {
	doc, body, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deck.ErrMalformedOutput, err)
	}
	if err := checkShape(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", deck.ErrMalformedOutput, err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", deck.ErrMalformedOutput, err)
	}
	return resp.record(opts)
}

// decode finds the JSON object in raw. The whole text is tried first, then the
// first balanced object that decodes.
func decode(raw string) (interface{}, []byte, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, nil, errors.New("empty output")
	}
	if m := fence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(text), &doc); err == nil {
		if _, ok := doc.(map[string]interface{}); ok {
			return doc, []byte(text), nil
		}
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := balancedEnd(text, start)
		if end < 0 {
			break
		}
		candidate := text[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &doc); err == nil {
			if _, ok := doc.(map[string]interface{}); ok {
				return doc, []byte(candidate), nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, nil, errors.New("no JSON object found")
}

// balancedEnd returns the index of the brace closing the one at start,
// ignoring braces inside strings, or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func (r *Response) record(opts ParseOptions) (*deck.Record, error) {
	rec := &deck.Record{
		Theme:          strings.TrimSpace(r.Theme),
		Message:        strings.TrimSpace(r.Message),
		RequestedPrice: float64(r.RequestedPrice),
	}

	lists := make(map[string][]string, len(r.Deck))
	var commanders []string
	for cat, raw := range r.Deck {
		names, err := categoryNames(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: category %s: %v", deck.ErrMalformedOutput, cat, err)
		}
		if strings.EqualFold(cat, deck.CommanderCategory) {
			commanders = append(commanders, names...)
			continue
		}
		lists[cat] = names
	}

	anchor := ""
	for len(commanders) > 0 && anchor == "" {
		anchor, _ = splitQuantity(commanders[0])
		commanders = commanders[1:]
	}
	if anchor == "" {
		anchor = strings.TrimSpace(opts.FallbackCommander)
	}
	if anchor == "" {
		return nil, fmt.Errorf("%w: no commander", deck.ErrMalformedOutput)
	}
	rec.Anchor = deck.Anchor{Name: anchor}

	// Extra commander lines (partners) are validated like any other card.
	for _, line := range commanders {
		rec.Entries = appendLine(rec.Entries, line, deck.CommanderCategory)
	}
	for _, cat := range orderedCategories(lists) {
		for _, line := range lists[cat] {
			rec.Entries = appendLine(rec.Entries, line, cat)
		}
	}
	return rec, nil
}

func categoryNames(raw json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func orderedCategories(lists map[string][]string) []string {
	out := make([]string, 0, len(lists))
	known := make(map[string]bool, len(categoryOrder))
	for _, cat := range categoryOrder {
		known[cat] = true
		if _, ok := lists[cat]; ok {
			out = append(out, cat)
		}
	}
	var rest []string
	for cat := range lists {
		if !known[cat] {
			rest = append(rest, cat)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// appendLine adds one deck list line. Basic lands keep their quantity on a
// single entry; repeated non-basic cards become repeated entries so
// validation reports them as duplicates.
func appendLine(entries []deck.Entry, line, category string) []deck.Entry {
	name, qty := splitQuantity(line)
	if name == "" || qty <= 0 {
		return entries
	}
	if deck.IsBasicLand(name) {
		return append(entries, newEntry(name, qty, category))
	}
	for i := 0; i < qty; i++ {
		entries = append(entries, newEntry(name, 1, category))
	}
	return entries
}

func newEntry(name string, qty int, category string) deck.Entry {
	return deck.Entry{
		Name:         name,
		ProposedName: name,
		Quantity:     qty,
		Category:     category,
		Status:       deck.Unresolved(),
	}
}

// splitQuantity reads "4 Name", "4x Name" and "Name x4". Lines without a
// quantity count once.
func splitQuantity(line string) (string, int) {
	line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
	if line == "" {
		return "", 0
	}
	if m := prefixQuantity.FindStringSubmatch(line); m != nil {
		if qty, err := strconv.Atoi(m[1]); err == nil {
			return strings.TrimSpace(m[2]), min(qty, maxQuantity)
		}
	}
	if m := suffixQuantity.FindStringSubmatch(line); m != nil {
		if qty, err := strconv.Atoi(m[2]); err == nil {
			return strings.TrimSpace(m[1]), min(qty, maxQuantity)
		}
	}
	return line, 1
}
