package deckimport

import (
	"errors"
	"strings"
	"testing"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

const merenDeck = `{
  "Type": "Deck",
  "Message": "Here is a graveyard deck.",
  "RequestedPrice": 0,
  "Theme": "Graveyard",
  "Deck": {
    "Commander": ["Meren of Clan Nel Toth"],
    "Lands": ["20 Swamp", "Forest x10", "Command Tower"],
    "Creatures": ["Spore Frog", "Sakura-Tribe Elder"],
    "Artifacts": ["Sol Ring"],
    "Instants": [],
    "Planeswalkers": null,
    "Tribal": ["Bitterblossom"]
  }
}`

func TestParse_CleanJSON(t *testing.T) {
	rec, err := Parse(merenDeck, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if rec.Anchor.Name != "Meren of Clan Nel Toth" {
		t.Errorf("anchor = %q", rec.Anchor.Name)
	}
	if rec.Theme != "Graveyard" || rec.Message != "Here is a graveyard deck." {
		t.Errorf("metadata not carried: %+v", rec)
	}

	wantOrder := []string{"Spore Frog", "Sakura-Tribe Elder", "Sol Ring", "Swamp", "Forest", "Command Tower", "Bitterblossom"}
	got := rec.Names()
	if strings.Join(got, "|") != strings.Join(wantOrder, "|") {
		t.Errorf("entry order = %v, want %v", got, wantOrder)
	}

	// 1 commander + 2 creatures + 1 artifact + 20 + 10 + 1 lands + 1 other
	if rec.Size() != 36 {
		t.Errorf("Size() = %d, want 36", rec.Size())
	}
	for _, e := range rec.Entries {
		if e.Status.Kind != deck.StatusUnresolved {
			t.Errorf("%s status = %v, want unresolved", e.Name, e.Status)
		}
		if e.ProposedName != e.Name {
			t.Errorf("%s proposed name = %q", e.Name, e.ProposedName)
		}
	}
}

func TestParse_ProseWrapped(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "prose before and after",
			raw:  "Sure! Here is your deck:\n" + merenDeck + "\nEnjoy, and let me know {if} you want changes.",
		},
		{
			name: "markdown fence",
			raw:  "```json\n" + merenDeck + "\n```",
		},
		{
			name: "braces inside strings",
			raw:  `Note {draft}: {"Message":"use {X} spells \"wisely\" }","Deck":{"Commander":["Meren of Clan Nel Toth"],"Creatures":["Spore Frog"]}} trailing`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse(tt.raw, ParseOptions{})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if rec.Anchor.Name != "Meren of Clan Nel Toth" {
				t.Errorf("anchor = %q", rec.Anchor.Name)
			}
			if len(rec.Entries) == 0 {
				t.Error("expected entries")
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"no json", "I cannot build that deck right now."},
		{"unbalanced", `{"Deck": {"Commander": ["Meren"]`},
		{"missing deck", `{"Type":"Deck","Message":"hi"}`},
		{"deck not an object", `{"Deck":["Sol Ring"]}`},
		{"numbers in category", `{"Deck":{"Commander":["Meren"],"Creatures":[1,2]}}`},
		{"no commander", `{"Deck":{"Creatures":["Spore Frog"]}}`},
		{"empty commander", `{"Deck":{"Commander":[""],"Creatures":["Spore Frog"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, ParseOptions{})
			if !errors.Is(err, deck.ErrMalformedOutput) {
				t.Errorf("Parse() error = %v, want ErrMalformedOutput", err)
			}
		})
	}
}

func TestParse_FallbackCommander(t *testing.T) {
	rec, err := Parse(`{"Deck":{"Creatures":["Spore Frog"]}}`, ParseOptions{FallbackCommander: "Meren of Clan Nel Toth"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Anchor.Name != "Meren of Clan Nel Toth" {
		t.Errorf("anchor = %q", rec.Anchor.Name)
	}
}

func TestParse_QuantitiesAndRepeats(t *testing.T) {
	raw := `{"Deck":{
		"Commander": "1 Meren of Clan Nel Toth",
		"Creatures": ["2x Spore Frog"],
		"Lands": ["12x Snow-Covered Swamp", "- Forest"]
	}, "RequestedPrice": "$75.50"}`

	rec, err := Parse(raw, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if rec.Anchor.Name != "Meren of Clan Nel Toth" {
		t.Errorf("anchor = %q", rec.Anchor.Name)
	}
	if rec.RequestedPrice != 75.5 {
		t.Errorf("RequestedPrice = %v", rec.RequestedPrice)
	}

	if len(rec.Entries) != 4 {
		t.Fatalf("got %d entries, want 4: %v", len(rec.Entries), rec.Names())
	}
	if rec.Entries[0].Name != "Spore Frog" || rec.Entries[1].Name != "Spore Frog" {
		t.Error("repeated non-basic card should expand into separate entries")
	}
	if rec.Entries[2].Quantity != 12 {
		t.Errorf("basic land quantity = %d, want 12", rec.Entries[2].Quantity)
	}
	if rec.Entries[3].Name != "Forest" || rec.Entries[3].Quantity != 1 {
		t.Errorf("bullet line = %+v", rec.Entries[3])
	}
}

func TestSplitQuantity(t *testing.T) {
	tests := []struct {
		line string
		name string
		qty  int
	}{
		{"Sol Ring", "Sol Ring", 1},
		{"4 Lightning Bolt", "Lightning Bolt", 4},
		{"4x Lightning Bolt", "Lightning Bolt", 4},
		{"Lightning Bolt x4", "Lightning Bolt", 4},
		{"  * Island  ", "Island", 1},
		{"500 Forest", "Forest", maxQuantity},
		{"", "", 0},
	}
	for _, tt := range tests {
		name, qty := splitQuantity(tt.line)
		if name != tt.name || qty != tt.qty {
			t.Errorf("splitQuantity(%q) = %q, %d; want %q, %d", tt.line, name, qty, tt.name, tt.qty)
		}
	}
}

func TestBalancedEnd(t *testing.T) {
	s := `x {"a":"}","b":{"c":1}} y`
	start := strings.IndexByte(s, '{')
	end := balancedEnd(s, start)
	if got := s[start : end+1]; got != `{"a":"}","b":{"c":1}}` {
		t.Errorf("balancedEnd picked %q", got)
	}
	if balancedEnd(`{"open":`, 0) != -1 {
		t.Error("expected -1 for unbalanced input")
	}
}
