package deck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColorIdentity is a set of color symbols drawn from W, U, B, R, G.
type ColorIdentity uint8

const (
	White ColorIdentity = 1 << iota
	Blue
	Black
	Red
	Green
)

// Colorless is the empty identity.
const Colorless ColorIdentity = 0

var symbolOrder = []struct {
	symbol string
	color  ColorIdentity
}{
	{"W", White},
	{"U", Blue},
	{"B", Black},
	{"R", Red},
	{"G", Green},
}

// ParseIdentity builds an identity from Scryfall-style symbols ("W", "U", ...).
// Unknown symbols are rejected.
func ParseIdentity(symbols []string) (ColorIdentity, error) {
	var id ColorIdentity
	for _, s := range symbols {
		c, ok := colorForSymbol(s)
		if !ok {
			return Colorless, fmt.Errorf("unknown color symbol %q", s)
		}
		id |= c
	}
	return id, nil
}

// MustIdentity is ParseIdentity for literals in tests and tables.
func MustIdentity(symbols ...string) ColorIdentity {
	id, err := ParseIdentity(symbols)
	if err != nil {
		panic(err)
	}
	return id
}

func colorForSymbol(s string) (ColorIdentity, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, o := range symbolOrder {
		if o.symbol == s {
			return o.color, true
		}
	}
	return Colorless, false
}

// SubsetOf reports whether every color of id is also in other.
func (id ColorIdentity) SubsetOf(other ColorIdentity) bool {
	return id&^other == 0
}

// Symbols returns the colors in WUBRG order.
func (id ColorIdentity) Symbols() []string {
	out := make([]string, 0, 5)
	for _, o := range symbolOrder {
		if id&o.color != 0 {
			out = append(out, o.symbol)
		}
	}
	return out
}

func (id ColorIdentity) String() string {
	if id == Colorless {
		return "C"
	}
	return strings.Join(id.Symbols(), "")
}

// MarshalJSON encodes the identity as an array of symbols.
func (id ColorIdentity) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Symbols())
}

// UnmarshalJSON decodes an array of symbols.
func (id *ColorIdentity) UnmarshalJSON(data []byte) error {
	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		return err
	}
	parsed, err := ParseIdentity(symbols)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
