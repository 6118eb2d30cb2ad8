package scryfall

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Card represents a Magic card from Scryfall.
type Card struct {
	// Core fields
	ID       string `json:"id"`
	OracleID string `json:"oracle_id"`

	// Card details
	Name          string   `json:"name"`
	Layout        string   `json:"layout"`
	ManaCost      string   `json:"mana_cost,omitempty"`
	CMC           float64  `json:"cmc"`
	TypeLine      string   `json:"type_line"`
	OracleText    string   `json:"oracle_text,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	ColorIdentity []string `json:"color_identity"`

	// Print details
	SetCode string `json:"set"`
	Rarity  string `json:"rarity"`

	// Card faces (for DFCs, MDFCs, split cards)
	CardFaces []CardFace `json:"card_faces,omitempty"`

	Legalities Legalities `json:"legalities"`
	Prices     Prices     `json:"prices"`
}

// CardFace represents one face of a multi-faced card.
type CardFace struct {
	Name     string `json:"name"`
	ManaCost string `json:"mana_cost,omitempty"`
	TypeLine string `json:"type_line"`
}

// Legalities represents the legality of a card in the formats this service cares about.
type Legalities struct {
	Commander string `json:"commander"`
	Brawl     string `json:"brawl"`
}

// Prices represents the prices of a card in various currencies.
type Prices struct {
	USD     *string `json:"usd,omitempty"`
	USDFoil *string `json:"usd_foil,omitempty"`
	EUR     *string `json:"eur,omitempty"`
}

// USDValue returns the non-foil USD price, falling back to foil, or 0.
func (p Prices) USDValue() float64 {
	for _, s := range []*string{p.USD, p.USDFoil} {
		if s == nil {
			continue
		}
		if v, err := strconv.ParseFloat(*s, 64); err == nil {
			return v
		}
	}
	return 0
}

// FrontFaceName returns the name before " // " for multi-faced cards.
func (c *Card) FrontFaceName() string {
	front, _, _ := strings.Cut(c.Name, " // ")
	return front
}

// SearchResult represents search results from Scryfall.
type SearchResult struct {
	Object     string `json:"object"`
	TotalCards int    `json:"total_cards"`
	HasMore    bool   `json:"has_more"`
	NextPage   string `json:"next_page,omitempty"`
	Data       []Card `json:"data"`
}

// Lookup is the reference data for one requested name.
type Lookup struct {
	Requested     string   `json:"requested"`
	Found         bool     `json:"found"`
	CanonicalName string   `json:"canonical_name,omitempty"`
	ColorIdentity []string `json:"color_identity,omitempty"`
	PriceUSD      float64  `json:"price_usd,omitempty"`
	Commander     string   `json:"commander_legality,omitempty"`
}

// LookupFromCard builds a found Lookup.
func LookupFromCard(requested string, card *Card) Lookup {
	return Lookup{
		Requested:     requested,
		Found:         true,
		CanonicalName: card.Name,
		ColorIdentity: card.ColorIdentity,
		PriceUSD:      card.Prices.USDValue(),
		Commander:     card.Legalities.Commander,
	}
}

// Candidate is one fuzzy match, best first, with a confidence from 0 to 100.
type Candidate struct {
	Lookup     Lookup `json:"lookup"`
	Confidence int    `json:"confidence"`
}

// ErrUnavailable wraps transport failures: network errors, timeouts, 5xx and
// rate limiting that persisted through the retry.
var ErrUnavailable = errors.New("scryfall unavailable")

// APIError represents an error response from the Scryfall API.
type APIError struct {
	Object   string   `json:"object"`
	Code     string   `json:"code"`
	Status   int      `json:"status"`
	Details  string   `json:"details"`
	Type     string   `json:"type,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Details)
	}
	return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Code)
}

// NotFoundError represents a 404 error from the API.
type NotFoundError struct {
	URL string
	// Type is "ambiguous" when a fuzzy name matched more than one card.
	Type    string
	Details string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("resource not found: %s: %s", e.URL, e.Details)
	}
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAmbiguous returns true if a fuzzy lookup matched several cards.
func IsAmbiguous(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Type == "ambiguous"
}
