package export

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

// DeckRow represents one deck line for CSV export.
type DeckRow struct {
	Category      string  `csv:"category" json:"category"`
	Quantity      int     `csv:"quantity" json:"quantity"`
	Name          string  `csv:"name" json:"name"`
	ProposedName  string  `csv:"proposed_name" json:"proposed_name,omitempty"`
	Status        string  `csv:"status" json:"status"`
	ColorIdentity string  `csv:"color_identity" json:"color_identity"`
	PriceUSD      float64 `csv:"price_usd" json:"price_usd"`
}

// DeckRows flattens a record, commander first.
func DeckRows(rec *deck.Record) []DeckRow {
	if rec == nil {
		return nil
	}
	rows := make([]DeckRow, 0, len(rec.Entries)+1)
	if rec.Anchor.Name != "" {
		rows = append(rows, DeckRow{
			Category:      deck.CommanderCategory,
			Quantity:      1,
			Name:          rec.Anchor.Name,
			Status:        string(deck.StatusValid),
			ColorIdentity: rec.Anchor.Identity.String(),
			PriceUSD:      rec.Anchor.PriceUSD,
		})
	}
	for _, e := range rec.Entries {
		rows = append(rows, DeckRow{
			Category:      e.Category,
			Quantity:      e.Quantity,
			Name:          e.Name,
			ProposedName:  e.ProposedName,
			Status:        string(e.Status.Kind),
			ColorIdentity: e.Identity.String(),
			PriceUSD:      e.PriceUSD,
		})
	}
	return rows
}

// WriteDeckText writes the accepted cards as "N Name" lines, commander
// first and separated by a blank line, the layout deck sites import.
func WriteDeckText(w io.Writer, rec *deck.Record) error {
	if rec == nil || rec.Anchor.Name == "" {
		return ErrNoData
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "1 %s\n\n", rec.Anchor.Name)
	for _, e := range rec.Entries {
		if !e.Status.Accepted() {
			continue
		}
		fmt.Fprintf(bw, "%d %s\n", e.Quantity, e.Name)
	}
	return bw.Flush()
}
