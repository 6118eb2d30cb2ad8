package prompt

import (
	"fmt"
	"strings"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/llm"
)

// maxListedRejections bounds how many rejected cards a note names.
const maxListedRejections = 25

// Refine returns a copy of base carrying the previous draft and a corrective note.
func Refine(base *llm.Request, previousOutput, correction string) *llm.Request {
	r := *base
	r.Context = append([]string(nil), base.Context...)
	r.Turns = append([]llm.Message(nil), base.Turns...)
	r.PreviousOutput = previousOutput
	r.Correction = correction
	return &r
}

// MalformedNote asks for a well-formed answer after unparseable output.
func MalformedNote(cause error) string {
	return fmt.Sprintf(
		"Your previous response could not be read (%v). Respond with only the JSON object in the required format, "+
			"with a non-empty \"Commander\" list. Output the COMPLETE 100-card deck JSON.", cause)
}

// CorrectionNote describes what is wrong with a validated record.
func CorrectionNote(rec *deck.Record, rep *deck.Report) string {
	var sb strings.Builder

	for _, inv := range rep.InvalidEntries {
		if inv.Reason == deck.ReasonAnchorNotFound {
			fmt.Fprintf(&sb, "The commander %q is not a real card. Choose a real legendary commander and rebuild the deck around it. ", inv.Name)
			sb.WriteString("Output the COMPLETE 100-card deck JSON.")
			return sb.String()
		}
	}

	size := rep.TotalSize
	switch short := rep.Shortfall(); {
	case short > 0:
		fmt.Fprintf(&sb, "The deck currently has %d valid cards. You MUST add exactly %d more cards to reach 100. ", size, short)
		sb.WriteString("Fill the rest with basic lands if you run out of ideas. ")
	case short < 0:
		fmt.Fprintf(&sb, "The deck currently has %d cards. You MUST remove exactly %d cards to reach 100. ", size, -short)
	default:
		fmt.Fprintf(&sb, "The deck has %d cards. Keep it at exactly 100. ", size)
	}

	if rec != nil && rec.Anchor.Name != "" {
		fmt.Fprintf(&sb, "The commander is %s with color identity %s; every card must fit inside it. ",
			rec.Anchor.Name, rec.Anchor.Identity)
	}

	if len(rep.InvalidEntries) > 0 {
		sb.WriteString("These cards were removed and must be replaced, not repeated: ")
		listed := rep.InvalidEntries
		if len(listed) > maxListedRejections {
			listed = listed[:maxListedRejections]
		}
		for i, inv := range listed {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(describe(inv))
		}
		if extra := len(rep.InvalidEntries) - len(listed); extra > 0 {
			fmt.Fprintf(&sb, "; and %d more", extra)
		}
		sb.WriteString(". ")
	}

	sb.WriteString("Output the COMPLETE updated 100-card deck JSON.")
	return sb.String()
}

func describe(inv deck.InvalidEntry) string {
	switch inv.Reason {
	case deck.ReasonNotFound:
		return inv.Name + " (not a real card)"
	case deck.ReasonColorIdentityViolation:
		return inv.Name + " (outside the commander's colors)"
	case deck.ReasonDuplicate:
		return inv.Name + " (duplicate; only basic lands may repeat)"
	default:
		return inv.String()
	}
}
