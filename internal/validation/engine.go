// Package validation checks deck records against the card reference service.
package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ramonehamilton/commander-deckgen/internal/cards/scryfall"
	"github.com/ramonehamilton/commander-deckgen/internal/deck"
)

// Reference is the card lookup service the engine validates against.
type Reference interface {
	BulkLookup(ctx context.Context, names []string) (map[string]scryfall.Lookup, error)
	FuzzyLookup(ctx context.Context, name string) ([]scryfall.Candidate, error)
}

// Policy holds the rescue thresholds.
type Policy struct {
	// MinRescueConfidence is the lowest fuzzy score (0-100) accepted as a rescue.
	MinRescueConfidence int
	// AmbiguityMargin is how far the best candidate must lead the runner-up.
	AmbiguityMargin int
	// RescueConcurrency bounds parallel fuzzy lookups.
	RescueConcurrency int
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinRescueConfidence: 60,
		AmbiguityMargin:     10,
		RescueConcurrency:   4,
	}
}

// Engine validates deck records. It holds no per-record state.
type Engine struct {
	ref    Reference
	logger *zap.Logger

	mu     sync.RWMutex
	policy Policy
}

// NewEngine creates an engine.
func NewEngine(ref Reference, policy Policy, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{ref: ref, logger: logger.Named("validation")}
	e.SetPolicy(policy)
	return e
}

// SetPolicy replaces the rescue thresholds for subsequent passes.
func (e *Engine) SetPolicy(p Policy) {
	if p.RescueConcurrency <= 0 {
		p.RescueConcurrency = 1
	}
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
}

// Policy returns the current thresholds.
func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// rescue is the outcome of a fuzzy lookup for one name.
type rescue struct {
	lookup scryfall.Lookup
	ok     bool
	detail string
}

// Validate returns a corrected copy of rec and its report. rec is not
// modified. A resolved anchor on rec is trusted as-is.
//
// Errors wrap deck.ErrReferenceServiceUnavailable, or are the context's
// error when ctx ends.
func (e *Engine) Validate(ctx context.Context, rec *deck.Record) (*deck.Record, *deck.Report, error) {
	policy := e.Policy()
	out := rec.Clone()

	names := make([]string, 0, len(out.Entries)+1)
	if !out.Anchor.Resolved {
		names = append(names, out.Anchor.Name)
	}
	for _, en := range out.Entries {
		names = append(names, en.Name)
	}

	lookups, err := e.ref.BulkLookup(ctx, names)
	if err != nil {
		return nil, nil, e.referenceError(ctx, "bulk lookup", err)
	}

	unmatched := make([]string, 0)
	seen := make(map[string]bool)
	for _, n := range names {
		key := deck.NormalizeName(n)
		if n == "" || lookups[n].Found || seen[key] {
			continue
		}
		seen[key] = true
		unmatched = append(unmatched, n)
	}

	rescues, err := e.rescueAll(ctx, unmatched, policy)
	if err != nil {
		return nil, nil, e.referenceError(ctx, "fuzzy lookup", err)
	}

	resolve := func(name string) (scryfall.Lookup, bool, string) {
		if l := lookups[name]; l.Found {
			return l, false, ""
		}
		r := rescues[deck.NormalizeName(name)]
		if r.ok {
			return r.lookup, true, ""
		}
		return scryfall.Lookup{}, false, r.detail
	}

	report := &deck.Report{}

	if !out.Anchor.Resolved {
		l, _, _ := resolve(out.Anchor.Name)
		if !l.Found {
			missing := e.anchorNotFound(out)
			return missing, anchorNotFoundReport(missing), nil
		}
		id, err := deck.ParseIdentity(l.ColorIdentity)
		if err != nil {
			e.logger.Warn("unexpected commander identity", zap.String("card", l.CanonicalName), zap.Error(err))
		}
		out.Anchor = deck.Anchor{
			Name:     l.CanonicalName,
			Identity: id,
			PriceUSD: l.PriceUSD,
			Resolved: true,
		}
	}

	var newlyInvalid []deck.Entry
	accepted := make([]deck.Entry, 0, len(out.Entries))
	firstIndex := make(map[string]int)
	anchorKey := deck.NormalizeName(out.Anchor.Name)

	for _, en := range out.Entries {
		l, rescued, detail := resolve(en.Name)
		if !l.Found {
			if detail == "" {
				detail = "no match"
			}
			en.Status = deck.Invalid(deck.ReasonNotFound, detail)
			newlyInvalid = append(newlyInvalid, en)
			continue
		}

		keepRescue := en.Status.Kind == deck.StatusRescued && en.Status.CorrectedName == l.CanonicalName
		en.Name = l.CanonicalName
		en.PriceUSD = l.PriceUSD
		id, err := deck.ParseIdentity(l.ColorIdentity)
		if err != nil {
			en.Status = deck.Invalid(deck.ReasonColorIdentityViolation,
				fmt.Sprintf("unreadable identity %v: %v", l.ColorIdentity, err))
			newlyInvalid = append(newlyInvalid, en)
			continue
		}
		en.Identity = id
		switch {
		case rescued || keepRescue:
			en.Status = deck.RescuedAs(l.CanonicalName)
		default:
			en.Status = deck.Valid()
		}

		// Identity outranks rescue.
		if !en.Identity.SubsetOf(out.Anchor.Identity) {
			en.Status = deck.Invalid(deck.ReasonColorIdentityViolation,
				fmt.Sprintf("identity %s outside commander %s", en.Identity, out.Anchor.Identity))
			newlyInvalid = append(newlyInvalid, en)
			continue
		}

		key := deck.NormalizeName(en.Name)
		if key == anchorKey {
			en.Status = deck.Invalid(deck.ReasonDuplicate, "commander listed in the deck")
			newlyInvalid = append(newlyInvalid, en)
			continue
		}
		if i, dup := firstIndex[key]; dup {
			if deck.IsBasicLand(en.Name) {
				accepted[i].Quantity += en.Quantity
				continue
			}
			en.Status = deck.Invalid(deck.ReasonDuplicate, "already in the deck")
			newlyInvalid = append(newlyInvalid, en)
			continue
		}
		firstIndex[key] = len(accepted)
		accepted = append(accepted, en)
	}

	out.Entries = accepted
	out.Rejected = append(out.Rejected, newlyInvalid...)

	report.TotalSize = out.Size()
	report.EstimatedPriceUSD = out.Anchor.PriceUSD
	for _, en := range out.Entries {
		switch en.Status.Kind {
		case deck.StatusValid:
			report.Valid++
		case deck.StatusRescued:
			report.Rescued++
		}
		report.EstimatedPriceUSD += en.PriceUSD * float64(en.Quantity)
	}
	for _, en := range out.Rejected {
		report.Invalid++
		name := en.ProposedName
		if name == "" {
			name = en.Name
		}
		report.InvalidEntries = append(report.InvalidEntries, deck.InvalidEntry{
			Name:   name,
			Reason: en.Status.Reason,
			Detail: en.Status.Detail,
		})
	}
	report.IsComplete = report.TotalSize == deck.TargetSize && report.Invalid == 0

	e.logger.Debug("validation pass",
		zap.String("commander", out.Anchor.Name),
		zap.Int("valid", report.Valid),
		zap.Int("rescued", report.Rescued),
		zap.Int("invalid", report.Invalid),
		zap.Int("size", report.TotalSize))

	return out, report, nil
}

// rescueAll runs one fuzzy lookup per name concurrently. Results are keyed
// by normalized name.
func (e *Engine) rescueAll(ctx context.Context, names []string, policy Policy) (map[string]rescue, error) {
	results := make([]rescue, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(policy.RescueConcurrency)

	for i, name := range names {
		g.Go(func() error {
			candidates, err := e.ref.FuzzyLookup(gctx, name)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = decide(candidates, policy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]rescue, len(names))
	for i, name := range names {
		r := results[i]
		if r.ok {
			e.logger.Debug("rescued card", zap.String("proposed", name), zap.String("match", r.lookup.CanonicalName))
		}
		out[deck.NormalizeName(name)] = r
	}
	return out, nil
}

// decide accepts the best candidate only when it is confident and clearly
// ahead of the runner-up.
func decide(candidates []scryfall.Candidate, policy Policy) rescue {
	if len(candidates) == 0 {
		return rescue{detail: "no match"}
	}
	best, second := -1, -1
	for i, c := range candidates {
		switch {
		case best < 0 || c.Confidence > candidates[best].Confidence:
			second, best = best, i
		case second < 0 || c.Confidence > candidates[second].Confidence:
			second = i
		}
	}
	top := candidates[best]
	if !top.Lookup.Found || top.Confidence < policy.MinRescueConfidence {
		return rescue{detail: "no match"}
	}
	if second >= 0 && top.Confidence-candidates[second].Confidence < policy.AmbiguityMargin {
		return rescue{detail: "ambiguous"}
	}
	return rescue{lookup: top.Lookup, ok: true}
}

func (e *Engine) referenceError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	e.logger.Warn("reference service failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", deck.ErrReferenceServiceUnavailable, op, err)
}

func (e *Engine) anchorNotFound(rec *deck.Record) *deck.Record {
	e.logger.Info("commander not found", zap.String("commander", rec.Anchor.Name))
	return &deck.Record{
		Anchor:         deck.Anchor{Name: rec.Anchor.Name},
		Theme:          rec.Theme,
		Message:        rec.Message,
		RequestedPrice: rec.RequestedPrice,
	}
}

func anchorNotFoundReport(rec *deck.Record) *deck.Report {
	return &deck.Report{
		TotalSize: rec.Size(),
		Invalid:   1,
		InvalidEntries: []deck.InvalidEntry{{
			Name:   rec.Anchor.Name,
			Reason: deck.ReasonAnchorNotFound,
			Detail: "commander not found",
		}},
	}
}
