// Package refinement runs the generate, parse, validate and refine loop that
// turns a deck request into a checked Commander deck.
package refinement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/deckimport"
	"github.com/ramonehamilton/commander-deckgen/internal/llm"
	"github.com/ramonehamilton/commander-deckgen/internal/prompt"
	"github.com/ramonehamilton/commander-deckgen/internal/telemetry"
)

// Config bounds a session.
type Config struct {
	// MaxAttempts is the generation budget per session.
	MaxAttempts int
	// MaxInfraRetries is how many times one parsed record is re-validated
	// after the reference service fails. It does not consume MaxAttempts.
	MaxInfraRetries int
	// InfraRetryBaseDelay is the base for exponential backoff between re-validations.
	InfraRetryBaseDelay time.Duration
}

// DefaultConfig returns the stock budget.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         3,
		MaxInfraRetries:     2,
		InfraRetryBaseDelay: 500 * time.Millisecond,
	}
}

// Builder assembles the first-attempt generator request.
type Builder interface {
	Build(ctx context.Context, req *deck.Request) (*prompt.Built, error)
}

// Validator checks a record against the card reference service.
type Validator interface {
	Validate(ctx context.Context, rec *deck.Record) (*deck.Record, *deck.Report, error)
}

// Controller drives refinement sessions. It keeps no per-session state
// between calls and is safe for concurrent use.
type Controller struct {
	gen       llm.Generator
	builder   Builder
	validator Validator
	sink      telemetry.Sink
	logger    *zap.Logger

	mu     sync.RWMutex
	cfg    Config
	guards prompt.Guardrails

	newID func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig overrides DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = normalize(cfg) }
}

// WithGuardrails overrides prompt.DefaultGuardrails.
func WithGuardrails(g prompt.Guardrails) Option {
	return func(c *Controller) { c.guards = g }
}

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(c *Controller) {
		if s != nil {
			c.sink = s
		}
	}
}

// NewController creates a controller.
func NewController(gen llm.Generator, builder Builder, validator Validator, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		gen:       gen,
		builder:   builder,
		validator: validator,
		sink:      telemetry.Nop{},
		logger:    logger.Named("refinement"),
		cfg:       DefaultConfig(),
		guards:    prompt.DefaultGuardrails(),
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalize(cfg Config) Config {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxInfraRetries < 0 {
		cfg.MaxInfraRetries = 0
	}
	return cfg
}

// SetConfig replaces the budget for sessions started afterwards.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = normalize(cfg)
	c.mu.Unlock()
}

// Config returns the current budget.
func (c *Controller) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetGuardrails replaces the input limits for sessions started afterwards.
func (c *Controller) SetGuardrails(g prompt.Guardrails) {
	c.mu.Lock()
	c.guards = g
	c.mu.Unlock()
}

func (c *Controller) guardrails() prompt.Guardrails {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guards
}

// GenerateDeck runs one refinement session.
//
// A nil error comes with a Succeeded or ExhaustedRetries result. Requests
// rejected before any external call return a nil result and an error wrapping
// deck.ErrInvalidRequest. Aborted sessions return both the result and an
// error wrapping deck.ErrGenerationService, deck.ErrReferenceServiceUnavailable
// or deck.ErrCancelled.
func (c *Controller) GenerateDeck(ctx context.Context, req *deck.Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", deck.ErrInvalidRequest)
	}
	if err := c.guardrails().Check(req.Prompt); err != nil {
		c.logger.Info("request rejected", zap.Error(err))
		return nil, err
	}

	s := &session{
		c:           c,
		cfg:         c.Config(),
		req:         req,
		start:       time.Now(),
		fingerprint: telemetry.Fingerprint(req.Prompt),
		result: &Result{
			SessionID: c.newID(),
			Model:     c.gen.Model(),
		},
	}
	s.log = c.logger.With(zap.String("session", s.result.SessionID))
	return s.run(ctx)
}

// session is the mutable state of one GenerateDeck call.
type session struct {
	c           *Controller
	cfg         Config
	req         *deck.Request
	log         *zap.Logger
	start       time.Time
	fingerprint string

	anchor    *deck.Anchor // fixed at the first successful resolution
	best      *deck.Record
	bestRep   *deck.Report
	hintsUsed int

	result *Result
}

func (s *session) run(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return s.cancel(err)
	}

	built, err := s.c.builder.Build(ctx, s.req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.cancel(ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", deck.ErrInvalidRequest, err)
	}
	s.hintsUsed = built.HintsUsed
	base := built.Request
	next := base

	for n := 1; n <= s.cfg.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return s.cancel(err)
		}

		att, rec, rep, err := s.attempt(ctx, n, next)
		s.result.Attempts = append(s.result.Attempts, att)
		s.emitAttempt(ctx, att, rep)

		switch {
		case errors.Is(err, deck.ErrCancelled):
			return s.cancel(ctx.Err())
		case errors.Is(err, deck.ErrGenerationService):
			return s.abort(ReasonGenerationServiceError, err)
		case errors.Is(err, deck.ErrReferenceServiceUnavailable):
			return s.abort(ReasonReferenceServiceUnavailable, err)
		case errors.Is(err, deck.ErrMalformedOutput):
			s.log.Info("malformed output", zap.Int("attempt", n), zap.Error(err))
			if n == s.cfg.MaxAttempts {
				return s.exhausted()
			}
			next = prompt.Refine(base, att.RawOutput, prompt.MalformedNote(err))
			continue
		case err != nil:
			return s.abort(ReasonGenerationServiceError, err)
		}

		s.track(rec, rep)
		if rep.IsComplete {
			return s.finish(Succeeded, ReasonNone, rec, rep), nil
		}
		if n == s.cfg.MaxAttempts {
			return s.exhausted()
		}
		next = prompt.Refine(base, att.RawOutput, prompt.CorrectionNote(rec, rep))
	}
	return s.exhausted()
}

// attempt runs Generating, Parsing and Validating once.
func (s *session) attempt(ctx context.Context, n int, req *llm.Request) (Attempt, *deck.Record, *deck.Report, error) {
	att := Attempt{Number: n}
	start := time.Now()

	genStart := time.Now()
	raw, err := s.c.gen.Generate(ctx, req)
	att.GenerationLatency = time.Since(genStart)
	if err != nil {
		att.Latency = time.Since(start)
		if ctx.Err() != nil {
			att.Outcome = telemetry.OutcomeAborted
			att.Error = ctx.Err().Error()
			return att, nil, nil, fmt.Errorf("%w: %w", deck.ErrCancelled, ctx.Err())
		}
		att.Outcome = telemetry.OutcomeAborted
		att.Error = err.Error()
		s.log.Warn("generation failed", zap.Int("attempt", n), zap.Error(err))
		return att, nil, nil, fmt.Errorf("%w: %w", deck.ErrGenerationService, err)
	}
	if ctx.Err() != nil {
		return s.abandoned(ctx, att, start)
	}
	att.RawOutput = raw

	parsed, err := deckimport.Parse(raw, deckimport.ParseOptions{FallbackCommander: s.fallbackCommander()})
	if err != nil {
		att.Outcome = telemetry.OutcomeMalformed
		att.Error = err.Error()
		att.Report = &deck.Report{}
		att.Latency = time.Since(start)
		return att, nil, att.Report, err
	}
	s.pinAnchor(parsed)
	if ctx.Err() != nil {
		return s.abandoned(ctx, att, start)
	}

	valStart := time.Now()
	rec, rep, retries, err := s.validate(ctx, parsed)
	att.ValidationLatency = time.Since(valStart)
	att.InfraRetries = retries
	att.Latency = time.Since(start)
	if err != nil {
		att.Error = err.Error()
		if errors.Is(err, deck.ErrCancelled) {
			att.Outcome = telemetry.OutcomeAborted
		} else {
			att.Outcome = telemetry.OutcomeInfraFailed
		}
		return att, nil, nil, err
	}

	att.Report = rep
	att.Outcome = telemetry.OutcomeIncomplete
	if rep.IsComplete {
		att.Outcome = telemetry.OutcomeComplete
	}
	s.log.Info("attempt validated",
		zap.Int("attempt", n),
		zap.Int("size", rep.TotalSize),
		zap.Int("valid", rep.Valid),
		zap.Int("rescued", rep.Rescued),
		zap.Int("invalid", rep.Invalid),
		zap.Bool("complete", rep.IsComplete))
	return att, rec, rep, nil
}

// abandoned discards the attempt's result once the caller has gone away.
func (s *session) abandoned(ctx context.Context, att Attempt, start time.Time) (Attempt, *deck.Record, *deck.Report, error) {
	att.Latency = time.Since(start)
	att.Outcome = telemetry.OutcomeAborted
	att.Error = ctx.Err().Error()
	s.log.Debug("session abandoned, discarding attempt", zap.Int("attempt", att.Number))
	return att, nil, nil, fmt.Errorf("%w: %w", deck.ErrCancelled, ctx.Err())
}

// validate re-validates the same record while the reference service is
// unavailable, up to MaxInfraRetries extra times.
func (s *session) validate(ctx context.Context, rec *deck.Record) (*deck.Record, *deck.Report, int, error) {
	retries := 0
	for {
		out, rep, err := s.c.validator.Validate(ctx, rec)
		if err == nil {
			return out, rep, retries, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, retries, fmt.Errorf("%w: %w", deck.ErrCancelled, ctxErr)
		}
		if !errors.Is(err, deck.ErrReferenceServiceUnavailable) {
			err = fmt.Errorf("%w: %w", deck.ErrReferenceServiceUnavailable, err)
		}
		if retries >= s.cfg.MaxInfraRetries {
			return nil, nil, retries, err
		}

		retries++
		delay := s.cfg.InfraRetryBaseDelay * time.Duration(1<<uint(retries-1))
		s.log.Warn("reference service unavailable, re-validating",
			zap.Int("retry", retries), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, nil, retries, fmt.Errorf("%w: %w", deck.ErrCancelled, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// pinAnchor rewrites the parsed commander to the session anchor, or to the
// explicitly requested commander before the anchor is known.
func (s *session) pinAnchor(rec *deck.Record) {
	switch {
	case s.anchor != nil:
		if deck.NormalizeName(rec.Anchor.Name) != deck.NormalizeName(s.anchor.Name) {
			s.log.Info("rewriting commander to session anchor",
				zap.String("proposed", rec.Anchor.Name), zap.String("anchor", s.anchor.Name))
		}
		rec.Anchor = *s.anchor
	case s.req.Commander != "":
		if deck.NormalizeName(rec.Anchor.Name) != deck.NormalizeName(s.req.Commander) {
			s.log.Info("rewriting commander to requested commander",
				zap.String("proposed", rec.Anchor.Name), zap.String("requested", s.req.Commander))
			rec.Anchor = deck.Anchor{Name: s.req.Commander}
		}
	}
}

func (s *session) fallbackCommander() string {
	if s.anchor != nil {
		return s.anchor.Name
	}
	if s.req.Commander != "" {
		return s.req.Commander
	}
	if s.req.CurrentDeck != nil {
		return s.req.CurrentDeck.Anchor.Name
	}
	return ""
}

// track fixes the session anchor and keeps the best-effort record: the
// highest valid count, earliest on a tie.
func (s *session) track(rec *deck.Record, rep *deck.Report) {
	if s.anchor == nil && rec.Anchor.Resolved {
		a := rec.Anchor
		s.anchor = &a
	}
	if s.best == nil || rec.ValidCount() > s.best.ValidCount() {
		s.best, s.bestRep = rec, rep
	}
}

func (s *session) exhausted() (*Result, error) {
	rep := s.bestRep
	if rep == nil {
		rep = &deck.Report{}
	}
	s.log.Info("attempt budget exhausted", zap.Int("attempts", len(s.result.Attempts)))
	return s.finish(ExhaustedRetries, ReasonNone, s.best, rep), nil
}

func (s *session) abort(reason AbortReason, err error) (*Result, error) {
	s.log.Warn("session aborted", zap.String("reason", string(reason)), zap.Error(err))
	res := s.finish(Aborted, reason, s.best, s.bestRep)
	res.Degraded = s.best != nil
	if res.Report == nil {
		res.Report = &deck.Report{}
	}
	return res, err
}

func (s *session) cancel(cause error) (*Result, error) {
	if cause == nil {
		cause = context.Canceled
	}
	return s.abort(ReasonCancelled, fmt.Errorf("%w: %w", deck.ErrCancelled, cause))
}

func (s *session) finish(state TerminalState, reason AbortReason, rec *deck.Record, rep *deck.Report) *Result {
	res := s.result
	res.TerminalState = state
	res.AbortReason = reason
	res.Record = rec
	res.Report = rep
	res.Latency = time.Since(s.start)
	s.emitSession(res)
	return res
}

func (s *session) emitAttempt(ctx context.Context, att Attempt, rep *deck.Report) {
	sum := telemetry.AttemptSummary{
		SessionID:         s.result.SessionID,
		Attempt:           att.Number,
		Outcome:           att.Outcome,
		Model:             s.result.Model,
		Pathways:          s.pathways(att),
		PromptFingerprint: s.fingerprint,
		Latency:           att.Latency,
		GenerationLatency: att.GenerationLatency,
		ValidationLatency: att.ValidationLatency,
		InfraRetries:      att.InfraRetries,
		At:                time.Now().UTC(),
	}
	if rep != nil {
		sum.Valid, sum.Rescued, sum.Invalid = rep.Valid, rep.Rescued, rep.Invalid
		sum.TotalSize = rep.TotalSize
		sum.Complete = rep.IsComplete
		if len(rep.InvalidEntries) > 0 {
			sum.InvalidReasons = make(map[string]int)
			for _, inv := range rep.InvalidEntries {
				sum.InvalidReasons[string(inv.Reason)]++
			}
		}
	}
	if err := s.c.sink.RecordAttempt(context.WithoutCancel(ctx), sum); err != nil {
		s.log.Warn("failed to record attempt telemetry", zap.Error(err))
	}
}

func (s *session) emitSession(res *Result) {
	sum := telemetry.SessionSummary{
		SessionID:         res.SessionID,
		TerminalState:     string(res.TerminalState),
		AbortReason:       string(res.AbortReason),
		Model:             res.Model,
		PromptFingerprint: s.fingerprint,
		Attempts:          len(res.Attempts),
		Latency:           res.Latency,
		At:                time.Now().UTC(),
	}
	if res.Record != nil {
		sum.Commander = res.Record.Anchor.Name
		sum.FinalSize = res.Record.Size()
	}
	if res.Report != nil {
		sum.Complete = res.TerminalState == Succeeded && res.Report.IsComplete
		sum.EstimatedPriceUSD = res.Report.EstimatedPriceUSD
	}
	if err := s.c.sink.RecordSession(context.Background(), sum); err != nil {
		s.log.Warn("failed to record session telemetry", zap.Error(err))
	}
	s.log.Info("session finished",
		zap.String("state", sum.TerminalState),
		zap.String("reason", sum.AbortReason),
		zap.Int("attempts", sum.Attempts),
		zap.Int("size", sum.FinalSize),
		zap.Duration("latency", res.Latency))
}

func (s *session) pathways(att Attempt) []string {
	p := []string{telemetry.PathwayGeneration}
	if s.hintsUsed > 0 {
		p = append(p, telemetry.PathwaySynergy)
	}
	if att.ValidationLatency > 0 || att.InfraRetries > 0 {
		p = append(p, telemetry.PathwayValidation)
	}
	return p
}
