// Package app wires configuration into a running deck generator.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/cards/scryfall"
	"github.com/ramonehamilton/commander-deckgen/internal/config"
	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/events"
	"github.com/ramonehamilton/commander-deckgen/internal/llm"
	"github.com/ramonehamilton/commander-deckgen/internal/metrics"
	"github.com/ramonehamilton/commander-deckgen/internal/prompt"
	"github.com/ramonehamilton/commander-deckgen/internal/refinement"
	"github.com/ramonehamilton/commander-deckgen/internal/storage"
	"github.com/ramonehamilton/commander-deckgen/internal/synergy"
	"github.com/ramonehamilton/commander-deckgen/internal/telemetry"
	"github.com/ramonehamilton/commander-deckgen/internal/validation"
)

// App holds every long-lived component of the generator.
type App struct {
	logger *zap.Logger

	mu  sync.RWMutex
	cfg *config.Config

	generator  llm.Generator
	reference  *scryfall.Client
	engine     *validation.Engine
	controller *refinement.Controller
	dispatcher *events.EventDispatcher
	stats      *metrics.RefinementMetrics
	collectors *metrics.Collectors

	// Optional, nil when disabled
	service  *storage.Service
	fileSink *telemetry.FileSink
}

// AppError is returned when a feature is used that the configuration disabled.
type AppError struct {
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// ErrStoreDisabled is returned by store-backed calls when telemetry storage is off.
var ErrStoreDisabled = &AppError{Message: "telemetry database not enabled; set telemetry.db_path in the config"}

type options struct {
	generator llm.Generator
}

// Option customises New.
type Option func(*options)

// WithGenerator replaces the configured LLM backend.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// New builds an App from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		logger:     logger.Named("app"),
		cfg:        cfg,
		stats:      metrics.NewRefinementMetrics(),
		collectors: metrics.NewCollectors(),
		dispatcher: events.NewEventDispatcher(logger),
	}
	a.dispatcher.Register(events.NewLoggingObserver(logger, cfg.Log.Development))

	a.generator = o.generator
	if a.generator == nil {
		gen, err := llm.New(ctx, cfg.LLMClientConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create generator: %w", err)
		}
		a.generator = gen
	}

	a.reference = scryfall.NewClient(cfg.ScryfallClientConfig(), logger)
	a.engine = validation.NewEngine(a.reference, cfg.ValidationPolicy(), logger)

	// A nil *EDHRECClient must not reach the builder as a non-nil interface.
	var hints prompt.HintProvider
	if cfg.EDHREC.Enabled {
		hints = synergy.NewEDHRECClient(cfg.EDHRECClientConfig(), logger)
	}
	builder := prompt.NewBuilder(hints, logger,
		prompt.WithHistoryWindow(cfg.LLM.HistoryWindow),
		prompt.WithTemperature(cfg.LLM.Temperature),
	)

	sinks := telemetry.Multi{
		telemetry.NewMetricsSink(a.stats, a.collectors),
		telemetry.NewEventSink(a.dispatcher),
	}
	if sc := cfg.StorageConfig(); sc != nil {
		db, err := storage.Open(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to open telemetry database: %w", err)
		}
		a.service = storage.NewService(db)
		sinks = append(sinks, telemetry.NewStoreSink(a.service))
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.JSONLPath != "" {
		fs, err := telemetry.NewFileSink(cfg.Telemetry.JSONLPath)
		if err != nil {
			a.closeStore()
			return nil, fmt.Errorf("failed to open telemetry log: %w", err)
		}
		a.fileSink = fs
		sinks = append(sinks, fs)
	}

	a.controller = refinement.NewController(a.generator, builder, a.engine, logger,
		refinement.WithConfig(cfg.RefinementPolicy()),
		refinement.WithGuardrails(cfg.InputGuardrails()),
		refinement.WithSink(sinks),
	)

	a.logger.Info("deck generator ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", a.generator.Model()),
		zap.Bool("edhrec", cfg.EDHREC.Enabled),
		zap.Bool("store", a.service != nil),
		zap.Bool("jsonl", a.fileSink != nil),
	)
	return a, nil
}

// GenerateDeck runs one refinement session.
func (a *App) GenerateDeck(ctx context.Context, req *deck.Request) (*refinement.Result, error) {
	return a.controller.GenerateDeck(ctx, req)
}

// Apply swaps in the hot-reloadable parts of cfg: refinement bounds,
// guardrails and the validation policy. Client endpoints and the LLM
// backend need a restart.
func (a *App) Apply(cfg *config.Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.controller.SetConfig(cfg.RefinementPolicy())
	a.controller.SetGuardrails(cfg.InputGuardrails())
	a.engine.SetPolicy(cfg.ValidationPolicy())

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	a.dispatcher.DispatchAsync(events.NewTypedEvent(context.Background(), events.TypeConfigReloaded, events.ConfigReloadedEvent{Path: path}))
	a.logger.Info("configuration reloaded", zap.String("path", path))
	return nil
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Prune removes telemetry older than the configured retention.
func (a *App) Prune(ctx context.Context) (*storage.PruneResult, error) {
	if a.service == nil {
		return nil, ErrStoreDisabled
	}
	retention, err := a.Config().GetRetention()
	if err != nil {
		return nil, err
	}
	res, err := a.service.Prune(ctx, retention)
	if err != nil {
		return nil, err
	}
	if res.RemovedAttempts > 0 || res.RemovedSessions > 0 {
		a.logger.Info("pruned telemetry",
			zap.Int64("attempts", res.RemovedAttempts),
			zap.Int64("sessions", res.RemovedSessions),
			zap.Time("cutoff", res.Cutoff),
		)
	}
	return res, nil
}

// Store returns the telemetry store, or ErrStoreDisabled.
func (a *App) Store() (*storage.Service, error) {
	if a.service == nil {
		return nil, ErrStoreDisabled
	}
	return a.service, nil
}

// Dispatcher returns the event dispatcher sessions publish on.
func (a *App) Dispatcher() *events.EventDispatcher { return a.dispatcher }

// Stats returns the in-process refinement counters.
func (a *App) Stats() *metrics.RefinementMetrics { return a.stats }

// Collectors returns the Prometheus collectors.
func (a *App) Collectors() *metrics.Collectors { return a.collectors }

// Model names the active generator model.
func (a *App) Model() string { return a.generator.Model() }

// Close releases the telemetry log and database.
func (a *App) Close() error {
	var errs []error
	if a.fileSink != nil {
		errs = append(errs, a.fileSink.Close())
	}
	errs = append(errs, a.closeStore())
	return errors.Join(errs...)
}

func (a *App) closeStore() error {
	if a.service == nil {
		return nil
	}
	err := a.service.Close()
	a.service = nil
	return err
}
