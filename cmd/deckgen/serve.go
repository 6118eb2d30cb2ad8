package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/api"
	"github.com/ramonehamilton/commander-deckgen/internal/app"
	"github.com/ramonehamilton/commander-deckgen/internal/config"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deck generation API",
	Long: `Starts the HTTP API. Deck requests go to POST /api/v1/decks/generate;
attempt progress streams over /ws and Prometheus metrics are served on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Reload refinement and validation settings when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing app", zap.Error(err))
		}
	}()

	if _, err := a.Prune(ctx); err != nil && !errors.Is(err, app.ErrStoreDisabled) {
		logger.Warn("telemetry prune failed", zap.Error(err))
	}

	timeout, err := cfg.GetRequestTimeout()
	if err != nil {
		return err
	}
	apiCfg := &api.Config{
		Addr:             cfg.Server.Addr,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		RequestTimeout:   timeout,
		MaxConversations: cfg.Server.MaxConversations,
	}
	if serveAddr != "" {
		apiCfg.Addr = serveAddr
	}

	deps := api.Dependencies{
		Generator:  a,
		Stats:      a.Stats(),
		Collectors: a.Collectors(),
	}
	if store, err := a.Store(); err == nil {
		deps.Store = store
	}

	server, err := api.NewServer(apiCfg, deps, logger)
	if err != nil {
		return err
	}
	a.Dispatcher().Register(server.NewWebSocketObserver())

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deckgen listening on http://%s (model %s)\n", server.Addr(), a.Model())

	if serveWatch {
		go func() {
			err := config.Watch(ctx, configPath, logger, func(next *config.Config) {
				if err := a.Apply(next, configPath); err != nil {
					logger.Warn("config reload rejected", zap.Error(err))
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("config watch stopped", zap.Error(err))
			}
		}()
	}

	go pruneLoop(ctx, a)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// pruneLoop applies telemetry retention once an hour.
func pruneLoop(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Prune(ctx); err != nil && !errors.Is(err, app.ErrStoreDisabled) {
				logger.Warn("telemetry prune failed", zap.Error(err))
			}
		}
	}
}
