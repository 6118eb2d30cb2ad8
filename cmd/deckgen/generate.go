package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ramonehamilton/commander-deckgen/internal/app"
	"github.com/ramonehamilton/commander-deckgen/internal/deck"
	"github.com/ramonehamilton/commander-deckgen/internal/export"
	"github.com/ramonehamilton/commander-deckgen/internal/refinement"
)

var (
	genCommander string
	genBudget    float64
	genJSON      bool
	genExport    string
	genFormat    string
)

var generateCmd = &cobra.Command{
	Use:   "generate [request]",
	Short: "Generate one deck and print it",
	Example: `  deckgen generate "Meren graveyard deck under $200"
  deckgen generate --commander "Korvold, Fae-Cursed King" "aristocrats"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&genCommander, "commander", "", "Commander to build around")
	generateCmd.Flags().Float64Var(&genBudget, "budget", 0, "Budget in USD, 0 for none")
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "Print the full result as JSON")
	generateCmd.Flags().StringVarP(&genExport, "export", "o", "", "Also write the deck to this file")
	generateCmd.Flags().StringVar(&genFormat, "format", "text", "Export format: text, csv or json")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	format, err := export.ParseFormat(genFormat)
	if err != nil {
		return err
	}

	res, err := a.GenerateDeck(ctx, &deck.Request{
		Prompt:    strings.Join(args, " "),
		Budget:    genBudget,
		Commander: genCommander,
	})
	if err != nil {
		return err
	}

	if genExport != "" && res.Record != nil {
		exporter := export.NewExporter(export.Options{Format: format, FilePath: genExport, PrettyJSON: true, Overwrite: true})
		if err := exporter.Export(res.Record); err != nil {
			return fmt.Errorf("export deck: %w", err)
		}
		logger.Info("deck exported", zap.String("path", genExport), zap.String("format", string(format)))
	}

	out := cmd.OutOrStdout()
	if genJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	displayResult(out, res)
	if !res.Complete() {
		return fmt.Errorf("no complete deck: %s", res.TerminalState)
	}
	return nil
}

// displayResult prints a result grouped by category.
func displayResult(w io.Writer, res *refinement.Result) {
	fmt.Fprintf(w, "Session %s: %s", res.SessionID, res.TerminalState)
	if res.AbortReason != "" {
		fmt.Fprintf(w, " (%s)", res.AbortReason)
	}
	fmt.Fprintf(w, " after %d attempt(s), %s\n", len(res.Attempts), res.Latency.Round(time.Millisecond))

	rec := res.Record
	if rec == nil {
		fmt.Fprintln(w, "No deck could be read from the model output.")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Commander: %s\n", rec.Anchor.Name)
	if rec.Theme != "" {
		fmt.Fprintf(w, "Theme: %s\n", rec.Theme)
	}
	if rec.Message != "" {
		fmt.Fprintln(w, rec.Message)
	}
	fmt.Fprintln(w)

	grouped := rec.Grouped()
	categories := make([]string, 0, len(grouped))
	for c := range grouped {
		if c != deck.CommanderCategory {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(w, "%s (%d):\n", c, len(grouped[c]))
		for _, name := range grouped[c] {
			fmt.Fprintf(w, "  %s\n", name)
		}
		fmt.Fprintln(w)
	}

	if rep := res.Report; rep != nil {
		fmt.Fprintf(w, "Cards: %d/%d  valid %d  rescued %d  invalid %d  est. $%.2f\n",
			rep.TotalSize, deck.TargetSize, rep.Valid, rep.Rescued, rep.Invalid, rep.EstimatedPriceUSD)
		for _, inv := range rep.InvalidEntries {
			fmt.Fprintf(w, "  removed %s\n", inv)
		}
	}
}
