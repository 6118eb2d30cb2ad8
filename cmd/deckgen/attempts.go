package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/commander-deckgen/internal/config"
	"github.com/ramonehamilton/commander-deckgen/internal/export"
	"github.com/ramonehamilton/commander-deckgen/internal/storage"
	"github.com/ramonehamilton/commander-deckgen/internal/storage/models"
)

var (
	attemptsLimit   int
	attemptsSession string
	attemptsFormat  string
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recorded refinement attempts",
	RunE:  runAttempts,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the default config file if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", configPath)
			return nil
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}

func init() {
	attemptsCmd.Flags().IntVarP(&attemptsLimit, "limit", "n", 20, "Number of attempts to show")
	attemptsCmd.Flags().StringVar(&attemptsSession, "session", "", "Show the attempts of one session")
	attemptsCmd.Flags().StringVar(&attemptsFormat, "format", "table", "Output format: table, csv or json")
}

func runAttempts(cmd *cobra.Command, args []string) error {
	sc := cfg.StorageConfig()
	if sc == nil {
		return fmt.Errorf("telemetry database not enabled in %s", configPath)
	}
	db, err := storage.Open(sc)
	if err != nil {
		return err
	}
	service := storage.NewService(db)
	defer service.Close()

	var attempts []*models.RefinementAttempt
	if attemptsSession != "" {
		attempts, err = service.SessionAttempts(cmd.Context(), attemptsSession)
	} else {
		attempts, err = service.RecentAttempts(cmd.Context(), attemptsLimit)
	}
	if err != nil {
		return err
	}
	if attemptsFormat != "table" {
		format, err := export.ParseFormat(attemptsFormat)
		if err != nil {
			return err
		}
		if len(attempts) == 0 {
			return nil
		}
		return export.Write(cmd.OutOrStdout(), format, attempts, true)
	}
	displayAttempts(cmd.OutOrStdout(), attempts)

	stats, err := service.GetStats(cmd.Context())
	if err != nil {
		return err
	}
	if s := stats.Sessions; s != nil && s.Sessions > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d sessions, %.1f%% complete\n", s.Sessions, s.SuccessRate())
	}
	return nil
}

func displayAttempts(w io.Writer, attempts []*models.RefinementAttempt) {
	if len(attempts) == 0 {
		fmt.Fprintln(w, "No attempts recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tN\tOUTCOME\tSIZE\tVALID\tRESCUED\tINVALID\tLATENCY\tMODEL")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%dms\t%s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(a.SessionID), a.Attempt, a.Outcome, a.TotalSize,
			a.ValidCount, a.RescuedCount, a.InvalidCount, a.LatencyMs, a.Model)
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
