package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/commander-deckgen/internal/events"
	"github.com/ramonehamilton/commander-deckgen/internal/ipc"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow attempt progress on a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url := watchURL
		if url == "" {
			url = "ws://" + cfg.Server.Addr + "/ws"
		}
		client := ipc.NewClient(url, logger)
		followProgress(client, cmd.OutOrStdout())

		fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", url)
		err := client.Run(ctx)
		if errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "Event stream URL (default: ws://<server.addr>/ws)")
}

// followProgress prints one line per attempt and session event.
func followProgress(client *ipc.Client, w io.Writer) {
	client.OnAttempt(func(e events.AttemptEvent) {
		fmt.Fprintf(w, "%s  attempt %d  %-12s %3d cards  valid %d  rescued %d  invalid %d  %s\n",
			shortID(e.SessionID), e.Attempt, e.Outcome, e.TotalSize, e.Valid, e.Rescued, e.Invalid,
			time.Duration(e.LatencyMs)*time.Millisecond)
	})
	client.OnSession(func(e events.SessionEvent) {
		line := fmt.Sprintf("%s  %s after %d attempt(s), %d cards", shortID(e.SessionID), e.TerminalState, e.Attempts, e.FinalSize)
		if e.AbortReason != "" {
			line += " (" + e.AbortReason + ")"
		}
		if e.Commander != "" {
			line += ", commander " + e.Commander
		}
		fmt.Fprintln(w, line)
	})
}
