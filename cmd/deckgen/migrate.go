package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/commander-deckgen/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the telemetry database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withMigrations(func(cmd *cobra.Command, mm *storage.MigrationManager, _ []string) error {
		if err := mm.Up(); err != nil {
			return err
		}
		return printVersion(cmd, mm)
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: withMigrations(func(cmd *cobra.Command, mm *storage.MigrationManager, _ []string) error {
		if err := mm.Down(); err != nil {
			return err
		}
		return printVersion(cmd, mm)
	}),
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schema version",
	RunE: withMigrations(func(cmd *cobra.Command, mm *storage.MigrationManager, _ []string) error {
		return printVersion(cmd, mm)
	}),
}

var migrateForceCmd = &cobra.Command{
	Use:   "force [version]",
	Short: "Mark the schema as the given version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrations(func(cmd *cobra.Command, mm *storage.MigrationManager, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		if err := mm.Force(v); err != nil {
			return err
		}
		return printVersion(cmd, mm)
	}),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
	migrateCmd.AddCommand(migrateForceCmd)
}

func withMigrations(fn func(*cobra.Command, *storage.MigrationManager, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if cfg.Telemetry.DBPath == "" {
			return errors.New("telemetry.db_path is not set")
		}
		mm, err := storage.NewMigrationManager(cfg.Telemetry.DBPath)
		if err != nil {
			return err
		}
		defer mm.Close()
		return fn(cmd, mm, args)
	}
}

func printVersion(cmd *cobra.Command, mm *storage.MigrationManager) error {
	v, err := mm.Version()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}
