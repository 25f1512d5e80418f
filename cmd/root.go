// Package cmd defines and implements the CLI commands for the jobharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/weapply/jobharvest/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobharvest",
		Short: "Harvests job postings from the jobsearch.az API into Postgres.",
		Long: `jobharvest walks the paginated jobsearch.az listings API, fetches every
vacancy's detail document with bounded concurrency and polite delays,
normalizes the payloads, and persists them transactionally to Postgres.`,

		SilenceUsage: true,

		// Load .env (if present) and the full configuration before any
		// subcommand runs.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			loaded, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars prefixed HARVEST_ also apply)")

	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
