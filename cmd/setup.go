package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weapply/jobharvest/internal/logging"
	"github.com/weapply/jobharvest/internal/storage/postgres"
)

// newSetupCmd creates the 'setup' subcommand, which provisions the target
// schema and exits. Harvest runs also apply the schema, so this exists
// mainly for operators who want to verify connectivity up front.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Creates the jobs schema in the configured Postgres database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			store, err := postgres.NewStore(ctx, postgres.Config{
				DSN:      cfg.DB.DSN,
				MaxConns: cfg.DB.MaxConns,
				MinConns: cfg.DB.MinConns,
			})
			if err != nil {
				return fmt.Errorf("connect to postgres: %w", err)
			}
			defer store.Close()

			if err := store.Setup(ctx); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}

			count, err := store.JobCount(ctx)
			if err != nil {
				return fmt.Errorf("count jobs: %w", err)
			}

			logger.Info("Schema ready", zap.Int64("jobs", count))
			return nil
		},
	}
}
