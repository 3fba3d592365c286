package commands

import (
	"fmt"

	"credit-mint-engine/config"
	pgStorage "credit-mint-engine/internal/adapter/storage/postgres"
	"credit-mint-engine/pkg/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Long: `Connect with the server's database settings (config file or CME_DATABASE_*)
and apply any schema files that have not run yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, true)

			pool, err := pgStorage.NewPool(cmd.Context(), cfg.Database, log)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			return pgStorage.Migrate(cmd.Context(), pool, log)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the config file")
	return cmd
}
