package admin

import (
	"errors"
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/config"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/database"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/logging"
	"github.com/spf13/cobra"
)

// MigrateCmd applies the postgres schema migrations.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the postgres backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("KB_DATABASE_URL is required")
			}
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				cfg.MigrationsDir = dir
			}

			logger, err := logging.New(cfg.LogLevel, cfg.Debug)
			if err != nil {
				return err
			}

			status, err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, logger)
			if err != nil {
				return err
			}
			if cli.OutputJSON(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), status)
			}
			if status.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated to version %d\n", status.Version)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "database is up to date (version %d)\n", status.Version)
			}
			return nil
		},
	}

	cmd.Flags().String("dir", "", "Migrations directory (default KB_MIGRATIONS_DIR)")
	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}
