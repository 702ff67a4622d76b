package cmd

import (
	"context"
	"fmt"
	"os"

	"sitewarehouse/internal/core/config"
	"sitewarehouse/internal/core/logger"
	"sitewarehouse/internal/database/migration"

	"github.com/spf13/cobra"
)

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run migrations manually.",
	Long:  `Applies every pending migration from --dir and exits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.NewLogger(cfg.App.Env, cfg.App.LogLevel)
		defer log.Sync()

		migrationDir, _ := cmd.Flags().GetString("dir")
		if migrationDir == "" {
			migrationDir = cfg.Database.MigrationsDir
		}

		err = migration.Migrate(
			cfg.Database.URL,
			fmt.Sprintf("file://%s", migrationDir),
			true,
			log,
		)
		if err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}

		return nil
	},
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the reminder scheduler.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		skipMigrations, _ := cmd.Flags().GetBool("skip-migrations")

		return Serve(cmd.Context(), cfg, !skipMigrations)
	},
}

func Execute(ctx context.Context) {
	rootCmd := &cobra.Command{
		Use:   "sitewarehouse",
		Short: "Site asset and procurement lifecycle service",
		RunE:  ServeCmd.RunE,
	}
	MigrateCmd.Flags().String("dir", "", "Directory containing the migration files (defaults to MIGRATIONS_DIR)")
	ServeCmd.Flags().Bool("skip-migrations", false, "Do not apply pending migrations on start")
	rootCmd.Flags().AddFlagSet(ServeCmd.Flags())
	rootCmd.AddCommand(MigrateCmd, ServeCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
