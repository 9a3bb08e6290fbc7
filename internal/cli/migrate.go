package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"timesheet/internal/app"
	"timesheet/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply pending schema migrations to the configured store.

Migrations also run whenever the store is opened; this command only
opens the store and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver == config.DriverMemory {
			fmt.Println("memory store has no schema")
			return nil
		}
		store, err := app.OpenStore(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		defer func() {
			_ = store.Close()
		}()
		logger.Info("migrations up to date", slog.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
