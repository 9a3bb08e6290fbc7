// Package cli is the timesheet command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"timesheet/internal/app"
	"timesheet/internal/config"
)

var (
	verbose     bool
	versionInfo string
)

// SetVersion sets the version information from build-time ldflags.
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timesheet",
	Short: "Daily time sheet",
	Long: `timesheet - track each day's work as rows of time slots and tasks

Sessions are stored per user in SQLite, MySQL or memory and can be served
as a JSON API, rendered in the terminal or exported as text.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads configuration and builds the logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return cfg, logger, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logger, nil
}

// openSheet opens the app for a one-shot command: no polling, gate checked,
// a signed-in user required and the current session settled.
func openSheet(ctx context.Context) (*app.App, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := checkGate(cfg); err != nil {
		return nil, err
	}
	cfg.Snapshot.PollInterval = 0

	a, err := app.New(ctx, logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	if a.User() == nil {
		_ = a.Close(ctx)
		return nil, errors.New("not signed in: run 'timesheet login' or set TIMESHEET_USER_ID")
	}
	a.Start(ctx)
	if err := a.Collection().Current().Err; err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func checkGate(cfg config.Config) error {
	if !cfg.BasicAuth.Enabled {
		return nil
	}
	ok, err := app.NewGate(cfg).IsAuthenticated()
	if err != nil {
		return fmt.Errorf("reading gate state: %w", err)
	}
	if !ok {
		return errors.New("locked: run 'timesheet gate login' first")
	}
	return nil
}
