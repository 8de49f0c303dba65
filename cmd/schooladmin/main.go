package main

import (
	"fmt"
	"log/slog"
	"os"

	"schooladmin/internal/app"
	"schooladmin/internal/config"
	"schooladmin/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "schooladmin",
		Short:        "Multi-tenant school administration panel",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", app.Version, app.GitCommit, app.BuildTime),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		tenantCmd(),
		tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger, error) {
	slogLogger := logger.NewWithServiceContext(app.ServiceName, app.Version)

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	slogLogger.Info("config loaded", "env", cfg.Env)
	return cfg, slogLogger, nil
}
