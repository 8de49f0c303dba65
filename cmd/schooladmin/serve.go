package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schooladmin/internal/app"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Run()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			return awaitShutdown(logger, errCh, quit, application.Shutdown)
		},
	}
}

// awaitShutdown blocks until the server stops or a signal arrives, then
// shuts down. A server failure is returned so the process exits non-zero.
func awaitShutdown(logger *slog.Logger, errCh <-chan error, quit <-chan os.Signal, shutdown func(context.Context) error) error {
	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("server failed", "error", runErr)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := errors.Join(runErr, shutdown(ctx)); err != nil {
		return err
	}

	logger.Info("server exited gracefully")
	return nil
}
