package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dmi3yy/webui-pipes/internal/runtime"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tool server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			svc, err := runtime.New(
				runtime.WithConfigFile(flags.configPath),
				runtime.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("failed to start service: %w", err)
			}

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case serveErr = <-svc.Errors():
				logger.Error("server failed", slog.String("error", serveErr.Error()))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := svc.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("tool server stopped")
			return serveErr
		},
	}
}
