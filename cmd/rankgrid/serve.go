package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/metrics"
	"github.com/rendis/rankgrid/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getAppContext(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.HTTPAddr
			}
			logger := app.Logger
			defer logger.Sync()

			rec := metrics.New(metrics.WithRuntimeCollectors())
			eng, err := buildEngine(cmd.Context(), app.Config, logger, rec)
			if err != nil {
				return err
			}
			defer eng.Close()

			srv := server.New(server.Dependencies{
				Scanner:            eng.Scanner,
				Store:              eng.Store,
				Metrics:            rec,
				Logger:             logger,
				Version:            version,
				RateLimitPerMinute: app.Config.HTTPRateLimitPerMinute,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				logger.Error("shutdown", logging.Err(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config http_addr)")
	return cmd
}
