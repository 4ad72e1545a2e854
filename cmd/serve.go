package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"cosmoz-server/internal/app"
)

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the telemetry ingest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rt)
		},
	}
}

func runServe(ctx context.Context, rt *runtime) error {
	rt.logger.Info("starting",
		"version", version,
		"env", rt.cfg.AppEnv,
		"log_level", rt.cfg.LogLevel.String(),
	)

	if err := app.Run(ctx, rt.cfg, rt.logger); err != nil && !errors.Is(err, context.Canceled) {
		rt.logger.Error("run failed", "err", err)
		return err
	}

	rt.logger.Info("shutting down")
	return nil
}
