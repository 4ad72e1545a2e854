package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cosmoz-server/internal/config"
	"cosmoz-server/internal/logging"
)

const appName = "cosmoz-server"

// Set with -ldflags "-X main.version=...".
var version = "dev"

// runtime is what every subcommand gets after the root pre-run.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rt := &runtime{}
	var envFile string

	root := &cobra.Command{
		Use:           appName,
		Short:         "CosmOz station metadata and observations API",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare invocation runs the server.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rt)
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			rt.cfg = cfg
			rt.logger = logging.New(cfg, version, appName)
			slog.SetDefault(rt.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		newServeCmd(rt),
		newMigrateCmd(rt),
		newQueryCmd(),
		newImportCmd(rt),
		newAPIKeyCmd(rt),
	)
	return root
}
