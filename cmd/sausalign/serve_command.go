package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sausalign/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var watchInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alignment HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.logger

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := []app.Option{
				app.WithLogger(log),
				app.WithLevel(ctx.level),
				app.WithVersion(version),
			}
			if path := ctx.configPath(); path != "" && watchInterval > 0 {
				opts = append(opts, app.WithConfigWatch(path, watchInterval))
			}

			log.Info("sausalign starting",
				"version", version,
				"config", ctx.configPath(),
				"listen_addr", cfg.Server.ListenAddr,
				"log_level", cfg.Server.LogLevel,
			)
			application, err := app.New(sigCtx, cfg, opts...)
			if err != nil {
				return err
			}

			runErr := application.Run(sigCtx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error("run error", "err", runErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			log.Info("stopping")
			if err := application.Shutdown(shutdownCtx); err != nil {
				return err
			}
			log.Info("goodbye")
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		},
	}

	cmd.Flags().DurationVar(&watchInterval, "watch-interval", 5*time.Second, "How often to poll the config file for changes (0 disables)")

	return cmd
}
