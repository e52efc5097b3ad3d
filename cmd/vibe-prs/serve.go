package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-prs/internal/pipeline"
	"github.com/inodb/vibe-prs/internal/server"
	"github.com/inodb/vibe-prs/internal/stage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Long: `Serve exposes GET /health, POST /predict and GET /runs.
Runs are synchronous: POST /predict returns when the pipeline finishes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			executor := stage.NewExecExecutor("")
			executor.SetLogger(logger)
			p := pipeline.New(cfg, executor)
			p.SetLogger(logger)

			srv := server.New(cfg.Server, p)
			srv.SetLogger(logger)

			ledger, err := openLedger(cfg)
			if err != nil {
				return err
			}
			if ledger != nil {
				defer ledger.Close()
				p.SetLedger(ledger)
				srv.SetRunLister(ledger)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting server",
				zap.String("addr", cfg.Server.Addr()),
				zap.Strings("builds", cfg.Builds()),
				zap.Bool("ledger", ledger != nil))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().String("host", "", "listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	return cmd
}
