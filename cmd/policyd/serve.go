package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/fyrsmithlabs/policyrag/internal/http"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
	"github.com/fyrsmithlabs/policyrag/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		watch      bool
		ingestOnUp bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve starts the HTTP API (search, stats, ingest, health, metrics) and runs
until interrupted. With --watch, changes under the data directory trigger a
rebuild of the collection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				cfg.Ingest.Watch = watch
			}

			tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := tel.Shutdown(context.Background()); err != nil {
					logger.Warn(context.Background(), "telemetry shutdown", zap.Error(err))
				}
			}()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if ingestOnUp {
				if _, err := a.ingester.Reindex(ctx, cfg.Ingest.DataDir, cfg.Ingest.Pattern); err != nil {
					return err
				}
			}

			server, err := httpapi.NewServer(a.orchestrator, a.ingester, logger, &httpapi.Config{
				Host:    cfg.Server.Host,
				Port:    cfg.Server.Port,
				DataDir: cfg.Ingest.DataDir,
				Pattern: cfg.Ingest.Pattern,
			})
			if err != nil {
				return err
			}

			var watcher *ingest.Watcher
			if cfg.Ingest.Watch {
				watcher, err = ingest.NewWatcher(a.ingester, cfg.Ingest.DataDir, cfg.Ingest.Pattern, cfg.Ingest.Debounce.Duration(), logger)
				if err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			if watcher != nil {
				g.Go(func() error { return watcher.Run(gctx) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info(context.Background(), "shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "rebuild the collection when documents change (default from config)")
	cmd.Flags().BoolVar(&ingestOnUp, "ingest", false, "rebuild the collection before serving")
	return cmd
}
