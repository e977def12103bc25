package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"backpack/internal/platform/httpserver"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		addr       string
		partitions int32
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose /metrics and /healthz until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return opts.run(cmd, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.MetricsAddr
				}
				if a.sink != nil {
					if err := a.sink.EnsureTopic(ctx, partitions, 1); err != nil {
						a.logger.WarnContext(ctx, "failed to ensure event topic", "topic", a.cfg.Kafka.Topic, "error", err)
					}
				}

				srv := httpserver.New(addr, httpserver.NewOpsRouter(a.registry, a.healthChecks(), a.logger))
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					a.logger.InfoContext(gctx, "serving ops endpoints", "addr", addr, "store", a.cfg.Store)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
					defer cancel()
					a.logger.InfoContext(shutdownCtx, "shutting down ops endpoints")
					return srv.Shutdown(shutdownCtx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides BACKPACK_METRICS_ADDR)")
	cmd.Flags().Int32Var(&partitions, "partitions", 3, "Partitions for the event topic when it has to be created")
	return cmd
}
