package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-entry-credits/adapters/gojob"
	"github.com/goliatone/go-entry-credits/transport"
	"github.com/goliatone/go-entry-credits/webhooks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var (
		addr             string
		dispatchInterval time.Duration
		workers          int
		maxAttempts      int
		migrate          bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver, admin API and outbox worker",
		Long: `Run the HTTP server and the go-job worker that dispatches the outbox.

Every committed ingest enqueues a dispatch job. The sweep interval also
enqueues one periodically so retried outbox events are picked up.

Examples:
  entry-credits serve --config entry-credits.yaml
  entry-credits serve --addr :9090 --dispatch-interval 2s --workers 2 --migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *opts, cmd.ErrOrStderr(), withJobQueue(gojob.RuntimeConfig{
				Concurrency: workers,
				Retry:       gojob.RetryPolicy{MaxAttempts: maxAttempts},
			}))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if migrate {
				if err := a.client.Migrate(ctx); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
			}
			if strings.TrimSpace(addr) == "" {
				addr = a.cfg.HTTP.Addr
			}

			gin.SetMode(gin.ReleaseMode)
			processor := webhooks.NewProcessor(
				webhooks.NewSignatureVerifier(a.cfg.Webhook, a.provider.GetLogger("entry-credits.webhooks")),
				a.service,
				a.provider.GetLogger("entry-credits.webhooks"),
			)
			server, err := transport.NewServer(processor,
				transport.WithFacade(a.facade),
				transport.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
				transport.WithHealthCheck(func(ctx context.Context) error {
					return a.factory.DB().PingContext(ctx)
				}),
				transport.WithLogger(a.provider.GetLogger("entry-credits.http")),
			)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			if err := a.jobs.Start(ctx); err != nil {
				return fmt.Errorf("start outbox worker: %w", err)
			}
			go a.jobs.Sweep(ctx, dispatchInterval, a.cfg.Outbox.BatchSize)

			serveErr := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", addr)
				serveErr <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.logger.Info("http server shutting down")
			shutdownErr := httpServer.Shutdown(shutdownCtx)
			if err := a.jobs.Stop(shutdownCtx); err != nil {
				a.logger.Warn("outbox worker stop incomplete", "error", err.Error())
			}
			return shutdownErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to http.addr)")
	cmd.Flags().DurationVar(&dispatchInterval, "dispatch-interval", 5*time.Second, "outbox sweep interval (0 disables)")
	cmd.Flags().IntVar(&workers, "workers", 1, "outbox worker concurrency")
	cmd.Flags().IntVar(&maxAttempts, "job-max-attempts", 5, "dispatch job attempts before dead-lettering")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply migrations before serving")
	return cmd
}
