package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tallyd/tallyd/internal/config"
	"github.com/tallyd/tallyd/internal/counter"
	"github.com/tallyd/tallyd/internal/health"
	"github.com/tallyd/tallyd/internal/observability"
	"github.com/tallyd/tallyd/internal/ratelimit"
	"github.com/tallyd/tallyd/internal/server"
	"github.com/tallyd/tallyd/internal/server/handlers"
	"github.com/tallyd/tallyd/internal/store"
)

// serverCloseTimeout bounds the final http.Server.Shutdown after the drain
// window has already elapsed.
const serverCloseTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the counter service",
	Long: `Start the counter service with graceful shutdown support.

Signal Handling:
  • SIGINT or SIGTERM: begin draining. New increments are refused, reads
    and probes keep being served, and shutdown completes once in-flight
    requests finish or the drain deadline elapses
  • A second signal forces immediate termination`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		if err := observability.InitServerLogger("tallyd", cfg.Logging.Level); err != nil {
			return err
		}
		logger := observability.Logger()

		observability.InitMetrics()

		shutdownTracing, err := observability.InitTracing("tallyd", versionInfo.Version)
		if err != nil {
			return err
		}

		logger.Info("Initializing server",
			zap.String("version", versionInfo.Version),
			zap.String("store_addr", cfg.Store.Addr),
			zap.String("store_key", cfg.Store.Key),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Duration("drain_deadline", cfg.Health.DrainDeadline))

		st := store.New(cfg.Store)
		defer func() { _ = st.Close() }()

		limiter := ratelimit.New(cfg.RateLimit)
		coordinator := health.New(st, cfg.Health)
		service := counter.New(st, limiter, coordinator, cfg.Store.OpTimeout, cfg.RateLimit.LimitReads)

		srv := server.New(cfg.Server, server.Deps{
			Counter:        service,
			Coordinator:    coordinator,
			Store:          st,
			ProbeTimeout:   cfg.Health.ProbeTimeout,
			MetricsEnabled: cfg.Metrics.Enabled,
		})

		// Background tasks: startup store probe and limiter bucket sweeps.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go coordinator.Run(ctx)
		go limiter.Run(ctx)

		errCh := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		// Restore default signal handling so a second signal force-quits.
		stop()

		logger.Info("Shutdown signal received, draining",
			zap.Int64("inflight", coordinator.Inflight()),
			zap.Duration("drain_deadline", cfg.Health.DrainDeadline))

		coordinator.BeginDrain()

		drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Health.DrainDeadline)
		defer cancelDrain()
		if err := coordinator.AwaitDrain(drainCtx); err != nil {
			logger.Warn("Drain deadline elapsed with requests still in flight",
				zap.Int64("inflight", coordinator.Inflight()))
		}

		closeCtx, cancelClose := context.WithTimeout(context.Background(), serverCloseTimeout)
		defer cancelClose()
		if err := srv.Shutdown(closeCtx); err != nil {
			logger.Warn("HTTP server shutdown returned error", zap.Error(err))
		}

		coordinator.Stop()

		if err := shutdownTracing(closeCtx); err != nil {
			logger.Warn("Tracer shutdown returned error", zap.Error(err))
		}

		logger.Info("Server stopped")
		_ = logger.Sync()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "bind host (overrides server.host)")
	serveCmd.Flags().Int("port", 8080, "bind port (overrides server.port)")
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

var _ handlers.StorePinger = (*store.Client)(nil)
