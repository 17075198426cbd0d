package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/internal/httpapi"
	"github.com/ChuLiYu/cookbot/internal/metrics"
	"github.com/ChuLiYu/cookbot/internal/server"
)

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a kitchen",
		Long:  "Start a kitchen driven by the wall clock and serve it over HTTP and gRPC until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := currentConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runKitchen(ctx, cfg, buildLogger(cfg, os.Stderr))
		},
	}
	return cmd
}

// runKitchen runs a kitchen and its listeners until ctx is done, then shuts
// everything down and writes the final export.
func runKitchen(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var collector *metrics.Collector
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.NewCollector(registry)
	}

	ctrl, err := controller.NewController(controller.Config{
		CookSeconds:       cfg.Kitchen.CookSeconds,
		TickInterval:      cfg.Kitchen.TickInterval,
		JournalPath:       cfg.Journal.Path,
		JournalBufferSize: cfg.Journal.BufferSize,
		JournalSync:       cfg.Journal.Sync,
		ExportPath:        cfg.Export.Path,
		ExportInterval:    cfg.Export.Interval,
		ExportBackups:     cfg.Export.Backups,
		CheckInvariants:   cfg.Kitchen.CheckInvariants,
		Metrics:           collector,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	defer ctrl.Stop()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	errCh := make(chan error, 2)
	serving := 0

	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
		}
		gs := server.NewGRPCServer(ctrl, logger)
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		serving++
		go func() { errCh <- server.Serve(ctx, gs, lis) }()
	}

	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		var metricsHandler http.Handler
		if collector != nil {
			metricsHandler = collector.Handler()
		}
		lis, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.HTTP.Addr, err)
		}
		srv := &http.Server{
			Handler:           httpapi.NewServer(ctrl, metricsHandler, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("HTTP server listening", "addr", lis.Addr().String())
		serving++
		go func() { errCh <- serveHTTP(ctx, srv, lis) }()
	}

	logger.Info("Kitchen started",
		"instance", ctrl.InstanceID(),
		"cook_seconds", cfg.Kitchen.CookSeconds,
		"tick_interval", cfg.Kitchen.TickInterval)

	var firstErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping gracefully...")
	case firstErr = <-errCh:
		serving--
		logger.Error("Listener failed, stopping", "error", firstErr)
	}
	cancel()
	for ; serving > 0; serving-- {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ctrl.Stop()
	logger.Info("Kitchen stopped")
	return firstErr
}

func serveHTTP(ctx context.Context, srv *http.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
