package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/omerorhan/points-quote-service/internal/config"
	"github.com/omerorhan/points-quote-service/internal/handler"
	"github.com/omerorhan/points-quote-service/internal/router"
	"github.com/omerorhan/points-quote-service/internal/service"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the points quote HTTP API and, when enabled, the metrics listener.

Examples:
  points-quote serve
  points-quote serve --config config.yaml --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func runServe(cfg *config.Config) error {
	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cfg.ServiceOptions(),
		service.WithLogger(logger),
		service.WithRegisterer(registry),
	)
	qs, err := service.NewQuoteService(opts...)
	if err != nil {
		return fmt.Errorf("failed to create quote service: %w", err)
	}
	if err := qs.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize quote service: %w", err)
	}
	defer qs.Stop()

	quoteHandler := handler.NewQuoteHandler(qs, logger)
	api := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: router.SetupRoutes(quoteHandler, logger, router.Options{
			HandlerTimeout: cfg.Server.RequestTimeout + time.Second,
			CORSOrigins:    cfg.Server.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	servers := []*http.Server{api}
	if cfg.Metrics.Enabled {
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           router.MetricsRoutes(registry),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	fmt.Fprintln(os.Stderr, "points-quote stopped")
	return serveErr
}
