package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/internal/schema"
	"github.com/swarm-handbook/editor/internal/session"
	"github.com/swarm-handbook/editor/internal/transport"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the editor HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

// runServe wires all dependencies together and serves until ctx is cancelled
// or SIGTERM/SIGINT arrives.
func runServe(parent context.Context, flags *rootFlags) error {
	// Step 1: Load configuration.
	cfg, err := flags.loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Step 2: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, serviceName, version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return err
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 3: Load the catalog.
	cat := &catalog.Catalog{}
	loader := catalog.NewLoader(logger)
	reload := func() error {
		_, span := observability.StartSpan(ctx, observability.SpanCatalogReload)
		loaded, skipped, err := catalog.Reload(loader, cfg.Catalog.Directory, cat)
		if err != nil {
			metrics.RecordCatalogLoad(observability.LoadResultError, 0, skipped)
			observability.EndSpanWithError(span, err)
			return err
		}
		metrics.RecordCatalogLoad(observability.LoadResultOK, loaded, skipped)
		span.SetAttributes(observability.AttrRecords.Int(loaded))
		span.End()
		return nil
	}
	if err := reload(); err != nil {
		logger.Error("catalog load failed", zap.String("directory", cfg.Catalog.Directory), zap.Error(err))
		return err
	}
	logger.Info("catalog loaded",
		zap.String("directory", cfg.Catalog.Directory),
		zap.Int("products", cat.Len()),
		zap.String("checksum", cat.Checksum()),
	)

	var watcher *catalog.Watcher
	if cfg.Catalog.HotReload {
		watcher, err = catalog.NewWatcher(cfg.Catalog.Directory, reload, logger)
		if err != nil {
			logger.Error("catalog watcher initialization failed", zap.Error(err))
			return err
		}
		if err := watcher.Start(); err != nil {
			logger.Error("catalog watcher start failed", zap.Error(err))
			watcher.Stop()
			return err
		}
	}

	// Step 4: Load the JSON Schema (optional).
	var sch *schema.Schema
	if cfg.Schema.Path != "" {
		sch, err = schema.Load(cfg.Schema.Path)
		if err != nil {
			logger.Error("schema load failed", zap.String("path", cfg.Schema.Path), zap.Error(err))
			return err
		}
	}

	// Step 5: Initialize the session store.
	store, err := session.OpenStore(cfg.Sessions)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return err
	}
	if err := store.HealthCheck(ctx); err != nil {
		logger.Error("session store unreachable", zap.String("store", cfg.Sessions.Store), zap.Error(err))
		return err
	}

	// Step 6: Build the session manager.
	opts := dashboard.Options{
		Catalog:          cat,
		Enumerations:     cfg.Enums(),
		DefaultProductID: cfg.Catalog.DefaultProductID,
		Metrics:          metrics,
		Logger:           logger,
	}
	if sch != nil {
		opts.Schema = sch
	}
	sessions := session.NewManager(store, opts, cfg.Sessions.TTL)

	// Step 7: Build HTTP router.
	readinessChecks := observability.ReadinessChecks{
		CatalogLoaded: cat.Loaded,
		SessionStore:  store,
	}
	if sch != nil {
		readinessChecks.SchemaLoaded = func() bool { return len(sch.Raw()) > 0 }
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:         cfg,
		Catalog:        cat,
		Schema:         sch,
		Sessions:       sessions,
		Metrics:        metrics,
		Logger:         logger,
		HealthHandler:  observability.HandleHealth(),
		ReadyHandler:   observability.HandleReady(readinessChecks),
		MetricsHandler: observability.Handler(prometheus.DefaultGatherer),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("session_store", cfg.Sessions.Store),
		zap.Bool("hot_reload", cfg.Catalog.HotReload),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if watcher != nil {
		watcher.Stop()
	}

	// Close stores.
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("session store close error", zap.Error(err))
		}
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
