package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/vidresolve/internal/api"
	"github.com/kiranshivaraju/vidresolve/internal/api/handler"
	mw "github.com/kiranshivaraju/vidresolve/internal/api/middleware"
	"github.com/kiranshivaraju/vidresolve/internal/metrics"
	"github.com/kiranshivaraju/vidresolve/internal/queue"
	"github.com/kiranshivaraju/vidresolve/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	rt, err := connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	version, err := store.RunMigrations(rt.cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied", "version", version)

	svc, err := rt.newResolver(ctx)
	if err != nil {
		return err
	}

	producer := queue.NewProducer(rt.cache.Client(), rt.cfg.Queue.Stream, rt.cfg.Queue.MaxLen)
	jobs := handler.NewJobHandlers(rt.store, rt.cache, producer, rt.cfg.Server.JobStatusTTL)

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(rt.store),
		RateLimit: mw.NewRateLimit(rt.cache, rt.cfg.Server.RateLimitPerMinute),

		HealthHandler:    handler.NewHealthHandler(rt.store, rt.cache),
		MetricsHandler:   metrics.Handler(prometheus.DefaultGatherer),
		CreateJobs:       jobs.Create,
		GetJob:           jobs.Get,
		JobStatus:        jobs.Status,
		CancelJob:        jobs.Cancel,
		RetryJobs:        jobs.Retry,
		ListRequestJobs:  jobs.ListByRequest,
		EventsHandler:    handler.NewEventsHandler(svc),
		CreateKeyHandler: handler.NewCreateKeyHandler(rt.store),
		ListKeysHandler:  handler.NewListKeysHandler(rt.store),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(rt.store),
	})

	addr := fmt.Sprintf(":%d", rt.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
		// The event endpoint resolves jobs inline, so writes may take as long
		// as a batch of extractions.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: rt.cfg.Extractor.Timeout*time.Duration(rt.cfg.Queue.BatchSize) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
