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

	"github.com/kiranshivaraju/vidresolve/internal/extractor/ytdlp"
	"github.com/kiranshivaraju/vidresolve/internal/metrics"
	"github.com/kiranshivaraju/vidresolve/internal/queue"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume job ids from the Redis stream and resolve them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	rt, err := connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.Extractor.Provider == "ytdlp" {
		yc := rt.cfg.Extractor.YtDlp
		copied, err := ytdlp.StageCookies(yc.CookieSourcePath, yc.CookieFile)
		if err != nil {
			// Extraction still works for videos that need no cookies.
			slog.Warn("staging cookie file failed", "source", yc.CookieSourcePath, "error", err)
		} else if copied {
			slog.Info("cookie file staged", "path", yc.CookieFile)
		}
	}

	svc, err := rt.newResolver(ctx)
	if err != nil {
		return err
	}

	if addr := rt.cfg.Server.MetricsAddr; addr != "" {
		stopMetrics := serveMetrics(addr)
		defer stopMetrics()
	}

	consumer := queue.NewConsumer(rt.cache.Client(), rt.cfg.Queue, svc)

	slog.Info("worker started",
		"stream", rt.cfg.Queue.Stream,
		"group", rt.cfg.Queue.Group,
		"consumer", rt.cfg.Queue.Consumer,
	)
	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consume queue: %w", err)
	}
	slog.Info("worker stopped")
	return nil
}

// serveMetrics exposes /metrics on addr in the background and returns a
// function that shuts the listener down.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
