// Command vidresolve resolves queued video URLs into downloadable formats.
//
// Subcommands:
//
//	serve       intake API and SQS-style event endpoint
//	worker      Redis stream consumer that resolves jobs
//	migrate     apply database migrations and exit
//	enqueue     push existing job ids onto the queue
//	create-key  create an API key and print it once
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Sets GOMEMLIMIT from the container cgroup limit.
	_ "github.com/KimMachineGun/automemlimit"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/vidresolve/internal/cache"
	"github.com/kiranshivaraju/vidresolve/internal/config"
	"github.com/kiranshivaraju/vidresolve/internal/extractor"
	"github.com/kiranshivaraju/vidresolve/internal/metrics"
	"github.com/kiranshivaraju/vidresolve/internal/resolver"
	"github.com/kiranshivaraju/vidresolve/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	version         = "v1"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vidresolve",
		Short:         "Resolve video URLs into downloadable formats",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// A missing .env is normal in containers.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}

	root.AddCommand(
		serveCmd(),
		workerCmd(),
		migrateCmd(),
		enqueueCmd(),
		createKeyCmd(),
	)
	return root
}

// runtime holds the connections shared by the long-running commands.
type runtime struct {
	cfg     *config.Config
	store   *store.PostgresStore
	cache   *cache.RedisCache
	metrics *metrics.Metrics
	close   func()
}

// connect loads config and opens the database pool and Redis client.
func connect(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "extractor", cfg.Extractor.Provider, "env", cfg.Server.Env)

	if cfg.Server.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Server.SentryDSN,
			Environment: cfg.Server.Env,
			Release:     version,
		}); err != nil {
			return nil, fmt.Errorf("sentry init: %w", err)
		}
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	return &runtime{
		cfg:     cfg,
		store:   store.NewPostgresStore(pool),
		cache:   redisCache,
		metrics: metrics.New(prometheus.DefaultRegisterer),
		close: func() {
			redisCache.Close()
			pool.Close()
			sentry.Flush(2 * time.Second)
		},
	}, nil
}

// newResolver builds the extractor named by config and the resolver on top
// of it.
func (rt *runtime) newResolver(ctx context.Context) (*resolver.Service, error) {
	ex, err := extractor.NewExtractor(rt.cfg.Extractor)
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}
	if r, ok := ex.(interface{ Ready(context.Context) error }); ok {
		if err := r.Ready(ctx); err != nil {
			slog.Warn("extractor not ready", "extractor", ex.Name(), "error", err)
		}
	}
	slog.Info("extractor initialized", "extractor", ex.Name())

	opts := []resolver.Option{
		resolver.WithStatusTTL(rt.cfg.Server.JobStatusTTL),
		resolver.WithMetrics(rt.metrics),
	}
	if n := rt.cfg.Extractor.RatePerMinute; n > 0 {
		opts = append(opts, resolver.WithExtractLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)))
	}
	return resolver.NewService(rt.store, rt.cache, ex, opts...), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
