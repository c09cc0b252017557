package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	mw "github.com/kiranshivaraju/vidresolve/internal/api/middleware"
	"github.com/kiranshivaraju/vidresolve/internal/config"
	"github.com/kiranshivaraju/vidresolve/internal/queue"
	"github.com/kiranshivaraju/vidresolve/internal/store"
	"github.com/kiranshivaraju/vidresolve/pkg/models"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			version, err := store.RunMigrations(cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			slog.Info("database migrations applied", "version", version)
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <job-id>...",
		Short: "Push existing job ids onto the worker queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := connect(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			producer := queue.NewProducer(rt.cache.Client(), rt.cfg.Queue.Stream, rt.cfg.Queue.MaxLen)
			if err := producer.Enqueue(ctx, ids...); err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			slog.Info("jobs enqueued", "stream", rt.cfg.Queue.Stream, "jobs", len(ids))
			return nil
		},
	}
}

func createKeyCmd() *cobra.Command {
	var (
		name   string
		scopes []string
	)
	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create an API key and print the raw key once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			for _, s := range scopes {
				if !mw.ValidScope(s) {
					return fmt.Errorf("invalid scope %q: must be %s or %s", s, models.ScopeJobs, models.ScopeAdmin)
				}
			}

			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := store.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			raw, key, err := mw.GenerateAPIKey(name, scopes)
			if err != nil {
				return err
			}
			if err := store.NewPostgresStore(pool).CreateAPIKey(ctx, key); err != nil {
				return fmt.Errorf("store api key: %w", err)
			}

			slog.Info("api key created", "key_id", key.ID, "prefix", key.KeyPrefix, "scopes", key.Scopes)
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{models.ScopeJobs}, "comma-separated scopes (jobs, admin)")
	return cmd
}

func parseJobIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
