package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/vidresolve/internal/config"
)

// Consumer reads batches of job ids from a Redis stream as a member of a
// consumer group and hands each batch to a BatchHandler. Messages are acked
// once the handler returns, whatever happened to the individual jobs.
type Consumer struct {
	rc           redis.UniversalClient
	cfg          config.QueueConfig
	handler      BatchHandler
	claimMinIdle time.Duration
	retryDelay   time.Duration
}

type ConsumerOption func(*Consumer)

// WithClaimMinIdle sets how long a message must sit unacked with another
// consumer before this one adopts it on startup.
func WithClaimMinIdle(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.claimMinIdle = d }
}

func NewConsumer(rc redis.UniversalClient, cfg config.QueueConfig, handler BatchHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		rc:           rc,
		cfg:          cfg,
		handler:      handler,
		claimMinIdle: defaultClaimMinIdle(cfg.BlockTimeout),
		retryDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultClaimMinIdle stays well above the block timeout so messages still
// being worked on by a live consumer are not stolen.
func defaultClaimMinIdle(block time.Duration) time.Duration {
	minIdle := 30 * time.Second
	if t := block * 6; t > minIdle {
		minIdle = t
	}
	return minIdle
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.rc.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Run consumes until ctx is cancelled. Abandoned messages of crashed
// consumers are adopted and handled first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	slog.Info("queue consumer started",
		"stream", c.cfg.Stream, "group", c.cfg.Group, "consumer", c.cfg.Consumer, "batch_size", c.cfg.BatchSize)

	if n, err := c.Reclaim(ctx); err != nil {
		slog.Warn("reclaiming pending messages failed", "error", err)
	} else if n > 0 {
		slog.Info("reclaimed pending messages", "count", n)
	}

	for {
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("queue consumer stopped")
				return nil
			}
			slog.Error("queue read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}
	}
}

// Poll blocks for up to the configured block timeout, handles at most one
// batch and acks it. It returns the number of records handled.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    int64(c.cfg.BatchSize),
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return len(msgs), c.dispatch(ctx, msgs)
}

// Reclaim adopts messages left pending by other consumers for longer than
// the claim threshold and handles them in batches.
func (c *Consumer) Reclaim(ctx context.Context) (int, error) {
	total := 0
	next := "0-0"
	for {
		msgs, start, err := c.rc.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.claimMinIdle,
			Start:    next,
			Count:    int64(c.cfg.BatchSize),
		}).Result()
		if err != nil {
			return total, err
		}
		if len(msgs) > 0 {
			if err := c.dispatch(ctx, msgs); err != nil {
				return total, err
			}
			total += len(msgs)
		}
		if start == "0-0" || start == "" {
			return total, nil
		}
		next = start
	}
}

func (c *Consumer) dispatch(ctx context.Context, msgs []redis.XMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	records := make([]Record, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		body, _ := m.Values[FieldJobID].(string)
		records = append(records, Record{MessageID: m.ID, Body: body})
		ids = append(ids, m.ID)
	}

	result := c.handler.HandleBatch(ctx, records)
	slog.Info("batch handled",
		"records", len(records), "processed", result.Processed, "skipped", result.Skipped, "failed", result.Failed)

	// A batch cut short by shutdown stays pending and is reclaimed later.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.rc.XAck(ctx, c.cfg.Stream, c.cfg.Group, ids...).Err(); err != nil {
		return fmt.Errorf("ack batch: %w", err)
	}
	return nil
}
