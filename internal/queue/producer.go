package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Producer appends job ids to the work stream.
type Producer struct {
	r      redis.UniversalClient
	stream string
	maxLen int64
}

func NewProducer(r redis.UniversalClient, stream string, maxLen int64) *Producer {
	return &Producer{r: r, stream: stream, maxLen: maxLen}
}

// Enqueue adds one stream entry per job id, in order, in a single round trip.
func (p *Producer) Enqueue(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := p.r.Pipeline()
	for _, id := range ids {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: p.maxLen > 0,
			Values: map[string]any{FieldJobID: id.String()},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue jobs: %w", err)
	}
	return nil
}
