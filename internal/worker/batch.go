package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

const (
	BatchSize      = 50
	BatchTimeout   = 2 * time.Second
	PollTimeout    = 1 * time.Second // Must be >= 1s to satisfy Redis
	RequeueBackoff = 2 * time.Second
)

// batchLoop drains one Redis list into PostgreSQL. Items are engine events;
// bulk is the fast path, single the row-by-row fallback for a failed batch.
type batchLoop struct {
	queue  string
	rdb    *redis.Client
	log    zerolog.Logger
	bulk   func(ctx context.Context, batch []*model.Event) error
	single func(ctx context.Context, ev *model.Event) error
}

func (l *batchLoop) run(ctx context.Context) {
	l.log.Info().Str("queue", l.queue).Msg("Worker started")

	buffer := make([]*model.Event, 0, BatchSize)
	lastFlush := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			requeued := l.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
			if requeued {
				// Back off so a database outage does not spin the loop.
				sleep(ctx, RequeueBackoff)
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			l.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := l.rdb.BLPop(ctx, PollTimeout, l.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			l.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		// 4. Process Data
		var ev model.Event
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed payloads can never succeed; drop them.
			l.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed payload")
			continue
		}
		buffer = append(buffer, &ev)
	}
}

// flushSafe attempts the bulk write, then falls back to single rows and
// requeues whatever still fails. It reports whether anything was requeued.
func (l *batchLoop) flushSafe(ctx context.Context, batch []*model.Event) bool {
	if len(batch) == 0 {
		return false
	}
	err := l.bulk(ctx, batch)
	if err == nil {
		l.log.Debug().Int("count", len(batch)).Msg("Batch persisted")
		return false
	}
	l.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk write failed, attempting row-by-row recovery")

	failed := make([]*model.Event, 0)
	for _, ev := range batch {
		if err := l.single(ctx, ev); err != nil {
			l.log.Error().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Row write failed, requeueing")
			failed = append(failed, ev)
		}
	}
	if len(failed) == 0 {
		return false
	}
	l.requeue(ctx, failed)
	return true
}

func (l *batchLoop) requeue(ctx context.Context, items []*model.Event) {
	// Requeue must survive a cancelled worker context.
	ctx = context.WithoutCancel(ctx)

	pipe := l.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, l.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	l.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
}

func (l *batchLoop) shutdown(buffer []*model.Event) {
	l.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l.flushSafe(shutdownCtx, buffer)
	l.log.Info().Msg("Worker stopped")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
