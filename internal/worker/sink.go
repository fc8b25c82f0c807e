package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

const sinkTimeout = 2 * time.Second

// RedisSink hands engine events to the persistence queues and publishes a
// compact copy on the exam's monitor channel. Failures are logged; the engine
// never blocks on persistence.
type RedisSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisSink(rdb *redis.Client, log zerolog.Logger) *RedisSink {
	return &RedisSink{
		rdb: rdb,
		log: log.With().Str("component", "event_sink").Logger(),
	}
}

// QueueFor returns the persistence queue for an event type, or "" when the
// event is only broadcast.
func QueueFor(typ model.EventType) string {
	switch typ {
	case model.EventAttemptStarted:
		return config.WorkerKey.PersistQuestionOrderQueue
	case model.EventAnswerRecorded:
		return config.WorkerKey.PersistAnswersQueue
	case model.EventRiskUpdated:
		return config.WorkerKey.PersistTelemetryQueue
	case model.EventAttemptEvaluated, model.EventGradingFailed, model.EventAttemptExpired:
		return config.WorkerKey.PersistResultsQueue
	}
	return ""
}

func (s *RedisSink) Emit(ctx context.Context, ev model.Event) {
	// The request that caused the event may finish before the write does.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	pipe := s.rdb.Pipeline()
	if queue := QueueFor(ev.Type); queue != "" {
		data, err := json.Marshal(&ev)
		if err != nil {
			s.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode event")
			return
		}
		pipe.RPush(ctx, queue, data)
	}

	monitor, err := json.Marshal(ev.Monitor())
	if err == nil {
		pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID.String()), monitor)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).
			Str("type", string(ev.Type)).
			Str("attempt_id", ev.AttemptID.String()).
			Msg("Failed to emit event")
	}
}
