package worker

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

var errNoTelemetry = errors.New("event carries no telemetry")

var telemetryColumns = []string{
	"attempt_id", "exam_id", "user_id", "kind", "count", "duration_ms",
	"client_ts", "received_at", "risk_score", "risk_level",
}

// TelemetryWorker archives ingested telemetry with the risk profile it produced.
// Rows are append-only, so the fast path is COPY.
type TelemetryWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop
	log  zerolog.Logger
}

func NewTelemetryWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *TelemetryWorker {
	w := &TelemetryWorker{
		pool: pool,
		log:  log.With().Str("component", "telemetry_worker").Logger(),
	}
	w.loop = &batchLoop{
		queue:  config.WorkerKey.PersistTelemetryQueue,
		rdb:    rdb,
		log:    w.log,
		bulk:   w.copyBatch,
		single: w.insertSingle,
	}
	return w
}

func (w *TelemetryWorker) Start(ctx context.Context) {
	w.loop.run(ctx)
}

func telemetryRow(ev *model.Event) ([]any, error) {
	t := ev.Telemetry
	if t == nil {
		return nil, errNoTelemetry
	}
	var (
		score float64
		level = string(model.RiskLow)
	)
	if ev.Risk != nil {
		score = ev.Risk.Score
		level = string(ev.Risk.Level)
	}
	return []any{
		ev.AttemptID, ev.ExamID, ev.UserID, string(t.Kind),
		int32(t.Payload.Count), t.Payload.DurationMs,
		t.ClientTimestamp, t.ReceivedAt, score, level,
	}, nil
}

func (w *TelemetryWorker) copyBatch(ctx context.Context, batch []*model.Event) error {
	rows := make([][]any, 0, len(batch))
	for _, ev := range batch {
		row, err := telemetryRow(ev)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_telemetry"},
		telemetryColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *TelemetryWorker) insertSingle(ctx context.Context, ev *model.Event) error {
	row, err := telemetryRow(ev)
	if err != nil {
		w.log.Warn().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Skipping event")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO attempt_telemetry
		   (attempt_id, exam_id, user_id, kind, count, duration_ms, client_ts, received_at, risk_score, risk_level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		row...,
	)
	return err
}
