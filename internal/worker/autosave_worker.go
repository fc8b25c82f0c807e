package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

var errNoAnswer = errors.New("event carries no answer")

// AutosaveWorker consumes persist_answers_queue and UPSERTs answers to PostgreSQL.
// A row only moves forward: an older sequence number never overwrites a newer one.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	w := &AutosaveWorker{
		pool: pool,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
	w.loop = &batchLoop{
		queue:  config.WorkerKey.PersistAnswersQueue,
		rdb:    rdb,
		log:    w.log,
		bulk:   w.bulkUpsert,
		single: w.upsertSingle,
	}
	return w
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.loop.run(ctx)
}

type answerRow struct {
	attemptID  uuid.UUID
	questionID string
	value      []byte
	seq        int64
	timeSpent  int
	receivedAt time.Time
}

func toAnswerRow(ev *model.Event) (answerRow, error) {
	if ev.Answer == nil {
		return answerRow{}, errNoAnswer
	}
	value, err := json.Marshal(ev.Answer.Value)
	if err != nil {
		return answerRow{}, fmt.Errorf("encode answer value: %w", err)
	}
	return answerRow{
		attemptID:  ev.AttemptID,
		questionID: ev.Answer.QuestionID,
		value:      value,
		seq:        ev.Answer.Seq,
		timeSpent:  ev.Answer.TimeSpent,
		receivedAt: ev.Answer.ReceivedAt,
	}, nil
}

// latestAnswers keeps the highest sequence number per (attempt, question).
// A single INSERT ... ON CONFLICT cannot touch the same row twice.
func latestAnswers(batch []*model.Event) []answerRow {
	type key struct {
		attempt  uuid.UUID
		question string
	}
	idx := make(map[key]int, len(batch))
	rows := make([]answerRow, 0, len(batch))
	for _, ev := range batch {
		row, err := toAnswerRow(ev)
		if err != nil {
			continue
		}
		k := key{row.attemptID, row.questionID}
		if i, ok := idx[k]; ok {
			if row.seq > rows[i].seq {
				rows[i] = row
			}
			continue
		}
		idx[k] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

const answerUpsertTail = `
	ON CONFLICT (attempt_id, question_id) DO UPDATE
	SET value = EXCLUDED.value,
	    seq = EXCLUDED.seq,
	    time_spent_seconds = EXCLUDED.time_spent_seconds,
	    received_at = EXCLUDED.received_at
	WHERE attempt_answers.seq < EXCLUDED.seq`

func (w *AutosaveWorker) bulkUpsert(ctx context.Context, batch []*model.Event) error {
	rows := latestAnswers(batch)
	if len(rows) == 0 {
		return nil
	}

	attemptIDs := make([]uuid.UUID, len(rows))
	questionIDs := make([]string, len(rows))
	values := make([]string, len(rows))
	seqs := make([]int64, len(rows))
	spent := make([]int32, len(rows))
	received := make([]time.Time, len(rows))
	for i, r := range rows {
		attemptIDs[i] = r.attemptID
		questionIDs[i] = r.questionID
		values[i] = string(r.value)
		seqs[i] = r.seq
		spent[i] = int32(r.timeSpent)
		received[i] = r.receivedAt
	}

	query := `
		INSERT INTO attempt_answers (attempt_id, question_id, value, seq, time_spent_seconds, received_at)
		SELECT u.attempt_id, u.question_id, u.value::jsonb, u.seq, u.time_spent, u.received_at
		FROM UNNEST(
			$1::uuid[],
			$2::text[],
			$3::text[],
			$4::bigint[],
			$5::int[],
			$6::timestamptz[]
		) AS u (attempt_id, question_id, value, seq, time_spent, received_at)` + answerUpsertTail

	_, err := w.pool.Exec(ctx, query, attemptIDs, questionIDs, values, seqs, spent, received)
	return err
}

func (w *AutosaveWorker) upsertSingle(ctx context.Context, ev *model.Event) error {
	row, err := toAnswerRow(ev)
	if err != nil {
		// Nothing to retry for an event with no answer.
		w.log.Warn().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Skipping event")
		return nil
	}

	query := `
		INSERT INTO attempt_answers (attempt_id, question_id, value, seq, time_spent_seconds, received_at)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)` + answerUpsertTail

	_, err = w.pool.Exec(ctx, query,
		row.attemptID, row.questionID, string(row.value), row.seq, row.timeSpent, row.receivedAt,
	)
	return err
}
