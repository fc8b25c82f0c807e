package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

var errNoOrder = errors.New("event carries no question order")

// QuestionOrderWorker records the shuffled order each attempt was dealt, so an
// attempt can be audited after its Redis keys expire. The first write wins.
type QuestionOrderWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop
	log  zerolog.Logger
}

func NewQuestionOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *QuestionOrderWorker {
	w := &QuestionOrderWorker{
		pool: pool,
		log:  log.With().Str("component", "question_order_worker").Logger(),
	}
	w.loop = &batchLoop{
		queue:  config.WorkerKey.PersistQuestionOrderQueue,
		rdb:    rdb,
		log:    w.log,
		bulk:   w.bulkInsert,
		single: w.persistSingle,
	}
	return w
}

func (w *QuestionOrderWorker) Start(ctx context.Context) {
	w.loop.run(ctx)
}

func orderJSON(ev *model.Event) (string, error) {
	if len(ev.QuestionOrder) == 0 {
		return "", errNoOrder
	}
	b, err := json.Marshal(ev.QuestionOrder)
	return string(b), err
}

func startedAt(ev *model.Event) time.Time {
	if ev.StartedAt != nil {
		return *ev.StartedAt
	}
	return ev.At
}

func (w *QuestionOrderWorker) bulkInsert(ctx context.Context, batch []*model.Event) error {
	n := len(batch)
	attemptIDs := make([]uuid.UUID, 0, n)
	examIDs := make([]uuid.UUID, 0, n)
	versions := make([]int32, 0, n)
	userIDs := make([]string, 0, n)
	orders := make([]string, 0, n)
	started := make([]time.Time, 0, n)

	for _, ev := range batch {
		order, err := orderJSON(ev)
		if err != nil {
			continue
		}
		attemptIDs = append(attemptIDs, ev.AttemptID)
		examIDs = append(examIDs, ev.ExamID)
		versions = append(versions, int32(ev.ExamVersion))
		userIDs = append(userIDs, ev.UserID)
		orders = append(orders, order)
		started = append(started, startedAt(ev))
	}
	if len(attemptIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO attempt_question_orders (attempt_id, exam_id, exam_version, user_id, question_order, started_at)
		SELECT u.attempt_id, u.exam_id, u.exam_version, u.user_id, u.question_order::jsonb, u.started_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::int[],
			$4::text[],
			$5::text[],
			$6::timestamptz[]
		) AS u (attempt_id, exam_id, exam_version, user_id, question_order, started_at)
		ON CONFLICT (attempt_id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, examIDs, versions, userIDs, orders, started)
	return err
}

func (w *QuestionOrderWorker) persistSingle(ctx context.Context, ev *model.Event) error {
	order, err := orderJSON(ev)
	if err != nil {
		w.log.Warn().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Skipping event")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO attempt_question_orders (attempt_id, exam_id, exam_version, user_id, question_order, started_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		 ON CONFLICT (attempt_id) DO NOTHING`,
		ev.AttemptID, ev.ExamID, ev.ExamVersion, ev.UserID, order, startedAt(ev),
	)
	return err
}
