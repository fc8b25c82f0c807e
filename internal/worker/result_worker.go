package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

// ResultWorker archives the final outcome of every attempt: graded results,
// grading failures and expiries. Admin views and result lookups fall back to
// this table once the live Redis keys have expired.
type ResultWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	w := &ResultWorker{
		pool: pool,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
	w.loop = &batchLoop{
		queue:  config.WorkerKey.PersistResultsQueue,
		rdb:    rdb,
		log:    w.log,
		bulk:   w.bulkUpsert,
		single: w.persistSingle,
	}
	return w
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.loop.run(ctx)
}

// resultRow is one attempt_results row. Pointer fields map to NULL.
type resultRow struct {
	attemptID    uuid.UUID
	examID       uuid.UUID
	examVersion  int32
	userID       string
	status       string
	submitReason string
	score        *float64
	totalMarks   *float64
	percentage   *float64
	correct      *int32
	incorrect    *int32
	unanswered   *int32
	passed       *bool
	breakdown    *string
	timeTaken    int32
	riskScore    float64
	riskLevel    string
	startedAt    *time.Time
	submittedAt  *time.Time
	gradedAt     *time.Time
	gradingError *string
	endedAt      time.Time
}

func toResultRow(ev *model.Event) (resultRow, error) {
	row := resultRow{
		attemptID:    ev.AttemptID,
		examID:       ev.ExamID,
		examVersion:  int32(ev.ExamVersion),
		userID:       ev.UserID,
		status:       string(ev.Status),
		submitReason: string(ev.Reason),
		riskLevel:    string(model.RiskLow),
		startedAt:    ev.StartedAt,
		submittedAt:  ev.SubmittedAt,
		endedAt:      ev.At,
	}
	if ev.Risk != nil {
		row.riskScore = ev.Risk.Score
		row.riskLevel = string(ev.Risk.Level)
	}
	if ev.GradingError != "" {
		msg := ev.GradingError
		row.gradingError = &msg
	}
	if r := ev.Result; r != nil {
		breakdown, err := json.Marshal(r.Breakdown)
		if err != nil {
			return resultRow{}, err
		}
		b := string(breakdown)
		correct, incorrect, unanswered := int32(r.Correct), int32(r.Incorrect), int32(r.Unanswered)
		gradedAt := r.GradedAt
		row.score = &r.Score
		row.totalMarks = &r.TotalMarks
		row.percentage = &r.Percentage
		row.correct = &correct
		row.incorrect = &incorrect
		row.unanswered = &unanswered
		row.passed = &r.Passed
		row.breakdown = &b
		row.timeTaken = int32(r.TimeTakenSeconds)
		row.gradedAt = &gradedAt
		if row.submitReason == "" {
			row.submitReason = string(r.SubmitReason)
		}
	}
	return row, nil
}

// finalRows keeps the last event per attempt; a requeued event may share a
// batch with its own retry.
func finalRows(batch []*model.Event) []resultRow {
	idx := make(map[uuid.UUID]int, len(batch))
	rows := make([]resultRow, 0, len(batch))
	for _, ev := range batch {
		row, err := toResultRow(ev)
		if err != nil {
			continue
		}
		if i, ok := idx[row.attemptID]; ok {
			rows[i] = row
			continue
		}
		idx[row.attemptID] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

const resultUpsertTail = `
	ON CONFLICT (attempt_id) DO UPDATE
	SET status = EXCLUDED.status,
	    submit_reason = EXCLUDED.submit_reason,
	    score = EXCLUDED.score,
	    total_marks = EXCLUDED.total_marks,
	    percentage = EXCLUDED.percentage,
	    correct = EXCLUDED.correct,
	    incorrect = EXCLUDED.incorrect,
	    unanswered = EXCLUDED.unanswered,
	    passed = EXCLUDED.passed,
	    breakdown = EXCLUDED.breakdown,
	    time_taken_seconds = EXCLUDED.time_taken_seconds,
	    risk_score = EXCLUDED.risk_score,
	    risk_level = EXCLUDED.risk_level,
	    submitted_at = EXCLUDED.submitted_at,
	    graded_at = EXCLUDED.graded_at,
	    grading_error = EXCLUDED.grading_error,
	    ended_at = EXCLUDED.ended_at,
	    updated_at = NOW()`

func (w *ResultWorker) bulkUpsert(ctx context.Context, batch []*model.Event) error {
	rows := finalRows(batch)
	if len(rows) == 0 {
		return nil
	}

	n := len(rows)
	var (
		attemptIDs   = make([]uuid.UUID, n)
		examIDs      = make([]uuid.UUID, n)
		versions     = make([]int32, n)
		userIDs      = make([]string, n)
		statuses     = make([]string, n)
		reasons      = make([]string, n)
		scores       = make([]*float64, n)
		totals       = make([]*float64, n)
		percentages  = make([]*float64, n)
		corrects     = make([]*int32, n)
		incorrects   = make([]*int32, n)
		unanswereds  = make([]*int32, n)
		passes       = make([]*bool, n)
		breakdowns   = make([]*string, n)
		timeTaken    = make([]int32, n)
		riskScores   = make([]float64, n)
		riskLevels   = make([]string, n)
		startedAts   = make([]*time.Time, n)
		submittedAts = make([]*time.Time, n)
		gradedAts    = make([]*time.Time, n)
		gradingErrs  = make([]*string, n)
		endedAts     = make([]time.Time, n)
	)
	for i, r := range rows {
		attemptIDs[i] = r.attemptID
		examIDs[i] = r.examID
		versions[i] = r.examVersion
		userIDs[i] = r.userID
		statuses[i] = r.status
		reasons[i] = r.submitReason
		scores[i] = r.score
		totals[i] = r.totalMarks
		percentages[i] = r.percentage
		corrects[i] = r.correct
		incorrects[i] = r.incorrect
		unanswereds[i] = r.unanswered
		passes[i] = r.passed
		breakdowns[i] = r.breakdown
		timeTaken[i] = r.timeTaken
		riskScores[i] = r.riskScore
		riskLevels[i] = r.riskLevel
		startedAts[i] = r.startedAt
		submittedAts[i] = r.submittedAt
		gradedAts[i] = r.gradedAt
		gradingErrs[i] = r.gradingError
		endedAts[i] = r.endedAt
	}

	query := `
		INSERT INTO attempt_results (
			attempt_id, exam_id, exam_version, user_id, status, submit_reason,
			score, total_marks, percentage, correct, incorrect, unanswered, passed,
			breakdown, time_taken_seconds, risk_score, risk_level,
			started_at, submitted_at, graded_at, grading_error, ended_at
		)
		SELECT
			u.attempt_id, u.exam_id, u.exam_version, u.user_id, u.status, u.submit_reason,
			u.score, u.total_marks, u.percentage, u.correct, u.incorrect, u.unanswered, u.passed,
			u.breakdown::jsonb, u.time_taken, u.risk_score, u.risk_level,
			u.started_at, u.submitted_at, u.graded_at, u.grading_error, u.ended_at
		FROM UNNEST(
			$1::uuid[], $2::uuid[], $3::int[], $4::text[], $5::text[], $6::text[],
			$7::float8[], $8::float8[], $9::float8[], $10::int[], $11::int[], $12::int[], $13::bool[],
			$14::text[], $15::int[], $16::float8[], $17::text[],
			$18::timestamptz[], $19::timestamptz[], $20::timestamptz[], $21::text[], $22::timestamptz[]
		) AS u (
			attempt_id, exam_id, exam_version, user_id, status, submit_reason,
			score, total_marks, percentage, correct, incorrect, unanswered, passed,
			breakdown, time_taken, risk_score, risk_level,
			started_at, submitted_at, graded_at, grading_error, ended_at
		)` + resultUpsertTail

	_, err := w.pool.Exec(ctx, query,
		attemptIDs, examIDs, versions, userIDs, statuses, reasons,
		scores, totals, percentages, corrects, incorrects, unanswereds, passes,
		breakdowns, timeTaken, riskScores, riskLevels,
		startedAts, submittedAts, gradedAts, gradingErrs, endedAts,
	)
	return err
}

func (w *ResultWorker) persistSingle(ctx context.Context, ev *model.Event) error {
	r, err := toResultRow(ev)
	if err != nil {
		w.log.Error().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("Dropping unencodable result")
		return nil
	}

	query := `
		INSERT INTO attempt_results (
			attempt_id, exam_id, exam_version, user_id, status, submit_reason,
			score, total_marks, percentage, correct, incorrect, unanswered, passed,
			breakdown, time_taken_seconds, risk_score, risk_level,
			started_at, submitted_at, graded_at, grading_error, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14::jsonb, $15, $16, $17, $18, $19, $20, $21, $22)` + resultUpsertTail

	_, err = w.pool.Exec(ctx, query,
		r.attemptID, r.examID, r.examVersion, r.userID, r.status, r.submitReason,
		r.score, r.totalMarks, r.percentage, r.correct, r.incorrect, r.unanswered, r.passed,
		r.breakdown, r.timeTaken, r.riskScore, r.riskLevel,
		r.startedAt, r.submittedAt, r.gradedAt, r.gradingError, r.endedAt,
	)
	return err
}
