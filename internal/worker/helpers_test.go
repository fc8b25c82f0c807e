package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/clock"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
	"github.com/stemsi/exstem-attempt-engine/internal/risk"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type staticExams map[uuid.UUID]*model.ExamDefinition

func (s staticExams) GetExamDefinition(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	def, ok := s[id]
	if !ok {
		return nil, service.ErrExamNotFound
	}
	cp := *def
	return &cp, nil
}

type engineFixture struct {
	svc   *service.AttemptService
	clock *clock.Manual
	rdb   *redis.Client
	mr    *miniredis.Miniredis
	def   *model.ExamDefinition
}

// newEngine wires a real attempt service to miniredis, with RedisSink as its sink.
func newEngine(t *testing.T, flags model.ExamFlags) *engineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	def := &model.ExamDefinition{
		ID:               uuid.New(),
		Version:          1,
		Title:            "Physics",
		DurationSeconds:  3600,
		PassingThreshold: 50,
		Flags:            flags,
		Questions: []model.Question{
			{ID: "q1", Text: "Light is a wave.", Marks: 1, Body: &model.TrueFalse{Correct: true}},
			{ID: "q2", Text: "Unit of force?", Marks: 1, Body: &model.FillBlank{Accepted: "newton"}},
		},
	}
	cfg := &config.Config{
		AttemptGracePeriod: 15 * time.Minute,
		MaxPause:           30 * time.Minute,
		ResultRetention:    time.Hour,
		SubmitWait:         200 * time.Millisecond,
		QuestionBatchSize:  10,
	}
	clk := clock.NewManual(t0)
	svc := service.NewAttemptService(
		repository.NewAttemptStore(rdb),
		repository.NewAttemptLock(rdb),
		staticExams{def.ID: def},
		nil,
		risk.NewScorer(risk.DefaultPolicy()),
		clk,
		NewRedisSink(rdb, zerolog.Nop()),
		cfg,
		zerolog.Nop(),
	)
	return &engineFixture{svc: svc, clock: clk, rdb: rdb, mr: mr, def: def}
}

func (f *engineFixture) start(t *testing.T, userID string) uuid.UUID {
	t.Helper()
	res, err := f.svc.Start(context.Background(), f.def.ID, userID)
	require.NoError(t, err)
	return res.AttemptID
}

func (f *engineFixture) status(t *testing.T, id uuid.UUID) *service.StatusView {
	t.Helper()
	v, err := f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	return v
}
