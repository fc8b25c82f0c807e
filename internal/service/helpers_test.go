package service

import (
	"context"
	"encoding/json"
	"sync"
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
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

// ─── Fakes ─────────────────────────────────────────────────────────────────

type fakeExams struct {
	mu   sync.Mutex
	defs map[uuid.UUID]*model.ExamDefinition
}

func (f *fakeExams) GetExamDefinition(_ context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.defs[examID]
	if !ok {
		return nil, ErrExamNotFound
	}
	cp := *def
	return &cp, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recordingSink) Emit(_ context.Context, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(typ model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	attempts map[uuid.UUID]*repository.ArchivedAttempt
	history  map[string][]model.AttemptSummary
}

func (f *fakeArchive) GetByAttemptID(_ context.Context, id uuid.UUID) (*repository.ArchivedAttempt, error) {
	if a, ok := f.attempts[id]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeArchive) ListByUser(_ context.Context, userID string, limit int) ([]model.AttemptSummary, error) {
	list := f.history[userID]
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]model.AttemptSummary(nil), list...), nil
}

// ─── Fixture ───────────────────────────────────────────────────────────────

type fixture struct {
	svc     *AttemptService
	clock   *clock.Manual
	exams   *fakeExams
	sink    *recordingSink
	archive *fakeArchive
	store   *repository.AttemptStore
	rdb     *redis.Client
	mr      *miniredis.Miniredis
	cfg     *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		AttemptGracePeriod: 15 * time.Minute,
		MaxPause:           30 * time.Minute,
		ResultRetention:    time.Hour,
		SubmitWait:         200 * time.Millisecond,
		QuestionBatchSize:  2,
		ExamCacheTTL:       10 * time.Minute,
	}
}

func newFixture(t *testing.T, defs ...*model.ExamDefinition) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		clock:   clock.NewManual(t0),
		exams:   &fakeExams{defs: make(map[uuid.UUID]*model.ExamDefinition)},
		sink:    &recordingSink{},
		archive: &fakeArchive{
			attempts: make(map[uuid.UUID]*repository.ArchivedAttempt),
			history:  make(map[string][]model.AttemptSummary),
		},
		store:   repository.NewAttemptStore(rdb),
		rdb:     rdb,
		mr:      mr,
		cfg:     testConfig(),
	}
	for _, def := range defs {
		f.exams.defs[def.ID] = def
	}
	f.svc = NewAttemptService(
		f.store,
		repository.NewAttemptLock(rdb),
		f.exams,
		f.archive,
		risk.NewScorer(risk.DefaultPolicy()),
		f.clock,
		f.sink,
		f.cfg,
		zerolog.Nop(),
	)
	return f
}

// peer returns a second engine instance on the same Redis, as another
// process would run it.
func (f *fixture) peer() *AttemptService {
	return NewAttemptService(
		f.store,
		repository.NewAttemptLock(f.rdb),
		f.exams,
		f.archive,
		risk.NewScorer(risk.DefaultPolicy()),
		f.clock,
		f.sink,
		f.cfg,
		zerolog.Nop(),
	)
}

// threeQuestionExam has one question of each graded shape plus a fill-blank,
// one mark each, 60 minutes, pass at 50%.
func threeQuestionExam(flags model.ExamFlags) *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:               uuid.New(),
		Version:          1,
		Title:            "General Knowledge",
		DurationSeconds:  3600,
		PassingThreshold: 50,
		Flags:            flags,
		Questions: []model.Question{
			{ID: "q1", Text: "2+2?", Marks: 1, NegativeMarks: 0.5, Body: &model.SingleChoice{
				Options: []model.Option{{ID: "A", Text: "4"}, {ID: "B", Text: "5"}, {ID: "C", Text: "22"}},
				Correct: "A",
			}},
			{ID: "q2", Text: "The sun is a star.", Marks: 1, Body: &model.TrueFalse{Correct: true}},
			{ID: "q3", Text: "Capital of France?", Marks: 1, Body: &model.FillBlank{Accepted: "Paris"}},
		},
	}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func (f *fixture) start(t *testing.T, examID uuid.UUID, userID string) *StartResult {
	t.Helper()
	res, err := f.svc.Start(context.Background(), examID, userID)
	require.NoError(t, err)
	return res
}

func (f *fixture) status(t *testing.T, attemptID uuid.UUID) *StatusView {
	t.Helper()
	v, err := f.svc.Status(context.Background(), attemptID)
	require.NoError(t, err)
	return v
}
