package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/clock"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/middleware"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/risk"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stemsi/exstem-attempt-engine/internal/validator"
	"github.com/stemsi/exstem-attempt-engine/internal/worker"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// ─── Fakes ─────────────────────────────────────────────────────────────────

type fakeSource struct {
	mu   sync.Mutex
	defs map[uuid.UUID]*model.ExamDefinition
}

func (f *fakeSource) GetByID(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.defs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *def
	return &cp, nil
}

func (f *fakeSource) ListPublished(context.Context) ([]model.ExamDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ExamDefinition, 0, len(f.defs))
	for _, d := range f.defs {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeSource) publish(def *model.ExamDefinition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defs[def.ID] = def
}

type fakeCounts map[model.AttemptStatus]int64

func (f fakeCounts) StatusCounts(context.Context, uuid.UUID) (map[model.AttemptStatus]int64, error) {
	return f, nil
}

type fakeArchive struct {
	mu      sync.Mutex
	history map[string][]model.AttemptSummary
}

func (f *fakeArchive) GetByAttemptID(context.Context, uuid.UUID) (*repository.ArchivedAttempt, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeArchive) ListByUser(_ context.Context, userID string, limit int) ([]model.AttemptSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.history[userID]
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]model.AttemptSummary(nil), list...), nil
}

// ─── Fixture ───────────────────────────────────────────────────────────────

type fixture struct {
	t        *testing.T
	router   *gin.Engine
	attempts *service.AttemptService
	exams    *service.ExamService
	auth     *service.AuthService
	source   *fakeSource
	clock    *clock.Manual
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	def      *model.ExamDefinition
	cfg      *config.Config
	limiter  *middleware.RateLimiter
	archive  *fakeArchive
}

func physicsExam(flags model.ExamFlags) *model.ExamDefinition {
	return &model.ExamDefinition{
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
}

// newFixture wires the real engine, exam service and auth to miniredis and
// mounts every handler on routes shaped like the production router.
func newFixture(t *testing.T, flags model.ExamFlags) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		AttemptGracePeriod: 15 * time.Minute,
		MaxPause:           30 * time.Minute,
		ResultRetention:    time.Hour,
		SubmitWait:         200 * time.Millisecond,
		QuestionBatchSize:  10,
		ExamCacheTTL:       time.Hour,

		TelemetryRatePerMinute: 3,
	}
	log := zerolog.Nop()

	def := physicsExam(flags)
	source := &fakeSource{defs: map[uuid.UUID]*model.ExamDefinition{def.ID: def}}
	exams := service.NewExamService(source, rdb, cfg, log)
	clk := clock.NewManual(t0)
	archive := &fakeArchive{history: make(map[string][]model.AttemptSummary)}
	attempts := service.NewAttemptService(
		repository.NewAttemptStore(rdb),
		repository.NewAttemptLock(rdb),
		exams,
		archive,
		risk.NewScorer(risk.DefaultPolicy()),
		clk,
		worker.NewRedisSink(rdb, log),
		cfg,
		log,
	)
	auth := service.NewAuthService(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		t: t, attempts: attempts, exams: exams, auth: auth, source: source,
		clock: clk, rdb: rdb, mr: mr, def: def, cfg: cfg,
		limiter: middleware.NewRateLimiter(ctx, cfg.TelemetryRatePerMinute, time.Minute),
		archive: archive,
	}
	f.router = f.routes()
	return f
}

func (f *fixture) routes() *gin.Engine {
	log := zerolog.Nop()
	counts := fakeCounts{model.StatusEvaluated: 3}
	ah := NewAttemptHandler(f.attempts, log)
	adm := NewAdminHandler(f.attempts, f.exams, counts, log)
	mon := NewMonitorHandler(f.rdb, f.exams, counts, log)
	sys := NewSystemHandler(f.rdb, nil, log)
	wsh := NewWSHandler(f.attempts, f.limiter, log, nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/health", sys.Health)

	student := r.Group("/api/v1", middleware.RequireJWT(f.auth), middleware.RequireRole(service.RoleStudent))
	student.POST("/exams/:exam_id/attempts", ah.StartAttempt)
	student.GET("/attempts", ah.ListMine)
	attempt := student.Group("/attempts/:attempt_id", middleware.RequireAttemptOwner(f.attempts))
	attempt.GET("", ah.GetStatus)
	attempt.GET("/questions", ah.GetQuestions)
	attempt.PUT("/answers/:question_id", ah.SaveAnswer)
	attempt.POST("/flags/:question_id", ah.ToggleFlag)
	attempt.PUT("/position", ah.GoTo)
	attempt.POST("/telemetry", f.limiter.Middleware(), ah.RecordTelemetry)
	attempt.POST("/pause", ah.Pause)
	attempt.POST("/resume", ah.Resume)
	attempt.POST("/abandon", ah.Abandon)
	attempt.POST("/submit", ah.Submit)
	attempt.GET("/result", ah.GetResult)

	admin := r.Group("/api/v1/admin", middleware.RequireJWT(f.auth), middleware.RequireRole(service.RoleAdmin))
	admin.GET("/attempts/:attempt_id", adm.GetAttempt)
	admin.POST("/attempts/:attempt_id/submit", adm.ForceSubmit)
	admin.GET("/exams/:exam_id/summary", adm.GetExamSummary)
	admin.POST("/exams/:exam_id/refresh-cache", adm.RefreshExamCache)
	admin.GET("/exams/:exam_id/monitor", mon.MonitorExamSSE)
	admin.GET("/system/metrics", sys.SystemMetricsSSE)

	r.GET("/ws/v1/attempts/:attempt_id/stream",
		middleware.RequireWSAuth(f.auth),
		middleware.RequireRole(service.RoleStudent),
		middleware.RequireAttemptOwner(f.attempts),
		wsh.AttemptStream,
	)
	return r
}

func (f *fixture) token(userID string, role service.Role) string {
	f.t.Helper()
	tok, err := f.auth.IssueToken(userID, role, time.Hour)
	require.NoError(f.t, err)
	return tok
}

// envelope mirrors response.Response with a raw data field.
type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

type result struct {
	Code int
	Body envelope
}

func (r result) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body.Data, dst))
}

func (r result) errCode() response.ErrCode {
	if r.Body.Error == nil {
		return ""
	}
	return r.Body.Error.Code
}

func (f *fixture) do(method, path, token string, body any) result {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return result{Code: w.Code, Body: env}
}

// start begins an attempt over HTTP and returns its ID.
func (f *fixture) start(userID string) uuid.UUID {
	f.t.Helper()
	res := f.do(http.MethodPost, "/api/v1/exams/"+f.def.ID.String()+"/attempts", f.token(userID, service.RoleStudent), nil)
	require.Equal(f.t, http.StatusCreated, res.Code)
	var out service.StartResult
	res.decode(f.t, &out)
	return out.AttemptID
}

func attemptPath(id uuid.UUID, suffix string) string {
	return "/api/v1/attempts/" + id.String() + suffix
}
