package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/clock"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/handler"
	"github.com/stemsi/exstem-attempt-engine/internal/middleware"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
	"github.com/stemsi/exstem-attempt-engine/internal/risk"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stemsi/exstem-attempt-engine/internal/validator"
	"github.com/stemsi/exstem-attempt-engine/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	validator.Setup()
}

type staticSource struct{ def *model.ExamDefinition }

func (s staticSource) GetByID(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	if id != s.def.ID {
		return nil, repository.ErrNotFound
	}
	cp := *s.def
	return &cp, nil
}

func (s staticSource) ListPublished(context.Context) ([]model.ExamDefinition, error) {
	return []model.ExamDefinition{*s.def}, nil
}

type testServer struct {
	router *gin.Engine
	auth   *service.AuthService
	def    *model.ExamDefinition
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		GinMode:                gin.TestMode,
		JWTSecret:              "router-secret",
		AttemptGracePeriod:     15 * time.Minute,
		MaxPause:               30 * time.Minute,
		ResultRetention:        time.Hour,
		SubmitWait:             200 * time.Millisecond,
		QuestionBatchSize:      10,
		ExamCacheTTL:           time.Hour,
		TelemetryRatePerMinute: 2,
	}
	log := zerolog.Nop()

	def := &model.ExamDefinition{
		ID:              uuid.New(),
		Version:         1,
		Title:           "Chemistry",
		DurationSeconds: 1800,
		Questions: []model.Question{
			{ID: "c1", Text: "Water boils at 100C at sea level.", Marks: 1, Body: &model.TrueFalse{Correct: true}},
		},
	}
	exams := service.NewExamService(staticSource{def: def}, rdb, cfg, log)
	attempts := service.NewAttemptService(
		repository.NewAttemptStore(rdb),
		repository.NewAttemptLock(rdb),
		exams,
		nil,
		risk.NewScorer(risk.DefaultPolicy()),
		clock.System{},
		worker.NewRedisSink(rdb, log),
		cfg,
		log,
	)
	auth := service.NewAuthService(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	limiter := middleware.NewRateLimiter(ctx, cfg.TelemetryRatePerMinute, time.Minute)
	handlers := &Handlers{
		Attempt:          handler.NewAttemptHandler(attempts, log),
		Admin:            handler.NewAdminHandler(attempts, exams, nil, log),
		Monitor:          handler.NewMonitorHandler(rdb, exams, nil, log),
		System:           handler.NewSystemHandler(rdb, nil, log),
		WS:               handler.NewWSHandler(attempts, limiter, log, nil),
		TelemetryLimiter: limiter,
	}
	return &testServer{
		router: SetupRouter(ctx, auth, attempts, handlers, cfg),
		auth:   auth,
		def:    def,
	}
}

func (s *testServer) token(t *testing.T, userID string, role service.Role) string {
	t.Helper()
	tok, err := s.auth.IssueToken(userID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouteGuards(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "s1", service.RoleStudent)
	admin := s.token(t, "a1", service.RoleAdmin)
	startPath := "/api/v1/exams/" + s.def.ID.String() + "/attempts"

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   string
	}{
		{"no token", http.MethodPost, startPath, "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage token", http.MethodPost, startPath, "not-a-jwt", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"admin on student route", http.MethodPost, startPath, admin, http.StatusForbidden, "STUDENT_ACCESS_ONLY"},
		{"student on admin route", http.MethodGet, "/api/v1/admin/exams/" + s.def.ID.String() + "/summary", student, http.StatusForbidden, "ADMIN_ACCESS_ONLY"},
		{"bad attempt id", http.MethodGet, "/api/v1/attempts/nope", student, http.StatusBadRequest, "INVALID_ID"},
		{"unknown attempt", http.MethodGet, "/api/v1/attempts/" + uuid.NewString(), student, http.StatusNotFound, "ATTEMPT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.token, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestStudentFlowThroughRouter(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "s1", service.RoleStudent)

	w := s.do(http.MethodPost, "/api/v1/exams/"+s.def.ID.String()+"/attempts", student, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var started struct {
		Data service.StartResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	base := "/api/v1/attempts/" + started.Data.AttemptID.String()

	w = s.do(http.MethodPut, base+"/answers/c1", student, `{"value": true, "seq": 1}`)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The telemetry limiter allows two events per minute per student.
	for range 2 {
		w = s.do(http.MethodPost, base+"/telemetry", student, `{"kind": "window-blur"}`)
		assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}
	w = s.do(http.MethodPost, base+"/telemetry", student, `{"kind": "window-blur"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, w))

	w = s.do(http.MethodPost, base+"/submit", student, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestStreamTelemetrySharesHTTPLimit(t *testing.T) {
	s := newTestServer(t)
	student := s.token(t, "s1", service.RoleStudent)

	w := s.do(http.MethodPost, "/api/v1/exams/"+s.def.ID.String()+"/attempts", student, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var started struct {
		Data service.StartResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	id := started.Data.AttemptID.String()

	for range 2 {
		w = s.do(http.MethodPost, "/api/v1/attempts/"+id+"/telemetry", student, `{"kind": "window-blur"}`)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/attempts/" + id + "/stream?token=" + student
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var fr struct {
		Event string `json:"event"`
		Code  string `json:"code"`
	}
	require.NoError(t, conn.ReadJSON(&fr))
	assert.Equal(t, "status", fr.Event)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"telemetry","kind":"tab-switch"}`)))
	require.NoError(t, conn.ReadJSON(&fr))
	assert.Equal(t, "error", fr.Event)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", fr.Code)
}

func TestListMyAttemptsRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/v1/attempts", s.token(t, "s1", service.RoleStudent), "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[]`, dataOf(t, w))

	w = s.do(http.MethodGet, "/api/v1/attempts", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return string(body.Data)
}
