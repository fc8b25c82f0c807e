package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, model.ExamFlags{AllowReview: true, ShowResultImmediately: true})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	res := f.do(http.MethodGet, attemptPath(id, ""), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var v service.StatusView
	res.decode(t, &v)
	assert.Equal(t, model.StatusInProgress, v.Status)
	assert.Equal(t, 3600, v.RemainingSeconds)
	assert.Equal(t, 2, v.TotalQuestions)

	res = f.do(http.MethodGet, attemptPath(id, "/questions?offset=1&limit=5"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var page service.QuestionPage
	res.decode(t, &page)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Questions, 1)
	assert.Equal(t, "q2", page.Questions[0].ID)

	res = f.do(http.MethodPut, attemptPath(id, "/answers/q1"), tok, `{"value": true, "seq": 1, "time_spent_seconds": 12}`)
	require.Equal(t, http.StatusOK, res.Code)
	var saved struct {
		QuestionID string `json:"question_id"`
		Seq        int64  `json:"seq"`
		Accepted   bool   `json:"accepted"`
	}
	res.decode(t, &saved)
	assert.Equal(t, "q1", saved.QuestionID)
	assert.True(t, saved.Accepted)

	res = f.do(http.MethodPut, attemptPath(id, "/answers/q2"), tok, `{"value": "Joule", "seq": 1}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(http.MethodPost, attemptPath(id, "/flags/q2"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"question_id":"q2","flagged":true}`, string(res.Body.Data))

	res = f.do(http.MethodPut, attemptPath(id, "/position"), tok, `{"index": 1}`)
	require.Equal(t, http.StatusOK, res.Code)
	var q model.StudentQuestion
	res.decode(t, &q)
	assert.Equal(t, "q2", q.ID)

	res = f.do(http.MethodPost, attemptPath(id, "/telemetry"), tok, `{"kind": "tab-switch", "count": 1}`)
	require.Equal(t, http.StatusAccepted, res.Code)
	assert.NotContains(t, string(res.Body.Data), "score")

	res = f.do(http.MethodPost, attemptPath(id, "/submit"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var submitted SubmitResponse
	res.decode(t, &submitted)
	assert.Equal(t, model.StatusEvaluated, submitted.Status.Status)
	require.NotNil(t, submitted.Result)
	assert.Equal(t, 50.0, submitted.Result.Percentage)
	assert.True(t, submitted.Result.Passed)

	res = f.do(http.MethodGet, attemptPath(id, "/result"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var got model.Result
	res.decode(t, &got)
	assert.Equal(t, 1, got.Correct)
	assert.Equal(t, 1, got.Incorrect)

	require.Len(t, got.Breakdown, 2)
	q2 := got.Breakdown[1]
	require.NotNil(t, q2.Selected)
	assert.Equal(t, "Joule", q2.Selected.Text)
	assert.True(t, q2.Flagged)
	require.NotNil(t, q2.CorrectAnswer)
	assert.Equal(t, "newton", q2.CorrectAnswer.Text)
	assert.Equal(t, 12, got.Breakdown[0].TimeSpentSeconds)

	// Writes after evaluation are rejected with the current status.
	res = f.do(http.MethodPut, attemptPath(id, "/answers/q1"), tok, `{"value": false, "seq": 2}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, response.ErrAttemptNotActive, res.errCode())
	assert.JSONEq(t, `{"status":"EVALUATED"}`, string(res.Body.Data))
}

func TestStaleAnswerIsReportedNotFailed(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	res := f.do(http.MethodPut, attemptPath(id, "/answers/q2"), tok, `{"value": "newton", "seq": 5}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = f.do(http.MethodPut, attemptPath(id, "/answers/q2"), tok, `{"value": "joule", "seq": 3}`)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, response.ErrStaleWrite, res.errCode())
	assert.JSONEq(t, `{"question_id":"q2","seq":3,"accepted":false}`, string(res.Body.Data))
}

func TestStartTwiceReturnsExistingAttempt(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	id := f.start("u1")

	res := f.do(http.MethodPost, "/api/v1/exams/"+f.def.ID.String()+"/attempts", f.token("u1", service.RoleStudent), nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, response.ErrAttemptInProgress, res.errCode())
	assert.JSONEq(t, `{"attempt_id":"`+id.String()+`"}`, string(res.Body.Data))
}

func TestStartErrors(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	tok := f.token("u1", service.RoleStudent)

	res := f.do(http.MethodPost, "/api/v1/exams/"+uuid.NewString()+"/attempts", tok, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, response.ErrExamNotFound, res.errCode())

	res = f.do(http.MethodPost, "/api/v1/exams/nope/attempts", tok, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, response.ErrInvalidID, res.errCode())

	res = f.do(http.MethodPost, "/api/v1/exams/"+f.def.ID.String()+"/attempts", f.token("a1", service.RoleAdmin), nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestAnotherStudentCannotTouchAttempt(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	id := f.start("u1")
	other := f.token("u2", service.RoleStudent)

	res := f.do(http.MethodGet, attemptPath(id, ""), other, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, response.ErrNotAttemptOwner, res.errCode())

	res = f.do(http.MethodPost, attemptPath(id, "/submit"), other, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = f.do(http.MethodGet, attemptPath(uuid.New(), ""), other, nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, response.ErrAttemptNotFound, res.errCode())
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{"missing seq", http.MethodPut, "/answers/q1", `{"value": true}`, "seq"},
		{"zero seq", http.MethodPut, "/answers/q1", `{"value": true, "seq": 0}`, "seq"},
		{"missing value", http.MethodPut, "/answers/q1", `{"seq": 1}`, "value"},
		{"negative time", http.MethodPut, "/answers/q1", `{"value": true, "seq": 1, "time_spent_seconds": -1}`, "time_spent_seconds"},
		{"missing index", http.MethodPut, "/position", `{}`, "index"},
		{"negative index", http.MethodPut, "/position", `{"index": -1}`, "index"},
		{"unknown kind", http.MethodPost, "/telemetry", `{"kind": "screenshot"}`, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := f.do(tc.method, attemptPath(id, tc.path), tok, tc.body)
			assert.Equal(t, http.StatusBadRequest, res.Code)
			require.Equal(t, response.ErrValidation, res.errCode())
			assert.Contains(t, res.Body.Error.Fields, tc.field)
		})
	}

	res := f.do(http.MethodGet, attemptPath(id, "/questions?limit=500"), tok, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestEngineErrorsMapToCodes(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	res := f.do(http.MethodPut, attemptPath(id, "/answers/q9"), tok, `{"value": "x", "seq": 1}`)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, response.ErrUnknownQuestion, res.errCode())

	res = f.do(http.MethodPut, attemptPath(id, "/answers/q1"), tok, `{"value": "yes", "seq": 1}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, response.ErrInvalidAnswer, res.errCode())

	res = f.do(http.MethodPut, attemptPath(id, "/position"), tok, `{"index": 2}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, response.ErrIndexOutOfRange, res.errCode())

	// Review is off: the cursor only moves forward.
	res = f.do(http.MethodPut, attemptPath(id, "/position"), tok, `{"index": 1}`)
	require.Equal(t, http.StatusOK, res.Code)
	res = f.do(http.MethodPut, attemptPath(id, "/position"), tok, `{"index": 0}`)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, response.ErrNavigationLocked, res.errCode())

	res = f.do(http.MethodPost, attemptPath(id, "/pause"), tok, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, response.ErrPauseNotAllowed, res.errCode())

	res = f.do(http.MethodGet, attemptPath(id, "/result"), tok, nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, response.ErrAttemptNotActive, res.errCode())
}

func TestResultWithheldFromStudent(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	res := f.do(http.MethodPost, attemptPath(id, "/submit"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var submitted SubmitResponse
	res.decode(t, &submitted)
	assert.Equal(t, model.StatusEvaluated, submitted.Status.Status)
	assert.Nil(t, submitted.Result)

	res = f.do(http.MethodGet, attemptPath(id, "/result"), tok, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, response.ErrResultWithheld, res.errCode())
}

func TestPauseResumeAbandon(t *testing.T) {
	f := newFixture(t, model.ExamFlags{AllowPause: true})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	res := f.do(http.MethodPost, attemptPath(id, "/pause"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	var v service.StatusView
	res.decode(t, &v)
	assert.Equal(t, model.StatusPaused, v.Status)
	require.NotNil(t, v.PausedUntil)
	assert.Equal(t, t0.Add(30*time.Minute), *v.PausedUntil)

	res = f.do(http.MethodPut, attemptPath(id, "/answers/q1"), tok, `{"value": true, "seq": 1}`)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = f.do(http.MethodPost, attemptPath(id, "/resume"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &v)
	assert.Equal(t, model.StatusInProgress, v.Status)

	res = f.do(http.MethodPost, attemptPath(id, "/abandon"), tok, nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &v)
	assert.Equal(t, model.StatusAbandoned, v.Status)
}

func TestDeadlineExceededMapsToConflict(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	tok := f.token("u1", service.RoleStudent)
	id := f.start("u1")

	f.clock.Advance(61 * time.Minute)
	res := f.do(http.MethodPut, attemptPath(id, "/answers/q1"), tok, `{"value": true, "seq": 1}`)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, response.ErrDeadlineExceeded, res.errCode())
}

func TestListMyAttempts(t *testing.T) {
	f := newFixture(t, model.ExamFlags{})
	score, pct, passed := 1.0, 50.0, true
	f.archive.history["u1"] = []model.AttemptSummary{
		{AttemptID: uuid.New(), ExamID: f.def.ID, Status: model.StatusEvaluated,
			Score: &score, Percentage: &pct, Passed: &passed, EndedAt: t0},
	}

	res := f.do(http.MethodGet, "/api/v1/attempts", f.token("u1", service.RoleStudent), nil)
	require.Equal(t, http.StatusOK, res.Code)
	var list []model.AttemptSummary
	res.decode(t, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Physics", list[0].ExamTitle)
	// The exam does not release results to students.
	assert.True(t, list[0].ResultWithheld)
	assert.NotContains(t, string(res.Body.Data), "percentage")

	res = f.do(http.MethodGet, "/api/v1/attempts", f.token("u2", service.RoleStudent), nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[]`, string(res.Body.Data))

	res = f.do(http.MethodGet, "/api/v1/attempts?limit=500", f.token("u1", service.RoleStudent), nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, response.ErrValidation, res.errCode())

	res = f.do(http.MethodGet, "/api/v1/attempts", f.token("a1", service.RoleAdmin), nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}
