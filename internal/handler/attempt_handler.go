package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/middleware"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
	"github.com/stemsi/exstem-attempt-engine/internal/validator"
)

// AttemptHandler handles student-facing attempt endpoints. Every route with an
// :attempt_id runs behind RequireAttemptOwner.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// SubmitResponse is returned after a successful submit. Result is omitted
// when the exam withholds results from students.
type SubmitResponse struct {
	Status *service.StatusView `json:"status"`
	Result *model.Result       `json:"result,omitempty"`
}

func attemptID(c *gin.Context) uuid.UUID {
	id, _ := middleware.GetAttemptID(c)
	return id
}

// StartAttempt godoc
// POST /api/v1/exams/:exam_id/attempts
// Creates the caller's attempt. A second start while one is live is rejected.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.attempts.Start(c.Request.Context(), examID, claims.UserID())
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, res)
}

// ListMine godoc
// GET /api/v1/attempts?limit=
// Lists the caller's finished attempts, newest first.
func (h *AttemptHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	list, err := h.attempts.MyAttempts(c.Request.Context(), claims.UserID(), q.Limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

// GetStatus godoc
// GET /api/v1/attempts/:attempt_id
func (h *AttemptHandler) GetStatus(c *gin.Context) {
	v, err := h.attempts.Status(c.Request.Context(), attemptID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// GetQuestions godoc
// GET /api/v1/attempts/:attempt_id/questions?offset=&limit=
// Returns one batch of questions in the attempt's shuffled order.
func (h *AttemptHandler) GetQuestions(c *gin.Context) {
	var q model.QuestionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	page, err := h.attempts.Questions(c.Request.Context(), attemptID(c), q.Offset, q.Limit)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// SaveAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers/:question_id
// A stale sequence number is not an error for the client: the newer answer
// is already stored, so the call reports accepted=false.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questionID := c.Param("question_id")
	receipt, err := h.attempts.RecordAnswer(c.Request.Context(), attemptID(c), questionID, req.Value, req.Seq, req.TimeSpent)
	if errors.Is(err, service.ErrStaleWrite) {
		response.Status(c, http.StatusOK, response.ErrStaleWrite, gin.H{
			"question_id": questionID,
			"seq":         req.Seq,
			"accepted":    false,
		})
		return
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": receipt.QuestionID,
		"seq":         receipt.Seq,
		"received_at": receipt.ReceivedAt,
		"accepted":    true,
	})
}

// ToggleFlag godoc
// POST /api/v1/attempts/:attempt_id/flags/:question_id
func (h *AttemptHandler) ToggleFlag(c *gin.Context) {
	questionID := c.Param("question_id")
	flagged, err := h.attempts.ToggleFlag(c.Request.Context(), attemptID(c), questionID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "flagged": flagged})
}

// GoTo godoc
// PUT /api/v1/attempts/:attempt_id/position
func (h *AttemptHandler) GoTo(c *gin.Context) {
	var req model.PositionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.attempts.GoTo(c.Request.Context(), attemptID(c), *req.Index)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, q)
}

// RecordTelemetry godoc
// POST /api/v1/attempts/:attempt_id/telemetry
// The risk profile is advisory and not returned to the student.
func (h *AttemptHandler) RecordTelemetry(c *gin.Context) {
	var req model.TelemetryRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if _, err := h.attempts.RecordTelemetry(c.Request.Context(), attemptID(c), req.Event()); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"received": true})
}

// Pause godoc
// POST /api/v1/attempts/:attempt_id/pause
func (h *AttemptHandler) Pause(c *gin.Context) {
	v, err := h.attempts.Pause(c.Request.Context(), attemptID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// Resume godoc
// POST /api/v1/attempts/:attempt_id/resume
func (h *AttemptHandler) Resume(c *gin.Context) {
	v, err := h.attempts.Resume(c.Request.Context(), attemptID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// Abandon godoc
// POST /api/v1/attempts/:attempt_id/abandon
func (h *AttemptHandler) Abandon(c *gin.Context) {
	v, err := h.attempts.Abandon(c.Request.Context(), attemptID(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, v)
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Idempotent: submitting again returns the same outcome.
func (h *AttemptHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()
	id := attemptID(c)

	if _, err := h.attempts.Submit(ctx, id, model.SubmitReasonUser); err != nil {
		fail(c, h.log, err)
		return
	}

	v, err := h.attempts.Status(ctx, id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	out := SubmitResponse{Status: v}
	if res, err := h.attempts.Result(ctx, id, false); err == nil {
		out.Result = res
	}
	response.Success(c, http.StatusOK, out)
}

// GetResult godoc
// GET /api/v1/attempts/:attempt_id/result
func (h *AttemptHandler) GetResult(c *gin.Context) {
	res, err := h.attempts.Result(c.Request.Context(), attemptID(c), false)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
