package handler

import (
	"context"
	"errors"
	"io"
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

// StatusCounter reports archived attempt counts per final status for an exam.
type StatusCounter interface {
	StatusCounts(ctx context.Context, examID uuid.UUID) (map[model.AttemptStatus]int64, error)
}

// AdminHandler handles proctor endpoints: force submit, attempt inspection
// and exam cache management.
type AdminHandler struct {
	attempts *service.AttemptService
	exams    *service.ExamService
	counts   StatusCounter
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler. counts may be nil.
func NewAdminHandler(attempts *service.AttemptService, exams *service.ExamService, counts StatusCounter, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		attempts: attempts,
		exams:    exams,
		counts:   counts,
		log:      log.With().Str("component", "admin_handler").Logger(),
	}
}

// AttemptDetail is the proctor view of one attempt.
type AttemptDetail struct {
	Status *service.StatusView `json:"status,omitempty"`
	Result *model.Result       `json:"result,omitempty"`
}

// ExamSummary is the proctor view of one exam.
type ExamSummary struct {
	ExamID         uuid.UUID                     `json:"exam_id"`
	Version        int                           `json:"version"`
	Title          string                        `json:"title"`
	TotalQuestions int                           `json:"total_questions"`
	Archived       map[model.AttemptStatus]int64 `json:"archived"`
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// ForceSubmit godoc
// POST /api/v1/admin/attempts/:attempt_id/submit
// The body is optional; the reason defaults to forced.
func (h *AdminHandler) ForceSubmit(c *gin.Context) {
	attemptID, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ForceSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}
	reason := model.SubmitReasonForced
	if req.Reason != "" {
		reason = model.SubmitReason(req.Reason)
	}

	res, err := h.attempts.Submit(c.Request.Context(), attemptID, reason)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	admin := ""
	if claims := middleware.GetClaims(c); claims != nil {
		admin = claims.UserID()
	}
	h.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("admin_id", admin).
		Str("reason", string(reason)).
		Msg("Attempt force-submitted")

	response.Success(c, http.StatusOK, res)
}

// GetAttempt godoc
// GET /api/v1/admin/attempts/:attempt_id
// Live status when the attempt is still in Redis, plus the result regardless
// of the exam's visibility setting.
func (h *AdminHandler) GetAttempt(c *gin.Context) {
	attemptID, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var out AttemptDetail
	v, err := h.attempts.Status(ctx, attemptID)
	switch {
	case err == nil:
		out.Status = v
	case !errors.Is(err, service.ErrAttemptNotFound):
		fail(c, h.log, err)
		return
	}

	res, err := h.attempts.Result(ctx, attemptID, true)
	switch {
	case err == nil:
		out.Result = res
	case errors.Is(err, service.ErrAttemptNotFound) && out.Status == nil:
		fail(c, h.log, err)
		return
	case errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrAttemptNotActive),
		errors.Is(err, service.ErrResultNotReady),
		errors.Is(err, service.ErrGradingFailed):
	default:
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// RefreshExamCache godoc
// POST /api/v1/admin/exams/:exam_id/refresh-cache
// Attempts already running keep the version they started with.
func (h *AdminHandler) RefreshExamCache(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	def, err := h.exams.RefreshCache(c.Request.Context(), examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam_id": def.ID,
		"version": def.Version,
		"cached":  true,
	})
}

// GetExamSummary godoc
// GET /api/v1/admin/exams/:exam_id/summary
func (h *AdminHandler) GetExamSummary(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	def, err := h.exams.GetExamDefinition(ctx, examID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	summary := ExamSummary{
		ExamID:         def.ID,
		Version:        def.Version,
		Title:          def.Title,
		TotalQuestions: len(def.Questions),
		Archived:       map[model.AttemptStatus]int64{},
	}
	if h.counts != nil {
		counts, err := h.counts.StatusCounts(ctx, examID)
		if err != nil {
			h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to count archived attempts")
		} else {
			summary.Archived = counts
		}
	}

	response.Success(c, http.StatusOK, summary)
}
