package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/response"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

// errorMapping pairs an engine sentinel with its transport status and code.
type errorMapping struct {
	target error
	status int
	code   response.ErrCode
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrNotAttemptOwner, http.StatusForbidden, response.ErrNotAttemptOwner},
	{service.ErrAlreadyInProgress, http.StatusConflict, response.ErrAttemptInProgress},
	{service.ErrDeadlineExceeded, http.StatusConflict, response.ErrDeadlineExceeded},
	{service.ErrAttemptNotActive, http.StatusConflict, response.ErrAttemptNotActive},
	{service.ErrStaleWrite, http.StatusOK, response.ErrStaleWrite},
	{service.ErrIndexOutOfRange, http.StatusBadRequest, response.ErrIndexOutOfRange},
	{service.ErrUnknownQuestion, http.StatusNotFound, response.ErrUnknownQuestion},
	{service.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{service.ErrInvalidTelemetry, http.StatusBadRequest, response.ErrInvalidTelemetry},
	{service.ErrPauseNotAllowed, http.StatusForbidden, response.ErrPauseNotAllowed},
	{service.ErrNavigationLocked, http.StatusForbidden, response.ErrNavigationLocked},
	{service.ErrSubmitPending, http.StatusConflict, response.ErrSubmitPending},
	{service.ErrResultNotReady, http.StatusConflict, response.ErrResultNotReady},
	{service.ErrResultWithheld, http.StatusForbidden, response.ErrResultWithheld},
	{service.ErrGradingFailed, http.StatusInternalServerError, response.ErrGradingFailed},
}

// classify maps an engine error to a status and code. Unknown errors are
// internal.
func classify(err error) (int, response.ErrCode) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the envelope for an engine error. Internal errors are logged;
// the client only sees the code.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}

	var active *service.ActiveAttemptError
	if errors.As(err, &active) {
		response.Status(c, status, code, gin.H{"attempt_id": active.AttemptID})
		return
	}
	var te *service.TransitionError
	if errors.As(err, &te) {
		response.Status(c, status, code, gin.H{"status": te.From})
		return
	}
	response.Fail(c, status, code)
}
