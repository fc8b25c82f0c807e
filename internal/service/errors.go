package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/grading"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

// Domain Errors
var (
	ErrAlreadyInProgress = errors.New("an attempt for this exam is already in progress")
	ErrAttemptNotActive  = errors.New("attempt is not active")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrStaleWrite        = errors.New("stale write: a newer answer is already stored")
	ErrIndexOutOfRange   = errors.New("question index out of range")
	ErrExamNotFound      = errors.New("exam not found or not published")
	ErrDeadlineExceeded  = errors.New("attempt deadline has passed")
	ErrUnknownQuestion   = errors.New("question is not part of this attempt")
	ErrPauseNotAllowed   = errors.New("this exam does not allow pausing")
	ErrNavigationLocked  = errors.New("this exam does not allow returning to earlier questions")
	ErrNotAttemptOwner   = errors.New("attempt belongs to another user")
	ErrInvalidTelemetry  = errors.New("invalid telemetry event")
	ErrSubmitPending     = errors.New("submission is still being processed")
	ErrResultNotReady    = errors.New("result is not available yet")
	ErrResultWithheld    = errors.New("result is not released to students for this exam")
	ErrNotYetDue         = errors.New("attempt deadline has not passed yet")

	ErrInvalidAnswer = model.ErrInvalidAnswer
	ErrGradingFailed = grading.ErrGradingFailed
)

// TransitionError reports an operation attempted from a status that does not allow it.
type TransitionError struct {
	Op   string
	From model.AttemptStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: attempt is %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrAttemptNotActive }

// ActiveAttemptError names the attempt that already holds the (user, exam) lock.
type ActiveAttemptError struct {
	AttemptID uuid.UUID
}

func (e *ActiveAttemptError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyInProgress, e.AttemptID)
}

func (e *ActiveAttemptError) Unwrap() error { return ErrAlreadyInProgress }
