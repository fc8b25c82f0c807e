package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle states of an attempt.
type AttemptStatus string

const (
	StatusNotStarted AttemptStatus = "NOT_STARTED"
	StatusInProgress AttemptStatus = "IN_PROGRESS"
	StatusPaused     AttemptStatus = "PAUSED"
	StatusSubmitting AttemptStatus = "SUBMITTING"
	StatusSubmitted  AttemptStatus = "SUBMITTED"
	StatusEvaluated  AttemptStatus = "EVALUATED"
	StatusExpired    AttemptStatus = "EXPIRED"
	StatusAbandoned  AttemptStatus = "ABANDONED"
)

// Terminal reports whether no further transition can leave the status.
// SUBMITTED counts as terminal for the lock even though grading may still
// move it to EVALUATED.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusSubmitted, StatusEvaluated, StatusExpired:
		return true
	}
	return false
}

// HoldsLock reports whether an attempt in this status owns the (user, exam) lock.
func (s AttemptStatus) HoldsLock() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusSubmitting:
		return true
	}
	return false
}

// Submittable reports whether submit may start from this status.
func (s AttemptStatus) Submittable() bool {
	return s == StatusInProgress || s == StatusPaused
}

// SubmitReason records who ended the attempt.
type SubmitReason string

const (
	SubmitReasonUser    SubmitReason = "user"
	SubmitReasonTimeout SubmitReason = "timeout"
	SubmitReasonForced  SubmitReason = "forced"
)

// Valid reports whether r is a known reason.
func (r SubmitReason) Valid() bool {
	switch r {
	case SubmitReasonUser, SubmitReasonTimeout, SubmitReasonForced:
		return true
	}
	return false
}

// Answer is one accepted write for a question.
type Answer struct {
	QuestionID string      `json:"question_id"`
	Value      AnswerValue `json:"value"`
	Seq        int64       `json:"seq"`
	TimeSpent  int         `json:"time_spent_seconds"`
	ReceivedAt time.Time   `json:"received_at"`
}

// Attempt is one user's timed session against one exam version.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	ExamID      uuid.UUID     `json:"exam_id"`
	ExamVersion int           `json:"exam_version"`
	UserID      string        `json:"user_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	Deadline    time.Time     `json:"deadline"`

	// Set while PAUSED.
	PausedAt         *time.Time    `json:"paused_at,omitempty"`
	RemainingAtPause time.Duration `json:"remaining_at_pause,omitempty"`

	QuestionOrder []string            `json:"question_order"`
	OptionOrder   map[string][]string `json:"option_order,omitempty"`

	SubmitReason      SubmitReason  `json:"submit_reason,omitempty"`
	SubmittedAt       *time.Time    `json:"submitted_at,omitempty"`
	RemainingAtSubmit time.Duration `json:"remaining_at_submit,omitempty"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
	GradingError      string        `json:"grading_error,omitempty"`

	// Submit lease: the engine instance driving the attempt from SUBMITTING
	// to a graded state, and when it last claimed it.
	SubmitOwner   string     `json:"submit_owner,omitempty"`
	SubmitLeaseAt *time.Time `json:"submit_lease_at,omitempty"`

	// Hydrated from their own keys; never stored in the metadata blob.
	CurrentIndex int               `json:"-"`
	Rev          int64             `json:"-"`
	Answers      map[string]Answer `json:"answers,omitempty"`
	Flagged      []string          `json:"flagged,omitempty"`
	Risk         *RiskProfile      `json:"risk,omitempty"`
	Result       *Result           `json:"result,omitempty"`
}

// LeaseExpired reports whether the submit lease is older than ttl at now.
// An attempt in SUBMITTING without a lease counts as expired.
func (a *Attempt) LeaseExpired(now time.Time, ttl time.Duration) bool {
	if a.SubmitLeaseAt == nil {
		return true
	}
	return !now.Before(a.SubmitLeaseAt.Add(ttl))
}

// IsFlagged reports whether questionID is flagged for review.
func (a *Attempt) IsFlagged(questionID string) bool {
	for _, id := range a.Flagged {
		if id == questionID {
			return true
		}
	}
	return false
}

// Remaining returns the time left at now. A paused attempt reports the value
// frozen at pause time; an attempt that is no longer running reports zero.
func (a *Attempt) Remaining(now time.Time) time.Duration {
	switch a.Status {
	case StatusPaused:
		return max(a.RemainingAtPause, 0)
	case StatusNotStarted, StatusInProgress, StatusAbandoned:
		return max(a.Deadline.Sub(now), 0)
	}
	return 0
}

// Position returns the index of questionID in the attempt order, or -1.
func (a *Attempt) Position(questionID string) int {
	for i, id := range a.QuestionOrder {
		if id == questionID {
			return i
		}
	}
	return -1
}
