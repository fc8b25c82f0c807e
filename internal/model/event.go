package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a state change emitted by the attempt engine.
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAnswerRecorded   EventType = "answer.recorded"
	EventRiskUpdated      EventType = "risk.updated"
	EventAttemptPaused    EventType = "attempt.paused"
	EventAttemptResumed   EventType = "attempt.resumed"
	EventAttemptAbandoned EventType = "attempt.abandoned"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptEvaluated EventType = "attempt.evaluated"
	EventGradingFailed    EventType = "attempt.grading_failed"
	EventAttemptExpired   EventType = "attempt.expired"
)

// Event is one engine notification for persistence and monitoring.
// Only the fields relevant to Type are set.
type Event struct {
	Type      EventType     `json:"type"`
	AttemptID uuid.UUID     `json:"attempt_id"`
	ExamID    uuid.UUID     `json:"exam_id"`
	UserID    string        `json:"user_id"`
	Status    AttemptStatus `json:"status"`
	At        time.Time     `json:"at"`

	ExamVersion   int             `json:"exam_version,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	QuestionOrder []string        `json:"question_order,omitempty"`
	Answer        *Answer         `json:"answer,omitempty"`
	Telemetry     *TelemetryEvent `json:"telemetry,omitempty"`
	Risk          *RiskProfile    `json:"risk,omitempty"`
	Reason        SubmitReason    `json:"reason,omitempty"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	Result        *Result         `json:"result,omitempty"`
	GradingError  string          `json:"grading_error,omitempty"`
}

// MonitorEvent is the compact form of an Event pushed to live monitors.
type MonitorEvent struct {
	Type       EventType     `json:"type"`
	AttemptID  uuid.UUID     `json:"attempt_id"`
	UserID     string        `json:"user_id"`
	Status     AttemptStatus `json:"status"`
	At         time.Time     `json:"at"`
	QuestionID string        `json:"question_id,omitempty"`
	RiskScore  *float64      `json:"risk_score,omitempty"`
	RiskLevel  RiskLevel     `json:"risk_level,omitempty"`
	Reason     SubmitReason  `json:"reason,omitempty"`
	Percentage *float64      `json:"percentage,omitempty"`
}

// Monitor strips an Event down to what a live dashboard needs.
func (e *Event) Monitor() MonitorEvent {
	m := MonitorEvent{
		Type:      e.Type,
		AttemptID: e.AttemptID,
		UserID:    e.UserID,
		Status:    e.Status,
		At:        e.At,
		Reason:    e.Reason,
	}
	if e.Answer != nil {
		m.QuestionID = e.Answer.QuestionID
	}
	if e.Risk != nil {
		score := e.Risk.Score
		m.RiskScore = &score
		m.RiskLevel = e.Risk.Level
	}
	if e.Result != nil {
		pct := e.Result.Percentage
		m.Percentage = &pct
	}
	return m
}
