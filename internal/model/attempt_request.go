package model

import (
	"encoding/json"
	"time"
)

// AnswerRequest is the body of PUT /attempts/:attempt_id/answers/:question_id.
// Value is decoded against the question type by the engine.
type AnswerRequest struct {
	Value     json.RawMessage `json:"value" binding:"required"`
	Seq       int64           `json:"seq" binding:"required,min=1"`
	TimeSpent int             `json:"time_spent_seconds" binding:"min=0,max=86400"`
}

// PositionRequest moves the attempt cursor.
type PositionRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// TelemetryRequest reports one client-observed event.
type TelemetryRequest struct {
	Kind            string     `json:"kind" binding:"required,telemetry_kind"`
	Count           int        `json:"count" binding:"min=0,max=10000"`
	DurationMs      int64      `json:"duration_ms" binding:"min=0"`
	ClientTimestamp *time.Time `json:"client_timestamp"`
}

// Event converts the request into a TelemetryEvent. The engine stamps the
// attempt and the received time.
func (r *TelemetryRequest) Event() TelemetryEvent {
	ev := TelemetryEvent{
		Kind:    TelemetryKind(r.Kind),
		Payload: TelemetryPayload{Count: r.Count, DurationMs: r.DurationMs},
	}
	if r.ClientTimestamp != nil {
		ev.ClientTimestamp = r.ClientTimestamp.UTC()
	}
	return ev
}

// ForceSubmitRequest is the optional body of the admin submit endpoint.
// An empty reason means forced.
type ForceSubmitRequest struct {
	Reason string `json:"reason" binding:"omitempty,submit_reason"`
}

// HistoryQuery limits the caller's attempt history.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"min=0,max=100"`
}

// QuestionsQuery pages through the attempt's questions.
type QuestionsQuery struct {
	Offset int `form:"offset" binding:"min=0"`
	Limit  int `form:"limit" binding:"min=0,max=100"`
}
