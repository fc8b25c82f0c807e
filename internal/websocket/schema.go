package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionFlag      Action = "flag"
	ActionGoTo      Action = "goto"
	ActionTelemetry Action = "telemetry"
	ActionStatus    Action = "status"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to save a single answer.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id" binding:"required,max=64"`
	Value      json.RawMessage `json:"value" binding:"required"`
	Seq        int64           `json:"seq" binding:"required,min=1"`
	TimeSpent  int             `json:"time_spent_seconds" binding:"min=0,max=86400"`
}

// FlagRequest toggles the review flag of a question.
type FlagRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id" binding:"required,max=64"`
}

// GoToRequest moves the cursor.
type GoToRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"required,min=0"`
}

// TelemetryRequest reports a client-observed event.
type TelemetryRequest struct {
	Action     Action `json:"action"`
	Kind       string `json:"kind" binding:"required,telemetry_kind"`
	Count      int    `json:"count" binding:"min=0,max=10000"`
	DurationMs int64  `json:"duration_ms" binding:"min=0"`
	// Unix milliseconds on the client clock.
	ClientTs int64 `json:"client_ts"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSaved    Event = "saved"
	EventStale    Event = "stale"
	EventFlagged  Event = "flagged"
	EventQuestion Event = "question"
	EventRisk     Event = "risk"
	EventStatus   Event = "status"
	EventGraded   Event = "graded"
	EventPong     Event = "pong"
)

// Envelope wraps every server frame. Data holds the event-specific payload.
type Envelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// SavedResponse acknowledges an answer; Accepted is false for a stale write.
type SavedResponse struct {
	QuestionID string `json:"question_id"`
	Seq        int64  `json:"seq"`
	Accepted   bool   `json:"accepted"`
}

type FlaggedResponse struct {
	QuestionID string `json:"question_id"`
	Flagged    bool   `json:"flagged"`
}
