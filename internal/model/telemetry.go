package model

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryKind is the category of a client-observed event.
type TelemetryKind string

const (
	TelemetryTabSwitch    TelemetryKind = "tab-switch"
	TelemetryWindowBlur   TelemetryKind = "window-blur"
	TelemetryCopyAttempt  TelemetryKind = "copy-attempt"
	TelemetryPasteAttempt TelemetryKind = "paste-attempt"
	TelemetryRightClick   TelemetryKind = "right-click"
	TelemetryTimeAnomaly  TelemetryKind = "time-anomaly"
)

// TelemetryKinds lists every known kind in a stable order.
var TelemetryKinds = []TelemetryKind{
	TelemetryTabSwitch,
	TelemetryWindowBlur,
	TelemetryCopyAttempt,
	TelemetryPasteAttempt,
	TelemetryRightClick,
	TelemetryTimeAnomaly,
}

// Valid reports whether k is a known kind.
func (k TelemetryKind) Valid() bool {
	for _, known := range TelemetryKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TelemetryPayload carries the magnitude of an event.
type TelemetryPayload struct {
	Count      int   `json:"count,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// TelemetryEvent is one untrusted client observation.
type TelemetryEvent struct {
	AttemptID       uuid.UUID        `json:"attempt_id"`
	Kind            TelemetryKind    `json:"kind"`
	Payload         TelemetryPayload `json:"payload"`
	ClientTimestamp time.Time        `json:"client_timestamp"`
	ReceivedAt      time.Time        `json:"received_at"`
}

// RiskLevel buckets a cumulative risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskContribution is the weight one event added to the score.
type RiskContribution struct {
	Event  TelemetryEvent `json:"event"`
	Weight float64        `json:"weight"`
}

// RiskProfile is the advisory summary of suspicious activity for an attempt.
type RiskProfile struct {
	AttemptID     uuid.UUID          `json:"attempt_id"`
	Score         float64            `json:"score"`
	Level         RiskLevel          `json:"level"`
	Contributions []RiskContribution `json:"contributions"`
}

// Brief copies the score and level with at most the one given contribution.
// Events on the queues carry it instead of the full history.
func (p *RiskProfile) Brief(latest *RiskContribution) *RiskProfile {
	if p == nil {
		return nil
	}
	b := &RiskProfile{AttemptID: p.AttemptID, Score: p.Score, Level: p.Level}
	if latest != nil {
		b.Contributions = []RiskContribution{*latest}
	}
	return b
}
