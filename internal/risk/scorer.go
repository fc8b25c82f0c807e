// Package risk turns a telemetry history into an advisory risk profile.
package risk

import (
	"cmp"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

// Scorer applies a Policy. It holds no state and is safe for concurrent use.
type Scorer struct {
	policy Policy
}

// NewScorer creates a Scorer for policy.
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Policy returns the policy in effect.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Weight returns the contribution of a single event.
func (s *Scorer) Weight(e model.TelemetryEvent) float64 {
	w := s.policy.Weights
	count := float64(max(e.Payload.Count, 1))

	switch e.Kind {
	case model.TelemetryTabSwitch:
		return w.TabSwitch * count
	case model.TelemetryWindowBlur:
		unitMs := float64(w.WindowBlurUnit.Milliseconds())
		units := math.Ceil(float64(e.Payload.DurationMs) / unitMs)
		return w.WindowBlurPerUnit * max(units, 1)
	case model.TelemetryCopyAttempt:
		return w.CopyAttempt * count
	case model.TelemetryPasteAttempt:
		return w.PasteAttempt * count
	case model.TelemetryRightClick:
		return w.RightClick * count
	case model.TelemetryTimeAnomaly:
		return w.TimeAnomaly * count
	}
	return 0
}

// Level buckets a cumulative score.
func (s *Scorer) Level(score float64) model.RiskLevel {
	t := s.policy.Thresholds
	switch {
	case score >= t.Critical:
		return model.RiskCritical
	case score >= t.High:
		return model.RiskHigh
	case score >= t.Medium:
		return model.RiskMedium
	}
	return model.RiskLow
}

// Score builds the profile for an attempt's full event history. Events are put
// in a canonical order before summing, so any permutation of the same
// multiset yields an identical profile.
func (s *Scorer) Score(attemptID uuid.UUID, events []model.TelemetryEvent) model.RiskProfile {
	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, compareEvents)

	profile := model.RiskProfile{
		AttemptID:     attemptID,
		Contributions: make([]model.RiskContribution, 0, len(ordered)),
	}
	for _, e := range ordered {
		w := s.Weight(e)
		profile.Score += w
		profile.Contributions = append(profile.Contributions, model.RiskContribution{Event: e, Weight: w})
	}
	profile.Level = s.Level(profile.Score)
	return profile
}

func compareEvents(a, b model.TelemetryEvent) int {
	return cmp.Or(
		a.ClientTimestamp.Compare(b.ClientTimestamp),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Payload.Count, b.Payload.Count),
		cmp.Compare(a.Payload.DurationMs, b.Payload.DurationMs),
		a.ReceivedAt.Compare(b.ReceivedAt),
	)
}
