package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidDefinition is returned when an exam definition breaks a structural rule.
var ErrInvalidDefinition = errors.New("invalid exam definition")

// ExamFlags toggles per-exam behaviour of the attempt engine.
type ExamFlags struct {
	ShuffleQuestions      bool `json:"shuffle_questions"`
	ShuffleOptions        bool `json:"shuffle_options"`
	AllowReview           bool `json:"allow_review"`
	NegativeMarking       bool `json:"negative_marking"`
	AllowPause            bool `json:"allow_pause"`
	AutoSubmitOnCritical  bool `json:"auto_submit_on_critical"`
	ShowResultImmediately bool `json:"show_result_immediately"`
}

// ExamDefinition is one immutable version of an exam as served by the provider.
// An attempt binds to exactly one version for its whole lifetime.
type ExamDefinition struct {
	ID               uuid.UUID  `json:"id"`
	Version          int        `json:"version"`
	Title            string     `json:"title"`
	DurationSeconds  int        `json:"duration_seconds"`
	PassingThreshold float64    `json:"passing_threshold"`
	Flags            ExamFlags  `json:"flags"`
	Questions        []Question `json:"questions"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Duration returns the time allowed for one attempt.
func (d *ExamDefinition) Duration() time.Duration {
	return time.Duration(d.DurationSeconds) * time.Second
}

// Question looks up a question by ID.
func (d *ExamDefinition) Question(id string) (*Question, bool) {
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return &d.Questions[i], true
		}
	}
	return nil, false
}

// TotalMarks sums the marks of every question.
func (d *ExamDefinition) TotalMarks() float64 {
	var total float64
	for _, q := range d.Questions {
		total += q.Marks
	}
	return total
}

// Validate checks the structural invariants of the definition.
func (d *ExamDefinition) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidDefinition)
	}
	if d.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidDefinition)
	}
	if d.PassingThreshold < 0 || d.PassingThreshold > 100 {
		return fmt.Errorf("%w: passing threshold %.2f out of range", ErrInvalidDefinition, d.PassingThreshold)
	}
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidDefinition)
	}

	seen := make(map[string]struct{}, len(d.Questions))
	for i := range d.Questions {
		q := &d.Questions[i]
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidDefinition, q.ID)
		}
		seen[q.ID] = struct{}{}
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}
