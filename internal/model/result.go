package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionOutcome is the graded state of one question. CorrectAnswer and
// Explanation are only filled for exams that allow review.
type QuestionOutcome struct {
	QuestionID       string       `json:"question_id"`
	Answered         bool         `json:"answered"`
	Correct          bool         `json:"correct"`
	MarksEarned      float64      `json:"marks_earned"`
	Selected         *AnswerValue `json:"your_answer,omitempty"`
	TimeSpentSeconds int          `json:"time_spent_seconds"`
	Flagged          bool         `json:"flagged"`
	CorrectAnswer    *AnswerValue `json:"correct_answer,omitempty"`
	Explanation      string       `json:"explanation,omitempty"`
}

// Result is the immutable outcome of grading an attempt.
type Result struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	Score            float64           `json:"score"`
	TotalMarks       float64           `json:"total_marks"`
	Percentage       float64           `json:"percentage"`
	Correct          int               `json:"correct"`
	Incorrect        int               `json:"incorrect"`
	Unanswered       int               `json:"unanswered"`
	Passed           bool              `json:"passed"`
	Breakdown        []QuestionOutcome `json:"breakdown"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	SubmitReason     SubmitReason      `json:"submit_reason,omitempty"`
	GradedAt         time.Time         `json:"graded_at"`
}

// AttemptSummary is one finished attempt in a student's history. Score fields
// are nil when the attempt has no result or the exam withholds it.
type AttemptSummary struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	ExamVersion      int           `json:"exam_version"`
	ExamTitle        string        `json:"exam_title,omitempty"`
	Status           AttemptStatus `json:"status"`
	SubmitReason     SubmitReason  `json:"submit_reason,omitempty"`
	Score            *float64      `json:"score,omitempty"`
	TotalMarks       *float64      `json:"total_marks,omitempty"`
	Percentage       *float64      `json:"percentage,omitempty"`
	Passed           *bool         `json:"passed,omitempty"`
	ResultWithheld   bool          `json:"result_withheld"`
	TimeTakenSeconds int           `json:"time_taken_seconds"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	SubmittedAt      *time.Time    `json:"submitted_at,omitempty"`
	EndedAt          time.Time     `json:"ended_at"`
}

// Withhold clears the score fields.
func (s *AttemptSummary) Withhold() {
	if s.Score == nil {
		return
	}
	s.Score, s.TotalMarks, s.Percentage, s.Passed = nil, nil, nil, nil
	s.ResultWithheld = true
}
