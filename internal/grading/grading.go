// Package grading scores a frozen answer set against an exam definition.
package grading

import (
	"errors"
	"fmt"
	"math"

	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

// ErrGradingFailed marks a definition that cannot be graded. It is never
// turned into a zero score.
var ErrGradingFailed = errors.New("grading failed")

// Grade compares answers with the definition's key. It is pure and
// deterministic; the caller fills in attempt-specific fields of the Result.
//
// Unanswered questions count as incorrect and are never penalised. When
// negative marking is on, each answered-but-wrong question subtracts its
// negative marks. The score is floored at zero. Pass is decided on the
// unrounded percentage. The key and explanation are copied into the
// breakdown only when the exam allows review.
func Grade(def *model.ExamDefinition, answers map[string]model.Answer) (*model.Result, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: no definition", ErrGradingFailed)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGradingFailed, err)
	}
	total := def.TotalMarks()
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total marks %v", ErrGradingFailed, total)
	}

	res := &model.Result{
		TotalMarks: total,
		Breakdown:  make([]model.QuestionOutcome, 0, len(def.Questions)),
	}

	var earned, penalty float64
	for _, q := range def.Questions {
		outcome := model.QuestionOutcome{QuestionID: q.ID}
		if def.Flags.AllowReview {
			key := q.Key()
			outcome.CorrectAnswer = &key
			outcome.Explanation = q.Explanation
		}

		ans, answered := answers[q.ID]
		if answered {
			selected := ans.Value
			outcome.Selected = &selected
			outcome.TimeSpentSeconds = ans.TimeSpent
		}
		switch {
		case !answered:
			res.Unanswered++
		case q.Body.Matches(ans.Value):
			outcome.Answered = true
			outcome.Correct = true
			outcome.MarksEarned = q.Marks
			earned += q.Marks
			res.Correct++
		default:
			outcome.Answered = true
			res.Incorrect++
			if def.Flags.NegativeMarking && q.NegativeMarks > 0 {
				outcome.MarksEarned = -q.NegativeMarks
				penalty += q.NegativeMarks
			}
		}
		res.Breakdown = append(res.Breakdown, outcome)
	}

	res.Score = max(earned-penalty, 0)
	pct := res.Score / total * 100
	res.Percentage = math.Round(pct*100) / 100
	res.Passed = pct >= def.PassingThreshold
	return res, nil
}
