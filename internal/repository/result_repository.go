package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
)

// ResultRepository reads archived attempt outcomes from PostgreSQL once the
// live Redis state has expired.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// ArchivedAttempt is the durable summary written by the result worker.
type ArchivedAttempt struct {
	AttemptID    uuid.UUID
	ExamID       uuid.UUID
	UserID       string
	Status       model.AttemptStatus
	GradingError string
	Result       *model.Result
}

// GetByAttemptID returns the archived outcome of one attempt.
func (r *ResultRepository) GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*ArchivedAttempt, error) {
	var (
		a         ArchivedAttempt
		res       model.Result
		gradedAt  *time.Time
		gradeErr  *string
		hasResult bool
	)
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, exam_id, user_id, status, submit_reason,
		        score IS NOT NULL, COALESCE(score, 0), COALESCE(total_marks, 0),
		        COALESCE(percentage, 0), COALESCE(correct, 0), COALESCE(incorrect, 0),
		        COALESCE(unanswered, 0), COALESCE(passed, false),
		        COALESCE(breakdown, '[]'::jsonb), time_taken_seconds, graded_at, grading_error
		 FROM attempt_results WHERE attempt_id = $1`, attemptID,
	).Scan(&a.AttemptID, &a.ExamID, &a.UserID, &a.Status, &res.SubmitReason,
		&hasResult, &res.Score, &res.TotalMarks,
		&res.Percentage, &res.Correct, &res.Incorrect, &res.Unanswered,
		&res.Passed, &res.Breakdown,
		&res.TimeTakenSeconds, &gradedAt, &gradeErr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get archived attempt %s: %w", attemptID, err)
	}

	if gradeErr != nil {
		a.GradingError = *gradeErr
	}
	if hasResult {
		res.AttemptID = a.AttemptID
		if gradedAt != nil {
			res.GradedAt = *gradedAt
		}
		a.Result = &res
	}
	return &a, nil
}

// ListByUser returns the user's archived attempts, most recently ended first.
func (r *ResultRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, exam_id, exam_version, status, submit_reason,
		        score, total_marks, percentage, passed, time_taken_seconds,
		        started_at, submitted_at, ended_at
		 FROM attempt_results
		 WHERE user_id = $1
		 ORDER BY ended_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts of %s: %w", userID, err)
	}
	defer rows.Close()

	out := make([]model.AttemptSummary, 0, limit)
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.AttemptID, &s.ExamID, &s.ExamVersion, &s.Status, &s.SubmitReason,
			&s.Score, &s.TotalMarks, &s.Percentage, &s.Passed, &s.TimeTakenSeconds,
			&s.StartedAt, &s.SubmittedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scan attempt summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StatusCounts returns the number of archived attempts per final status for an exam.
func (r *ResultRepository) StatusCounts(ctx context.Context, examID uuid.UUID) (map[model.AttemptStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*)
		 FROM attempt_results
		 WHERE exam_id = $1
		 GROUP BY status`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.AttemptStatus]int64)
	for rows.Next() {
		var status model.AttemptStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
