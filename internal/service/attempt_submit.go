package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt-engine/internal/grading"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
)

const submitPollInterval = 100 * time.Millisecond

// Submit ends the attempt and grades it. Repeated or concurrent calls return
// the same result; a caller that loses the race waits for the winner. A
// submission whose driver stopped before grading is taken over once its
// lease is older than the submit wait.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.Result, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("unknown submit reason %q", reason)
	}

	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	// Wall time bounds the wait for another process, independent of the
	// engine clock.
	waitUntil := time.Now().Add(s.submitWait)
	for {
		a, err := s.load(ctx, attemptID)
		if err != nil {
			return nil, err
		}

		var res *model.Result
		switch {
		case a.Status == model.StatusEvaluated:
			if a.Result == nil {
				return nil, fmt.Errorf("attempt %s evaluated without a stored result", attemptID)
			}
			return a.Result, nil

		case a.Status == model.StatusSubmitted, a.Status == model.StatusSubmitting:
			res, err = s.recoverSubmit(ctx, a, reason)

		case a.Status.Submittable():
			res, err = s.submit(ctx, a, reason)

		default:
			return nil, &TransitionError{Op: "submit", From: a.Status}
		}
		// Another process holds the submission or won a transition; wait for it.
		if !errors.Is(err, ErrSubmitPending) && !errors.Is(err, repository.ErrStatusConflict) {
			return res, err
		}

		if !time.Now().Before(waitUntil) {
			return nil, ErrSubmitPending
		}
		timer := time.NewTimer(submitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Recover finishes a submission whose lease has lapsed without waiting for a
// live driver. It returns ErrSubmitPending while the lease is held.
func (s *AttemptService) Recover(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.StatusEvaluated:
		if a.Result == nil {
			return nil, fmt.Errorf("attempt %s evaluated without a stored result", attemptID)
		}
		return a.Result, nil
	case model.StatusSubmitted, model.StatusSubmitting:
	default:
		return nil, &TransitionError{Op: "recover", From: a.Status}
	}

	res, err := s.recoverSubmit(ctx, a, model.SubmitReasonTimeout)
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, ErrSubmitPending
	}
	return res, err
}

func (s *AttemptService) submit(ctx context.Context, a *model.Attempt, reason model.SubmitReason) (*model.Result, error) {
	now := s.clock.Now()
	if reason == model.SubmitReasonUser && a.Status == model.StatusInProgress && !now.Before(a.Deadline) {
		reason = model.SubmitReasonTimeout
	}

	a.RemainingAtSubmit = a.Remaining(now)
	a.SubmitReason = reason
	a.SubmittedAt = &now
	a.PausedAt = nil
	a.RemainingAtPause = 0
	a.SubmitOwner = s.instance
	a.SubmitLeaseAt = &now
	if _, err := s.store.Transition(ctx, a, model.StatusSubmitting, a.Status); err != nil {
		return nil, claimErr("submit", err)
	}
	s.releaseLock(ctx, a)
	s.armLease(ctx, a.ID, now)
	return s.finish(ctx, a.ID)
}

// recoverSubmit claims a lapsed submit lease and drives the attempt to a
// graded state. The answer set is frozen, so grading again is safe.
func (s *AttemptService) recoverSubmit(ctx context.Context, a *model.Attempt, reason model.SubmitReason) (*model.Result, error) {
	if a.Status == model.StatusSubmitted && a.GradingError != "" {
		return nil, fmt.Errorf("%w: %s", ErrGradingFailed, a.GradingError)
	}
	now := s.clock.Now()
	if !a.LeaseExpired(now, s.submitWait) {
		return nil, ErrSubmitPending
	}

	previous := a.SubmitOwner
	if a.SubmitReason == "" {
		a.SubmitReason = reason
	}
	if a.SubmittedAt == nil {
		a.SubmittedAt = &now
		a.RemainingAtSubmit = max(a.Deadline.Sub(now), 0)
	}
	a.SubmitOwner = s.instance
	a.SubmitLeaseAt = &now
	if _, err := s.store.Transition(ctx, a, a.Status, a.Status); err != nil {
		return nil, claimErr("submit", err)
	}
	s.releaseLock(ctx, a)
	s.armLease(ctx, a.ID, now)

	s.log.Warn().
		Str("attempt_id", a.ID.String()).
		Str("status", string(a.Status)).
		Str("previous_owner", previous).
		Msg("Took over stalled submission")
	return s.finish(ctx, a.ID)
}

// finish moves an attempt whose submit lease this process holds from
// SUBMITTING through SUBMITTED to EVALUATED.
func (s *AttemptService) finish(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	// Answers are frozen once SUBMITTING is visible; reload for the snapshot.
	snap, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	switch snap.Status {
	case model.StatusSubmitting:
		if _, err := s.store.Transition(ctx, snap, model.StatusSubmitted, model.StatusSubmitting); err != nil {
			return nil, claimErr("submit", err)
		}

		s.log.Info().
			Str("attempt_id", snap.ID.String()).
			Str("exam_id", snap.ExamID.String()).
			Str("reason", string(snap.SubmitReason)).
			Int("answers", len(snap.Answers)).
			Msg("Attempt submitted")
		s.emit(ctx, model.EventAttemptSubmitted, snap, func(ev *model.Event) {
			ev.Reason = snap.SubmitReason
			ev.SubmittedAt = snap.SubmittedAt
		})

	case model.StatusSubmitted:
		// Resumed after a stop between the two steps.

	case model.StatusEvaluated:
		return snap.Result, nil

	default:
		return nil, &TransitionError{Op: "submit", From: snap.Status}
	}

	def, err := s.store.Definition(ctx, snap.ID)
	if err != nil {
		return nil, storeErr("grade", err)
	}

	result, gerr := grading.Grade(def, snap.Answers)
	if gerr != nil {
		return nil, s.failGrading(ctx, snap, gerr)
	}

	gradedAt := s.clock.Now()
	result.AttemptID = snap.ID
	result.SubmitReason = snap.SubmitReason
	result.GradedAt = gradedAt
	result.TimeTakenSeconds = int(max(def.Duration()-snap.RemainingAtSubmit, 0) / time.Second)
	for i := range result.Breakdown {
		result.Breakdown[i].Flagged = snap.IsFlagged(result.Breakdown[i].QuestionID)
	}

	snap.EndedAt = &gradedAt
	if _, err := s.store.Evaluate(ctx, snap, result); err != nil {
		return nil, claimErr("grade", err)
	}
	snap.Result = result
	s.untrack(ctx, snap.ID)
	s.retain(ctx, snap.ID)

	s.log.Info().
		Str("attempt_id", snap.ID.String()).
		Str("exam_id", snap.ExamID.String()).
		Str("reason", string(snap.SubmitReason)).
		Float64("score", result.Score).
		Float64("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("Attempt evaluated")
	s.emit(ctx, model.EventAttemptEvaluated, snap, func(ev *model.Event) {
		ev.Reason = snap.SubmitReason
		ev.SubmittedAt = snap.SubmittedAt
		ev.StartedAt = &snap.StartedAt
		ev.ExamVersion = snap.ExamVersion
		ev.Result = result
		ev.Risk = snap.Risk.Brief(nil)
	})
	return result, nil
}

// claimErr keeps status conflicts visible to Submit's wait loop.
func claimErr(op string, err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return err
	}
	return storeErr(op, err)
}

// failGrading parks the attempt in SUBMITTED with the grading error so every
// later call reports the same failure.
func (s *AttemptService) failGrading(ctx context.Context, a *model.Attempt, gerr error) error {
	a.GradingError = gerr.Error()
	if _, err := s.store.Transition(ctx, a, model.StatusSubmitted, model.StatusSubmitted); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return err
		}
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to record grading error")
	}
	s.untrack(ctx, a.ID)
	s.retain(ctx, a.ID)

	s.log.Error().
		Err(gerr).
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Msg("Grading failed")
	s.emit(ctx, model.EventGradingFailed, a, func(ev *model.Event) {
		ev.Reason = a.SubmitReason
		ev.SubmittedAt = a.SubmittedAt
		ev.StartedAt = &a.StartedAt
		ev.ExamVersion = a.ExamVersion
		ev.GradingError = a.GradingError
		ev.Risk = a.Risk.Brief(nil)
	})

	if errors.Is(gerr, ErrGradingFailed) {
		return gerr
	}
	return fmt.Errorf("%w: %w", ErrGradingFailed, gerr)
}

// armLease keeps a submission in the sweeper index until it is graded, due
// when its lease lapses.
func (s *AttemptService) armLease(ctx context.Context, attemptID uuid.UUID, leaseAt time.Time) {
	if err := s.store.TrackDeadline(ctx, attemptID, leaseAt.Add(s.submitWait)); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to index submit lease")
	}
}

func (s *AttemptService) untrack(ctx context.Context, attemptID uuid.UUID) {
	if err := s.store.UntrackDeadline(ctx, attemptID); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to untrack deadline")
	}
}

func (s *AttemptService) retain(ctx context.Context, attemptID uuid.UUID) {
	if err := s.store.Expire(ctx, attemptID, s.resultRetention); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to shorten attempt TTL")
	}
}

// Result returns the graded result. Unless privileged, it is withheld when
// the exam does not release results immediately.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID, privileged bool) (*model.Result, error) {
	unlock := s.attempts.RLock(attemptID)
	defer unlock()

	a, err := s.load(ctx, attemptID)
	if errors.Is(err, ErrAttemptNotFound) {
		return s.archivedResult(ctx, attemptID, privileged)
	}
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case model.StatusEvaluated:
	case model.StatusSubmitted:
		if a.GradingError != "" {
			return nil, fmt.Errorf("%w: %s", ErrGradingFailed, a.GradingError)
		}
		return nil, ErrResultNotReady
	case model.StatusSubmitting:
		return nil, ErrResultNotReady
	default:
		return nil, &TransitionError{Op: "result", From: a.Status}
	}

	if !privileged {
		def, err := s.store.Definition(ctx, attemptID)
		if err != nil {
			return nil, storeErr("result", err)
		}
		if !def.Flags.ShowResultImmediately {
			return nil, ErrResultWithheld
		}
	}
	return a.Result, nil
}

func (s *AttemptService) archivedResult(ctx context.Context, attemptID uuid.UUID, privileged bool) (*model.Result, error) {
	archived, err := s.archived(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if archived.GradingError != "" {
		return nil, fmt.Errorf("%w: %s", ErrGradingFailed, archived.GradingError)
	}
	if archived.Result == nil {
		return nil, &TransitionError{Op: "result", From: archived.Status}
	}
	if !privileged {
		def, err := s.exams.GetExamDefinition(ctx, archived.ExamID)
		if err != nil || !def.Flags.ShowResultImmediately {
			return nil, ErrResultWithheld
		}
	}
	return archived.Result, nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// MyAttempts lists the user's archived attempts, newest first. Scores are
// withheld for exams that do not release results immediately.
func (s *AttemptService) MyAttempts(ctx context.Context, userID string, limit int) ([]model.AttemptSummary, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	if s.archive == nil {
		return []model.AttemptSummary{}, nil
	}

	list, err := s.archive.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if list == nil {
		list = []model.AttemptSummary{}
	}

	defs := make(map[uuid.UUID]*model.ExamDefinition)
	for i := range list {
		sum := &list[i]
		def, seen := defs[sum.ExamID]
		if !seen {
			def, err = s.exams.GetExamDefinition(ctx, sum.ExamID)
			if err != nil {
				s.log.Warn().Err(err).Str("exam_id", sum.ExamID.String()).Msg("Exam of archived attempt unavailable")
				def = nil
			}
			defs[sum.ExamID] = def
		}
		if def == nil {
			sum.Withhold()
			continue
		}
		sum.ExamTitle = def.Title
		if !def.Flags.ShowResultImmediately {
			sum.Withhold()
		}
	}
	return list, nil
}

// ─── Sweeper support ───────────────────────────────────────────────────────

// Now returns the engine clock's current time.
func (s *AttemptService) Now() time.Time { return s.clock.Now() }

// DueAttempts lists attempts whose indexed due time has passed.
func (s *AttemptService) DueAttempts(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.store.DueAttempts(ctx, s.clock.Now(), limit)
}

// Untrack drops an attempt from the deadline index.
func (s *AttemptService) Untrack(ctx context.Context, attemptID uuid.UUID) error {
	return s.store.UntrackDeadline(ctx, attemptID)
}

// Expire ends an abandoned or never-started attempt whose deadline has
// passed. No result is produced.
func (s *AttemptService) Expire(ctx context.Context, attemptID uuid.UUID) error {
	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	a, err := s.load(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status != model.StatusAbandoned && a.Status != model.StatusNotStarted {
		return &TransitionError{Op: "expire", From: a.Status}
	}
	now := s.clock.Now()
	if now.Before(a.Deadline) {
		return ErrNotYetDue
	}

	a.EndedAt = &now
	prev, err := s.store.Transition(ctx, a, model.StatusExpired,
		model.StatusAbandoned, model.StatusNotStarted)
	if err != nil {
		return storeErr("expire", err)
	}
	if prev == model.StatusNotStarted {
		s.releaseLock(ctx, a)
	}
	s.untrack(ctx, attemptID)
	s.retain(ctx, attemptID)

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Str("exam_id", a.ExamID.String()).
		Str("from", string(prev)).
		Msg("Attempt expired")
	s.emit(ctx, model.EventAttemptExpired, a, func(ev *model.Event) {
		ev.StartedAt = &a.StartedAt
		ev.ExamVersion = a.ExamVersion
		ev.Risk = a.Risk.Brief(nil)
	})
	return nil
}
