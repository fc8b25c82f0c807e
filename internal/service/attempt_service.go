package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/clock"
	"github.com/stemsi/exstem-attempt-engine/internal/config"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/repository"
	"github.com/stemsi/exstem-attempt-engine/internal/risk"
)

const maxQuestionBatch = 100

// Sink receives engine events for persistence and monitoring. Emit must not
// block on slow consumers and never fails the operation that produced the event.
type Sink interface {
	Emit(ctx context.Context, ev model.Event)
}

// ResultArchive reads outcomes that have left the live store.
type ResultArchive interface {
	GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*repository.ArchivedAttempt, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.AttemptSummary, error)
}

// AttemptService runs the attempt state machine.
type AttemptService struct {
	store   *repository.AttemptStore
	lock    *repository.AttemptLock
	exams   ExamProvider
	archive ResultArchive
	scorer  *risk.Scorer
	clock   clock.Clock
	sink    Sink
	log     zerolog.Logger

	grace           time.Duration
	maxPause        time.Duration
	resultRetention time.Duration
	submitWait      time.Duration
	batchSize       int

	attempts  *keyedRWMutex
	telemetry *keyedRWMutex

	// instance names this engine process on submit leases.
	instance string
}

// NewAttemptService creates a new AttemptService. archive may be nil.
func NewAttemptService(
	store *repository.AttemptStore,
	lock *repository.AttemptLock,
	exams ExamProvider,
	archive ResultArchive,
	scorer *risk.Scorer,
	clk clock.Clock,
	sink Sink,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		store:           store,
		lock:            lock,
		exams:           exams,
		archive:         archive,
		scorer:          scorer,
		clock:           clk,
		sink:            sink,
		log:             log.With().Str("component", "attempt_service").Logger(),
		grace:           cfg.AttemptGracePeriod,
		maxPause:        cfg.MaxPause,
		resultRetention: cfg.ResultRetention,
		submitWait:      cfg.SubmitWait,
		batchSize:       max(cfg.QuestionBatchSize, 1),
		attempts:        newKeyedRWMutex(),
		telemetry:       newKeyedRWMutex(),
		instance:        uuid.NewString(),
	}
}

// ─── Views ─────────────────────────────────────────────────────────────────

// StartResult is returned to the client when an attempt begins.
type StartResult struct {
	AttemptID        uuid.UUID               `json:"attempt_id"`
	ExamID           uuid.UUID               `json:"exam_id"`
	Title            string                  `json:"title"`
	Status           model.AttemptStatus     `json:"status"`
	Deadline         time.Time               `json:"deadline"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	TotalQuestions   int                     `json:"total_questions"`
	AllowReview      bool                    `json:"allow_review"`
	AllowPause       bool                    `json:"allow_pause"`
	Questions        []model.StudentQuestion `json:"questions"`
}

// StatusView is the public snapshot of an attempt.
type StatusView struct {
	AttemptID        uuid.UUID           `json:"attempt_id"`
	ExamID           uuid.UUID           `json:"exam_id"`
	Status           model.AttemptStatus `json:"status"`
	Deadline         time.Time           `json:"deadline"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	RiskLevel        model.RiskLevel     `json:"risk_level"`
	CurrentIndex     int                 `json:"current_index"`
	TotalQuestions   int                 `json:"total_questions"`
	Answered         int                 `json:"answered"`
	Flagged          []string            `json:"flagged"`
	SubmitReason     model.SubmitReason  `json:"submit_reason,omitempty"`
	// PausedUntil is when a paused attempt is force-submitted.
	PausedUntil *time.Time `json:"paused_until,omitempty"`

	remaining time.Duration
}

// Remaining returns the unrounded time left.
func (v *StatusView) Remaining() time.Duration { return v.remaining }

// AnswerReceipt acknowledges an accepted answer.
type AnswerReceipt struct {
	QuestionID string    `json:"question_id"`
	Seq        int64     `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
}

// QuestionPage is one batch of questions in attempt order.
type QuestionPage struct {
	Offset    int                     `json:"offset"`
	Total     int                     `json:"total"`
	Questions []model.StudentQuestion `json:"questions"`
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (s *AttemptService) view(a *model.Attempt) *StatusView {
	now := s.clock.Now()
	remaining := a.Remaining(now)

	v := &StatusView{
		AttemptID:        a.ID,
		ExamID:           a.ExamID,
		Status:           a.Status,
		Deadline:         a.Deadline,
		RemainingSeconds: seconds(remaining),
		RiskLevel:        model.RiskLow,
		CurrentIndex:     a.CurrentIndex,
		TotalQuestions:   len(a.QuestionOrder),
		Answered:         len(a.Answers),
		Flagged:          a.Flagged,
		SubmitReason:     a.SubmitReason,
		remaining:        remaining,
	}
	if v.Flagged == nil {
		v.Flagged = []string{}
	}
	if a.Risk != nil {
		v.RiskLevel = a.Risk.Level
	}
	if a.Status == model.StatusPaused && a.PausedAt != nil {
		until := a.PausedAt.Add(s.maxPause)
		v.PausedUntil = &until
	}
	return v
}

// ─── Loading helpers ───────────────────────────────────────────────────────

func (s *AttemptService) load(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.store.Get(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AttemptService) loadWithDefinition(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, *model.ExamDefinition, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, nil, err
	}
	def, err := s.store.Definition(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return a, def, nil
}

// storeErr maps repository errors from guarded writes to engine errors.
func storeErr(op string, err error) error {
	var se *repository.StatusError
	switch {
	case errors.As(err, &se):
		return &TransitionError{Op: op, From: se.Status}
	case errors.Is(err, repository.ErrNotFound):
		return ErrAttemptNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *AttemptService) emit(ctx context.Context, typ model.EventType, a *model.Attempt, fill func(*model.Event)) {
	ev := model.Event{
		Type:      typ,
		AttemptID: a.ID,
		ExamID:    a.ExamID,
		UserID:    a.UserID,
		Status:    a.Status,
		At:        s.clock.Now(),
	}
	if fill != nil {
		fill(&ev)
	}
	s.sink.Emit(ctx, ev)
}

// ─── Start ─────────────────────────────────────────────────────────────────

// Start creates a new attempt for userID on examID. A user holds at most one
// live attempt per exam.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, userID string) (*StartResult, error) {
	def, err := s.exams.GetExamDefinition(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	now := s.clock.Now()
	attemptID := uuid.New()
	ttl := def.Duration() + s.grace

	order, options := buildOrders(attemptID, def)
	a := &model.Attempt{
		ID:            attemptID,
		ExamID:        def.ID,
		ExamVersion:   def.Version,
		UserID:        userID,
		Status:        model.StatusNotStarted,
		StartedAt:     now,
		Deadline:      now.Add(def.Duration()),
		QuestionOrder: order,
		OptionOrder:   options,
	}

	// The attempt must exist before it can hold the lock; otherwise a
	// concurrent Start would see a holder with no keys and take it over.
	if err := s.store.Create(ctx, a, def, ttl); err != nil {
		return nil, err
	}
	if err := s.acquireLock(ctx, userID, a.ExamID, attemptID, ttl); err != nil {
		s.discard(ctx, attemptID)
		return nil, err
	}
	if err := s.store.TrackDeadline(ctx, a.ID, a.Deadline); err != nil {
		s.releaseLock(ctx, a)
		s.discard(ctx, attemptID)
		return nil, err
	}
	if _, err := s.store.CompareAndSwapStatus(ctx, a.ID, model.StatusInProgress, model.StatusNotStarted); err != nil {
		s.releaseLock(ctx, a)
		return nil, storeErr("start", err)
	}
	a.Status = model.StatusInProgress

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", examID.String()).
		Str("user_id", userID).
		Int("version", def.Version).
		Time("deadline", a.Deadline).
		Msg("Attempt started")

	s.emit(ctx, model.EventAttemptStarted, a, func(ev *model.Event) {
		ev.ExamVersion = a.ExamVersion
		ev.StartedAt = &a.StartedAt
		ev.QuestionOrder = a.QuestionOrder
	})

	return &StartResult{
		AttemptID:        a.ID,
		ExamID:           a.ExamID,
		Title:            def.Title,
		Status:           a.Status,
		Deadline:         a.Deadline,
		RemainingSeconds: seconds(a.Remaining(now)),
		TotalQuestions:   len(order),
		AllowReview:      def.Flags.AllowReview,
		AllowPause:       def.Flags.AllowPause,
		Questions:        studentQuestions(def, a, 0, s.batchSize),
	}, nil
}

// acquireLock claims the (user, exam) lock, taking it over from a holder that
// no longer has a live attempt.
func (s *AttemptService) acquireLock(ctx context.Context, userID string, examID, attemptID uuid.UUID, ttl time.Duration) error {
	ok, holder, err := s.lock.Acquire(ctx, userID, examID, attemptID, ttl)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	status, err := s.store.Status(ctx, holder)
	switch {
	case err == nil && status.HoldsLock():
		return &ActiveAttemptError{AttemptID: holder}
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return err
	}

	taken, err := s.lock.Takeover(ctx, userID, examID, holder, attemptID, ttl)
	if err != nil {
		return err
	}
	if !taken {
		current, _ := s.lock.Holder(ctx, userID, examID)
		return &ActiveAttemptError{AttemptID: current}
	}
	s.log.Warn().
		Str("exam_id", examID.String()).
		Str("user_id", userID).
		Str("stale_attempt_id", holder.String()).
		Msg("Took over stale attempt lock")
	return nil
}

func (s *AttemptService) discard(ctx context.Context, attemptID uuid.UUID) {
	if err := s.store.Delete(ctx, attemptID); err != nil {
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to discard attempt")
	}
}

func (s *AttemptService) releaseLock(ctx context.Context, a *model.Attempt) {
	if err := s.lock.Release(ctx, a.UserID, a.ExamID, a.ID); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to release attempt lock")
	}
}

// ─── Answers & navigation ──────────────────────────────────────────────────

// RecordAnswer stores an answer if seq is newer than the stored one.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID uuid.UUID, questionID string, raw json.RawMessage, seq int64, timeSpent int) (*AnswerReceipt, error) {
	unlock := s.attempts.RLock(attemptID)
	defer unlock()

	a, def, err := s.loadWithDefinition(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusInProgress {
		return nil, &TransitionError{Op: "answer", From: a.Status}
	}
	now := s.clock.Now()
	if !now.Before(a.Deadline) {
		return nil, ErrDeadlineExceeded
	}
	q, ok := def.Question(questionID)
	if !ok {
		return nil, ErrUnknownQuestion
	}
	if seq < 1 {
		return nil, fmt.Errorf("%w: sequence must be positive", ErrInvalidAnswer)
	}
	value, err := q.Body.DecodeAnswer(raw)
	if err != nil {
		return nil, err
	}

	ans := &model.Answer{
		QuestionID: questionID,
		Value:      value,
		Seq:        seq,
		TimeSpent:  max(timeSpent, 0),
		ReceivedAt: now,
	}
	outcome, err := s.store.PutAnswer(ctx, attemptID, ans)
	if err != nil {
		return nil, storeErr("answer", err)
	}
	if outcome == repository.AnswerStale {
		return nil, ErrStaleWrite
	}

	s.emit(ctx, model.EventAnswerRecorded, a, func(ev *model.Event) { ev.Answer = ans })
	return &AnswerReceipt{QuestionID: questionID, Seq: seq, ReceivedAt: now}, nil
}

// ToggleFlag flips the review flag of a question and returns the new state.
func (s *AttemptService) ToggleFlag(ctx context.Context, attemptID uuid.UUID, questionID string) (bool, error) {
	unlock := s.attempts.RLock(attemptID)
	defer unlock()

	def, err := s.store.Definition(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrAttemptNotFound
	}
	if err != nil {
		return false, err
	}
	if _, ok := def.Question(questionID); !ok {
		return false, ErrUnknownQuestion
	}

	flagged, err := s.store.ToggleFlag(ctx, attemptID, questionID)
	if err != nil {
		return false, storeErr("flag", err)
	}
	return flagged, nil
}

// GoTo moves the attempt cursor and returns the question at index.
func (s *AttemptService) GoTo(ctx context.Context, attemptID uuid.UUID, index int) (*model.StudentQuestion, error) {
	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	a, def, err := s.loadWithDefinition(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusInProgress && a.Status != model.StatusPaused {
		return nil, &TransitionError{Op: "goto", From: a.Status}
	}
	if index < 0 || index >= len(a.QuestionOrder) {
		return nil, ErrIndexOutOfRange
	}
	if !def.Flags.AllowReview && index < a.CurrentIndex {
		return nil, ErrNavigationLocked
	}

	if index != a.CurrentIndex {
		err := s.store.MoveCursor(ctx, attemptID, index, def.Flags.AllowReview)
		if errors.Is(err, repository.ErrCursorBackward) {
			return nil, ErrNavigationLocked
		}
		if err != nil {
			return nil, storeErr("goto", err)
		}
		a.CurrentIndex = index
	}

	qs := studentQuestions(def, a, index, 1)
	if len(qs) == 0 {
		return nil, ErrIndexOutOfRange
	}
	return &qs[0], nil
}

// Questions returns a batch of questions in attempt order. limit <= 0 uses
// the configured batch size.
func (s *AttemptService) Questions(ctx context.Context, attemptID uuid.UUID, offset, limit int) (*QuestionPage, error) {
	unlock := s.attempts.RLock(attemptID)
	defer unlock()

	a, def, err := s.loadWithDefinition(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusInProgress && a.Status != model.StatusPaused {
		return nil, &TransitionError{Op: "questions", From: a.Status}
	}
	if offset < 0 || offset > len(a.QuestionOrder) {
		return nil, ErrIndexOutOfRange
	}
	if limit <= 0 {
		limit = s.batchSize
	}
	limit = min(limit, maxQuestionBatch)

	return &QuestionPage{
		Offset:    offset,
		Total:     len(a.QuestionOrder),
		Questions: studentQuestions(def, a, offset, limit),
	}, nil
}

// ─── Pause, resume, abandon ────────────────────────────────────────────────

// Pause freezes the remaining time of an in-progress attempt.
func (s *AttemptService) Pause(ctx context.Context, attemptID uuid.UUID) (*StatusView, error) {
	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	a, def, err := s.loadWithDefinition(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !def.Flags.AllowPause {
		return nil, ErrPauseNotAllowed
	}
	if a.Status != model.StatusInProgress {
		return nil, &TransitionError{Op: "pause", From: a.Status}
	}
	now := s.clock.Now()
	if !now.Before(a.Deadline) {
		return nil, ErrDeadlineExceeded
	}

	a.PausedAt = &now
	a.RemainingAtPause = a.Deadline.Sub(now)
	if _, err := s.store.Transition(ctx, a, model.StatusPaused, model.StatusInProgress); err != nil {
		return nil, storeErr("pause", err)
	}

	ttl := a.RemainingAtPause + s.maxPause + s.grace
	s.extend(ctx, a, ttl)
	if err := s.store.TrackDeadline(ctx, attemptID, now.Add(s.maxPause)); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Dur("remaining", a.RemainingAtPause).
		Msg("Attempt paused")
	s.emit(ctx, model.EventAttemptPaused, a, nil)
	return s.view(a), nil
}

// Resume restarts a paused attempt with its frozen remaining time, or
// reclaims an abandoned attempt against its original deadline.
func (s *AttemptService) Resume(ctx context.Context, attemptID uuid.UUID) (*StatusView, error) {
	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	switch a.Status {
	case model.StatusPaused:
		if a.PausedAt != nil && !now.Before(a.PausedAt.Add(s.maxPause)) {
			return nil, ErrDeadlineExceeded
		}
		a.Deadline = now.Add(a.RemainingAtPause)
		a.PausedAt = nil
		a.RemainingAtPause = 0
		if _, err := s.store.Transition(ctx, a, model.StatusInProgress, model.StatusPaused); err != nil {
			return nil, storeErr("resume", err)
		}

	case model.StatusAbandoned:
		if !now.Before(a.Deadline) {
			return nil, ErrDeadlineExceeded
		}
		if err := s.acquireLock(ctx, a.UserID, a.ExamID, a.ID, a.Deadline.Sub(now)+s.grace); err != nil {
			return nil, err
		}
		if _, err := s.store.Transition(ctx, a, model.StatusInProgress, model.StatusAbandoned); err != nil {
			s.releaseLock(ctx, a)
			return nil, storeErr("resume", err)
		}

	default:
		return nil, &TransitionError{Op: "resume", From: a.Status}
	}

	s.extend(ctx, a, a.Deadline.Sub(now)+s.grace)
	if err := s.store.TrackDeadline(ctx, attemptID, a.Deadline); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Time("deadline", a.Deadline).
		Msg("Attempt resumed")
	s.emit(ctx, model.EventAttemptResumed, a, nil)
	return s.view(a), nil
}

// extend resets the TTL of the attempt keys and its lock.
func (s *AttemptService) extend(ctx context.Context, a *model.Attempt, ttl time.Duration) {
	if err := s.store.Expire(ctx, a.ID, ttl); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to extend attempt TTL")
	}
	if _, err := s.lock.Refresh(ctx, a.UserID, a.ExamID, a.ID, ttl); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Failed to refresh attempt lock")
	}
}

// Abandon marks the attempt as left by the student and frees the exam for a
// new attempt. The attempt stays resumable until its deadline.
func (s *AttemptService) Abandon(ctx context.Context, attemptID uuid.UUID) (*StatusView, error) {
	unlock := s.attempts.Lock(attemptID)
	defer unlock()

	a, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.StatusNotStarted && a.Status != model.StatusInProgress {
		return nil, &TransitionError{Op: "abandon", From: a.Status}
	}

	if _, err := s.store.CompareAndSwapStatus(ctx, attemptID, model.StatusAbandoned,
		model.StatusNotStarted, model.StatusInProgress); err != nil {
		return nil, storeErr("abandon", err)
	}
	a.Status = model.StatusAbandoned
	s.releaseLock(ctx, a)

	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Str("exam_id", a.ExamID.String()).
		Msg("Attempt abandoned")
	s.emit(ctx, model.EventAttemptAbandoned, a, nil)
	return s.view(a), nil
}

// ─── Telemetry ─────────────────────────────────────────────────────────────

// RecordTelemetry ingests a client event and re-scores the attempt. Risk is
// advisory unless the exam asks for auto-submit on CRITICAL.
func (s *AttemptService) RecordTelemetry(ctx context.Context, attemptID uuid.UUID, ev model.TelemetryEvent) (*model.RiskProfile, error) {
	if !ev.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTelemetry, ev.Kind)
	}
	if ev.Payload.Count < 0 || ev.Payload.DurationMs < 0 {
		return nil, fmt.Errorf("%w: negative payload", ErrInvalidTelemetry)
	}

	profile, autoSubmit, err := s.scoreTelemetry(ctx, attemptID, ev)
	if err != nil {
		return nil, err
	}

	if autoSubmit {
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Float64("risk_score", profile.Score).
			Msg("Risk reached CRITICAL, forcing submit")
		if _, err := s.Submit(ctx, attemptID, model.SubmitReasonForced); err != nil &&
			!errors.Is(err, ErrGradingFailed) && !errors.Is(err, ErrAttemptNotActive) {
			s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Forced submit failed")
		}
	}
	return profile, nil
}

func (s *AttemptService) scoreTelemetry(ctx context.Context, attemptID uuid.UUID, ev model.TelemetryEvent) (*model.RiskProfile, bool, error) {
	unlock := s.telemetry.Lock(attemptID)
	defer unlock()

	a, def, err := s.loadWithDefinition(ctx, attemptID)
	if err != nil {
		return nil, false, err
	}

	ev.AttemptID = attemptID
	ev.ReceivedAt = s.clock.Now()
	if ev.ClientTimestamp.IsZero() {
		ev.ClientTimestamp = ev.ReceivedAt
	}

	events, err := s.store.AppendTelemetry(ctx, attemptID, &ev)
	if err != nil {
		return nil, false, storeErr("telemetry", err)
	}

	profile := s.scorer.Score(attemptID, events)
	if err := s.store.SaveRisk(ctx, attemptID, &profile); err != nil {
		return nil, false, storeErr("telemetry", err)
	}

	wasCritical := a.Risk != nil && a.Risk.Level == model.RiskCritical
	latest := model.RiskContribution{Event: ev, Weight: s.scorer.Weight(ev)}
	s.emit(ctx, model.EventRiskUpdated, a, func(e *model.Event) {
		e.Telemetry = &ev
		e.Risk = profile.Brief(&latest)
	})

	autoSubmit := def.Flags.AutoSubmitOnCritical && profile.Level == model.RiskCritical && !wasCritical
	return &profile, autoSubmit, nil
}

// ─── Queries ───────────────────────────────────────────────────────────────

// Status returns the attempt snapshot. Attempts that have left the live
// store are served from the archive.
func (s *AttemptService) Status(ctx context.Context, attemptID uuid.UUID) (*StatusView, error) {
	unlock := s.attempts.RLock(attemptID)
	defer unlock()

	a, err := s.load(ctx, attemptID)
	if errors.Is(err, ErrAttemptNotFound) {
		archived, aerr := s.archived(ctx, attemptID)
		if aerr != nil {
			return nil, aerr
		}
		v := &StatusView{
			AttemptID: archived.AttemptID,
			ExamID:    archived.ExamID,
			Status:    archived.Status,
			RiskLevel: model.RiskLow,
			Flagged:   []string{},
		}
		if archived.Result != nil {
			v.SubmitReason = archived.Result.SubmitReason
		}
		return v, nil
	}
	if err != nil {
		return nil, err
	}
	return s.view(a), nil
}

// VerifyOwner returns ErrNotAttemptOwner unless userID owns the attempt.
func (s *AttemptService) VerifyOwner(ctx context.Context, attemptID uuid.UUID, userID string) error {
	a, err := s.load(ctx, attemptID)
	if errors.Is(err, ErrAttemptNotFound) {
		archived, aerr := s.archived(ctx, attemptID)
		if aerr != nil {
			return aerr
		}
		if archived.UserID != userID {
			return ErrNotAttemptOwner
		}
		return nil
	}
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return ErrNotAttemptOwner
	}
	return nil
}

// ExamOf returns the exam an attempt belongs to.
func (s *AttemptService) ExamOf(ctx context.Context, attemptID uuid.UUID) (uuid.UUID, error) {
	a, err := s.load(ctx, attemptID)
	if err != nil {
		return uuid.Nil, err
	}
	return a.ExamID, nil
}

func (s *AttemptService) archived(ctx context.Context, attemptID uuid.UUID) (*repository.ArchivedAttempt, error) {
	if s.archive == nil {
		return nil, ErrAttemptNotFound
	}
	archived, err := s.archive.GetByAttemptID(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return archived, nil
}
