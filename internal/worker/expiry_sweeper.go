package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stemsi/exstem-attempt-engine/internal/service"
)

// AttemptEngine is the slice of the attempt service the sweeper drives.
type AttemptEngine interface {
	Now() time.Time
	DueAttempts(ctx context.Context, limit int) ([]uuid.UUID, error)
	Status(ctx context.Context, attemptID uuid.UUID) (*service.StatusView, error)
	Submit(ctx context.Context, attemptID uuid.UUID, reason model.SubmitReason) (*model.Result, error)
	Recover(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
	Expire(ctx context.Context, attemptID uuid.UUID) error
	Untrack(ctx context.Context, attemptID uuid.UUID) error
}

// SweepStats counts what one sweep did.
type SweepStats struct {
	Submitted int
	Recovered int
	Expired   int
	Untracked int
	Skipped   int
	Failed    int
}

// ExpirySweeper ends attempts whose time ran out while no client was around
// to submit them.
type ExpirySweeper struct {
	engine   AttemptEngine
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func NewExpirySweeper(engine AttemptEngine, interval time.Duration, batch int, log zerolog.Logger) *ExpirySweeper {
	if batch <= 0 {
		batch = 200
	}
	return &ExpirySweeper{
		engine:   engine,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled. Call in a goroutine.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("Sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			stats, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("Sweep failed")
				continue
			}
			if stats.Submitted+stats.Recovered+stats.Expired+stats.Failed > 0 {
				s.log.Info().
					Int("submitted", stats.Submitted).
					Int("recovered", stats.Recovered).
					Int("expired", stats.Expired).
					Int("untracked", stats.Untracked).
					Int("failed", stats.Failed).
					Msg("Sweep finished")
			}
		}
	}
}

// Sweep processes every attempt that is due now, one batch at a time.
func (s *ExpirySweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	seen := make(map[uuid.UUID]struct{})

	for {
		ids, err := s.engine.DueAttempts(ctx, s.batch)
		if err != nil {
			return stats, err
		}
		progressed := false
		for _, id := range ids {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			// Skipped attempts stay due; only look at each once per sweep.
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			progressed = true
			s.sweepOne(ctx, id, &stats)
		}
		if len(ids) < s.batch || !progressed {
			return stats, nil
		}
	}
}

func (s *ExpirySweeper) sweepOne(ctx context.Context, id uuid.UUID, stats *SweepStats) {
	l := s.log.With().Str("attempt_id", id.String()).Logger()

	v, err := s.engine.Status(ctx, id)
	if errors.Is(err, service.ErrAttemptNotFound) {
		s.untrack(ctx, id, stats, l)
		return
	}
	if err != nil {
		l.Error().Err(err).Msg("Failed to load due attempt")
		stats.Failed++
		return
	}

	now := s.engine.Now()
	switch v.Status {
	case model.StatusInProgress:
		if v.Remaining() > 0 {
			stats.Skipped++
			return
		}
		s.submit(ctx, id, stats, l)

	case model.StatusPaused:
		if v.PausedUntil == nil || now.Before(*v.PausedUntil) {
			stats.Skipped++
			return
		}
		s.submit(ctx, id, stats, l)

	case model.StatusNotStarted, model.StatusAbandoned:
		if v.Remaining() > 0 {
			stats.Skipped++
			return
		}
		if err := s.engine.Expire(ctx, id); err != nil {
			l.Error().Err(err).Msg("Failed to expire attempt")
			stats.Failed++
			return
		}
		l.Info().Str("reason", string(model.SubmitReasonTimeout)).Str("from", string(v.Status)).Msg("Attempt expired by sweeper")
		stats.Expired++

	case model.StatusSubmitting, model.StatusSubmitted:
		// Still indexed means its submit lease is due; a live driver keeps it.
		s.recover(ctx, id, stats, l)

	default:
		s.untrack(ctx, id, stats, l)
	}
}

func (s *ExpirySweeper) submit(ctx context.Context, id uuid.UUID, stats *SweepStats, l zerolog.Logger) {
	res, err := s.engine.Submit(ctx, id, model.SubmitReasonTimeout)
	switch {
	case err == nil:
		l.Info().
			Str("reason", string(model.SubmitReasonTimeout)).
			Float64("percentage", res.Percentage).
			Msg("Attempt auto-submitted")
		stats.Submitted++
	case errors.Is(err, service.ErrGradingFailed):
		// Submitted but ungraded; it has already left the index.
		l.Error().Err(err).Str("reason", string(model.SubmitReasonTimeout)).Msg("Auto-submitted attempt failed grading")
		stats.Submitted++
	case errors.Is(err, service.ErrSubmitPending):
		stats.Skipped++
	default:
		l.Error().Err(err).Msg("Failed to auto-submit attempt")
		stats.Failed++
	}
}

func (s *ExpirySweeper) recover(ctx context.Context, id uuid.UUID, stats *SweepStats, l zerolog.Logger) {
	res, err := s.engine.Recover(ctx, id)
	switch {
	case err == nil:
		l.Warn().Float64("percentage", res.Percentage).Msg("Stalled submission recovered")
		stats.Recovered++
	case errors.Is(err, service.ErrGradingFailed):
		l.Error().Err(err).Msg("Recovered submission failed grading")
		s.untrack(ctx, id, stats, l)
	case errors.Is(err, service.ErrSubmitPending):
		stats.Skipped++
	default:
		l.Error().Err(err).Msg("Failed to recover submission")
		stats.Failed++
	}
}

func (s *ExpirySweeper) untrack(ctx context.Context, id uuid.UUID, stats *SweepStats, l zerolog.Logger) {
	if err := s.engine.Untrack(ctx, id); err != nil {
		l.Error().Err(err).Msg("Failed to untrack attempt")
		stats.Failed++
		return
	}
	stats.Untracked++
}
